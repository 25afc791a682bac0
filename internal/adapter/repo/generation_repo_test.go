package repo

import "testing"

func TestClampPage(t *testing.T) {
	tests := []struct {
		name       string
		limit      int
		offset     int
		wantLimit  int
		wantOffset int
	}{
		{"defaults", 0, 0, 50, 0},
		{"negative limit", -5, 0, 50, 0},
		{"within bounds", 25, 10, 25, 10},
		{"limit capped", 500, 0, maxListLimit, 0},
		{"negative offset", 10, -3, 10, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			limit, offset := clampPage(tt.limit, tt.offset)
			if limit != tt.wantLimit || offset != tt.wantOffset {
				t.Fatalf("clampPage(%d, %d) = (%d, %d), want (%d, %d)",
					tt.limit, tt.offset, limit, offset, tt.wantLimit, tt.wantOffset)
			}
		})
	}
}

func TestNullableStringRoundTrip(t *testing.T) {
	if nullableString("") != nil {
		t.Fatal("empty string should map to nil")
	}
	if got := nullableString("x"); got == nil || *got != "x" {
		t.Fatalf("nullableString(\"x\") = %v", got)
	}
	if deref(nil) != "" {
		t.Fatal("deref(nil) should be empty")
	}
	s := "y"
	if deref(&s) != "y" {
		t.Fatal("deref lost the value")
	}
}

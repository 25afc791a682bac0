package domain

import "time"

// Status enumerates the generation job lifecycle states.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// IsTerminal reports whether the status permits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// InputSourceType enumerates where an input image comes from.
type InputSourceType string

const (
	InputSourceURL       InputSourceType = "url"
	InputSourceLocalPath InputSourceType = "local_path"
)

// InputSource describes one conditioning image supplied with a request.
type InputSource struct {
	Type     InputSourceType `json:"type"`
	Value    string          `json:"value"`
	FileName string          `json:"file_name,omitempty"`
	Data     []byte          `json:"data,omitempty"`
}

// ImageSize is either a provider preset or explicit pixel dimensions.
type ImageSize struct {
	Preset string `json:"preset,omitempty"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
}

// IsCustom reports whether the size names explicit dimensions rather than a preset.
func (s ImageSize) IsCustom() bool {
	return s.Preset == "" && (s.Width > 0 || s.Height > 0)
}

// RequestOptions carries the normalized generation parameters.
type RequestOptions struct {
	ImageSize     ImageSize `json:"image_size"`
	NumImages     int       `json:"num_images"`
	MaxImages     int       `json:"max_images"`
	SafetyChecker bool      `json:"safety_checker"`
	EnhancePrompt bool      `json:"enhance_prompt"`
}

// QueueHandle is the set of callback URLs a provider returns on acceptance.
// All fields are empty until the provider accepts the submission.
type QueueHandle struct {
	RequestID   string `json:"request_id,omitempty"`
	StatusURL   string `json:"status_url,omitempty"`
	ResponseURL string `json:"response_url,omitempty"`
	CancelURL   string `json:"cancel_url,omitempty"`
}

// Generation is one persisted attempt to produce images from a prompt.
type Generation struct {
	ID           string
	ProviderID   string
	ProviderType string
	Prompt       string
	Inputs       []InputSource
	Options      RequestOptions
	Queue        QueueHandle
	Status       Status
	Logs         []string
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	FinishedAt   *time.Time
	Outputs      []Output
}

// Output is one generated image row, ordered by Index within its generation.
type Output struct {
	ID           string
	GenerationID string
	Index        int
	RemoteURL    string
	LocalPath    *string
	ContentType  *string
	Width        *int
	Height       *int
	FileSize     *int64
	CreatedAt    time.Time
}

// ResultImage is a provider's view of one generated image before persistence.
type ResultImage struct {
	URL         string
	ContentType string
	Width       int
	Height      int
}

// ListFilter narrows and pages a history listing.
type ListFilter struct {
	Status     Status
	ProviderID string
	Limit      int
	Offset     int
}

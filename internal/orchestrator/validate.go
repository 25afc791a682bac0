package orchestrator

import (
	"encoding/base64"
	"fmt"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/KianaMei/genqueue/internal/domain"
)

// Limits bounds what a single submit request may ask for.
type Limits struct {
	InputImages int
	TotalImages int
	EdgeMin     int
	EdgeMax     int
	AreaMin     int64
	AreaMax     int64
}

// DefaultLimits returns the service defaults.
func DefaultLimits() Limits {
	return Limits{
		InputImages: 10,
		TotalImages: 15,
		EdgeMin:     1920,
		EdgeMax:     4096,
		AreaMin:     2560 * 1440,
		AreaMax:     4096 * 4096,
	}
}

func valErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrValidation, fmt.Sprintf(format, args...))
}

// validate checks a submit request in a fixed order and fails fast on the
// first violation. No row is created for an invalid request.
func (o *Orchestrator) validate(req SubmitRequest) error {
	if strings.TrimSpace(req.Prompt) == "" {
		return valErr("prompt is required")
	}

	inputCount := len(req.Inputs)
	if inputCount < 1 {
		return valErr("at least one input image is required")
	}
	if inputCount > o.limits.InputImages {
		return valErr("too many input images: %d (limit %d)", inputCount, o.limits.InputImages)
	}

	if _, err := resolveInputs(req.Inputs); err != nil {
		return valErr("input resolution failed: %v", err)
	}

	numImages := max(1, req.Options.NumImages)
	maxImages := max(1, req.Options.MaxImages)
	maxPossibleOutputs := numImages * maxImages
	maxPossibleTotal := inputCount + maxPossibleOutputs
	if maxPossibleTotal > o.limits.TotalImages {
		suggested := (o.limits.TotalImages - inputCount) / numImages
		if suggested < 1 {
			suggested = 1
		}
		return valErr(
			"image budget exceeded: %d inputs + %d possible outputs = %d > %d; reduce max_images to at most %d",
			inputCount, maxPossibleOutputs, maxPossibleTotal, o.limits.TotalImages, suggested,
		)
	}

	if size := req.Options.ImageSize; size.IsCustom() {
		if !o.validCustomSize(size.Width, size.Height) {
			return valErr(
				"invalid custom image size %dx%d: edges must be within [%d, %d] or area within [%d, %d]",
				size.Width, size.Height, o.limits.EdgeMin, o.limits.EdgeMax, o.limits.AreaMin, o.limits.AreaMax,
			)
		}
	}

	return nil
}

// validCustomSize accepts a size when either both edges are in range or the
// pixel area is.
func (o *Orchestrator) validCustomSize(width, height int) bool {
	if width <= 0 || height <= 0 {
		return false
	}
	edgesOK := width >= o.limits.EdgeMin && width <= o.limits.EdgeMax &&
		height >= o.limits.EdgeMin && height <= o.limits.EdgeMax
	area := int64(width) * int64(height)
	areaOK := area >= o.limits.AreaMin && area <= o.limits.AreaMax
	return edgesOK || areaOK
}

// resolveInputs turns every input source into a reference the provider can
// consume: an absolute URL, a pre-encoded payload, or a locally read file
// encoded as a data URL.
func resolveInputs(inputs []domain.InputSource) ([]string, error) {
	refs := make([]string, 0, len(inputs))
	for i, in := range inputs {
		ref, err := resolveInput(in)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func resolveInput(in domain.InputSource) (string, error) {
	if len(in.Data) > 0 {
		return dataURL(in.Data, contentTypeFor(in.FileName, in.Value)), nil
	}
	switch in.Type {
	case domain.InputSourceURL:
		parsed, err := url.Parse(strings.TrimSpace(in.Value))
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return "", fmt.Errorf("not an absolute url: %q", in.Value)
		}
		return parsed.String(), nil
	case domain.InputSourceLocalPath:
		data, err := os.ReadFile(in.Value)
		if err != nil {
			return "", fmt.Errorf("read local file: %w", err)
		}
		return dataURL(data, contentTypeFor(in.FileName, in.Value)), nil
	default:
		return "", fmt.Errorf("unsupported input source type %q", in.Type)
	}
}

func dataURL(data []byte, contentType string) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func contentTypeFor(fileName, value string) string {
	name := fileName
	if name == "" {
		name = value
	}
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); ct != "" {
		return ct
	}
	return "image/png"
}

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/KianaMei/genqueue/internal/domain"
	"github.com/KianaMei/genqueue/internal/infra"
)

// QueueOptions configures the HTTP queue adapter.
type QueueOptions struct {
	Endpoint       string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// QueueAdapter drives a queue-style generation backend: submit returns a
// handle of status/response/cancel URLs, status is polled until terminal and
// the result is fetched separately.
type QueueAdapter struct {
	endpoint   string
	httpClient *http.Client
	logger     *infra.Logger
}

type submitRequest struct {
	Prompt        string   `json:"prompt"`
	ImageURLs     []string `json:"image_urls,omitempty"`
	ImageSize     any      `json:"image_size,omitempty"`
	NumImages     int      `json:"num_images,omitempty"`
	MaxImages     int      `json:"max_images,omitempty"`
	SafetyChecker bool     `json:"enable_safety_checker"`
	EnhancePrompt bool     `json:"enhance_prompt,omitempty"`
}

type submitResponse struct {
	RequestID   string `json:"request_id"`
	StatusURL   string `json:"status_url"`
	ResponseURL string `json:"response_url"`
	CancelURL   string `json:"cancel_url"`
}

type statusResponse struct {
	Status string `json:"status"`
	Logs   []struct {
		Message string `json:"message"`
	} `json:"logs"`
	Error string `json:"error"`
}

type resultResponse struct {
	Images []struct {
		URL         string `json:"url"`
		ContentType string `json:"content_type"`
		Width       int    `json:"width"`
		Height      int    `json:"height"`
	} `json:"images"`
}

// NewQueueAdapter constructs the adapter with sane defaults.
func NewQueueAdapter(opts QueueOptions) *QueueAdapter {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 45 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &QueueAdapter{
		endpoint:   strings.TrimRight(opts.Endpoint, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Submit enqueues a generation request. All three callback URLs must be
// present in the response for the handle to be usable.
func (a *QueueAdapter) Submit(ctx context.Context, cred string, in SubmitInput) (domain.QueueHandle, error) {
	payload := submitRequest{
		Prompt:        in.Prompt,
		ImageURLs:     in.InputRefs,
		NumImages:     in.Options.NumImages,
		MaxImages:     in.Options.MaxImages,
		SafetyChecker: in.Options.SafetyChecker,
		EnhancePrompt: in.Options.EnhancePrompt,
	}
	if size := in.Options.ImageSize; size.IsCustom() {
		payload.ImageSize = map[string]int{"width": size.Width, "height": size.Height}
	} else if size.Preset != "" {
		payload.ImageSize = size.Preset
	}

	var decoded submitResponse
	if err := a.doJSON(ctx, http.MethodPost, a.endpoint, cred, payload, &decoded); err != nil {
		return domain.QueueHandle{}, err
	}
	if decoded.StatusURL == "" || decoded.ResponseURL == "" || decoded.CancelURL == "" {
		return domain.QueueHandle{}, fmt.Errorf("queue: %w: incomplete queue handle in submit response", domain.ErrProviderFailure)
	}
	a.logger.Debug().
		Str("request_id", decoded.RequestID).
		Msg("queue: submission accepted")
	return domain.QueueHandle{
		RequestID:   decoded.RequestID,
		StatusURL:   decoded.StatusURL,
		ResponseURL: decoded.ResponseURL,
		CancelURL:   decoded.CancelURL,
	}, nil
}

// PollStatus reads the queue status endpoint and maps it onto the canonical vocabulary.
func (a *QueueAdapter) PollStatus(ctx context.Context, cred, statusURL string) (StatusSnapshot, error) {
	var decoded statusResponse
	if err := a.doJSON(ctx, http.MethodGet, statusURL+"?logs=1", cred, nil, &decoded); err != nil {
		return StatusSnapshot{}, err
	}
	status, done := MapQueueStatus(decoded.Status)
	snapshot := StatusSnapshot{
		RawStatus:    decoded.Status,
		Status:       status,
		Done:         done,
		ErrorMessage: decoded.Error,
	}
	for _, line := range decoded.Logs {
		if msg := strings.TrimSpace(line.Message); msg != "" {
			snapshot.Logs = append(snapshot.Logs, msg)
		}
	}
	return snapshot, nil
}

// GetResult fetches the final payload of a completed request.
func (a *QueueAdapter) GetResult(ctx context.Context, cred, responseURL string) (Result, error) {
	var decoded resultResponse
	if err := a.doJSON(ctx, http.MethodGet, responseURL, cred, nil, &decoded); err != nil {
		return Result{}, err
	}
	if len(decoded.Images) == 0 {
		return Result{}, fmt.Errorf("queue: %w: result contains no images", domain.ErrProviderFailure)
	}
	result := Result{Images: make([]domain.ResultImage, 0, len(decoded.Images))}
	for _, img := range decoded.Images {
		result.Images = append(result.Images, domain.ResultImage{
			URL:         img.URL,
			ContentType: img.ContentType,
			Width:       img.Width,
			Height:      img.Height,
		})
	}
	return result, nil
}

// Cancel asks the queue to abort the request. A request that is already gone
// or already finished counts as a successful cancel.
func (a *QueueAdapter) Cancel(ctx context.Context, cred, cancelURL string) error {
	resp, err := a.do(ctx, http.MethodPut, cancelURL, cred, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusConflict {
		return nil
	}
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("queue: %w: cancel status %d: %s", domain.ErrProviderFailure, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return nil
}

func (a *QueueAdapter) doJSON(ctx context.Context, method, url, cred string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("queue: encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	resp, err := a.do(ctx, method, url, cred, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("queue: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("queue: %w: status %d: %s", domain.ErrProviderFailure, resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("queue: decode response: %w", err)
	}
	return nil
}

func (a *QueueAdapter) do(ctx context.Context, method, url, cred string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("queue: build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cred != "" {
		req.Header.Set("Authorization", "Key "+cred)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("queue: http request: %w", err)
	}
	return resp, nil
}

var _ Adapter = (*QueueAdapter)(nil)

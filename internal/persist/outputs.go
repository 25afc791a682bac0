package persist

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/KianaMei/genqueue/internal/domain"
	"github.com/KianaMei/genqueue/internal/events"
	"github.com/KianaMei/genqueue/internal/infra"
	"github.com/KianaMei/genqueue/internal/storage"
)

// Persister downloads generated images and records their output rows.
// Individual download failures are isolated: the row is still written with a
// null local path so index alignment with the provider result is preserved.
type Persister struct {
	httpClient  *http.Client
	store       *storage.FileStore
	outputs     domain.OutputRepository
	broadcaster *events.Broadcaster
	logger      infra.Logger
}

// Options wires the persister's collaborators.
type Options struct {
	HTTPClient  *http.Client
	Store       *storage.FileStore
	Outputs     domain.OutputRepository
	Broadcaster *events.Broadcaster
	Logger      infra.Logger
}

// NewPersister constructs a Persister with a default download client when
// none is supplied.
func NewPersister(opts Options) *Persister {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Persister{
		httpClient:  httpClient,
		store:       opts.Store,
		outputs:     opts.Outputs,
		broadcaster: opts.Broadcaster,
		logger:      opts.Logger,
	}
}

// PersistOutputs downloads every result image, writes the batch of output
// rows in one commit and publishes a single outputs event with the full
// current list. It fails hard only when every download failed.
func (p *Persister) PersistOutputs(ctx context.Context, generationID string, images []domain.ResultImage) ([]domain.Output, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("persist: no images to persist")
	}

	day := time.Now().UTC().Format("2006-01-02")
	outputs := make([]domain.Output, 0, len(images))
	succeeded := 0

	for idx, img := range images {
		out := domain.Output{
			ID:           uuid.NewString(),
			GenerationID: generationID,
			Index:        idx,
			RemoteURL:    img.URL,
		}
		if img.ContentType != "" {
			ct := img.ContentType
			out.ContentType = &ct
		}
		if img.Width > 0 {
			w := img.Width
			out.Width = &w
		}
		if img.Height > 0 {
			h := img.Height
			out.Height = &h
		}

		key := fmt.Sprintf("%s/%s-%d%s", day, generationID, idx, extensionFor(img.ContentType, img.URL))
		localPath, size, err := p.download(ctx, img.URL, key)
		if err != nil {
			p.logger.Warn().Err(err).
				Str("generation_id", generationID).
				Int("output_index", idx).
				Msg("persist: output download failed")
		} else {
			out.LocalPath = &localPath
			out.FileSize = &size
			succeeded++
		}
		outputs = append(outputs, out)
	}

	if succeeded == 0 {
		return nil, fmt.Errorf("persist: %w (%d images)", domain.ErrAllDownloadsFailed, len(images))
	}

	if err := p.outputs.CreateBatch(ctx, outputs); err != nil {
		return nil, fmt.Errorf("persist: insert outputs: %w", err)
	}

	current, err := p.outputs.ListByGenerationID(ctx, generationID)
	if err != nil {
		return nil, fmt.Errorf("persist: reload outputs: %w", err)
	}
	if p.broadcaster != nil {
		p.broadcaster.Publish(events.Event{
			Type:         events.TypeOutputs,
			GenerationID: generationID,
			Outputs:      current,
		})
	}
	return current, nil
}

func (p *Persister) download(ctx context.Context, remoteURL, key string) (string, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remoteURL, nil)
	if err != nil {
		return "", 0, fmt.Errorf("build download request: %w", err)
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", 0, fmt.Errorf("download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, fmt.Errorf("read image: %w", err)
	}
	savedKey, err := p.store.Write(ctx, key, data)
	if err != nil {
		return "", 0, err
	}
	return savedKey, int64(len(data)), nil
}

// extensionFor picks a file extension from the declared content type, then
// the URL path, defaulting to .png.
func extensionFor(contentType, remoteURL string) string {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	}
	if parsed, err := url.Parse(remoteURL); err == nil {
		if ext := strings.ToLower(path.Ext(parsed.Path)); ext != "" {
			switch ext {
			case ".png", ".jpg", ".jpeg", ".webp", ".gif":
				return ext
			}
		}
	}
	return ".png"
}

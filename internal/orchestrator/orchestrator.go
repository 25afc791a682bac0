package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/KianaMei/genqueue/internal/domain"
	"github.com/KianaMei/genqueue/internal/events"
	"github.com/KianaMei/genqueue/internal/infra"
	"github.com/KianaMei/genqueue/internal/provider"
	"github.com/KianaMei/genqueue/internal/storage"
)

const defaultPollInterval = 2 * time.Second

// OutputPersister downloads and records a completed generation's images.
type OutputPersister interface {
	PersistOutputs(ctx context.Context, generationID string, images []domain.ResultImage) ([]domain.Output, error)
}

// Orchestrator owns the table of in-flight generation tasks and drives each
// one through the provider's queue protocol. It is the sole mutator of both
// the active table and every non-terminal generation row.
type Orchestrator struct {
	registry    *provider.Registry
	generations domain.GenerationRepository
	outputs     domain.OutputRepository
	persister   OutputPersister
	broadcaster *events.Broadcaster
	store       *storage.FileStore
	logger      infra.Logger

	pollInterval time.Duration
	limits       Limits

	mu     sync.Mutex
	active map[string]*activeJob
}

// Options wires the orchestrator's collaborators.
type Options struct {
	Registry     *provider.Registry
	Generations  domain.GenerationRepository
	Outputs      domain.OutputRepository
	Persister    OutputPersister
	Broadcaster  *events.Broadcaster
	Store        *storage.FileStore
	Logger       infra.Logger
	PollInterval time.Duration
	Limits       Limits
}

// New constructs an Orchestrator.
func New(opts Options) *Orchestrator {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	limits := opts.Limits
	if limits == (Limits{}) {
		limits = DefaultLimits()
	}
	return &Orchestrator{
		registry:     opts.Registry,
		generations:  opts.Generations,
		outputs:      opts.Outputs,
		persister:    opts.Persister,
		broadcaster:  opts.Broadcaster,
		store:        opts.Store,
		logger:       opts.Logger,
		pollInterval: interval,
		limits:       limits,
		active:       make(map[string]*activeJob),
	}
}

// SubmitRequest is a caller's generation request before validation.
type SubmitRequest struct {
	ProviderID string
	Prompt     string
	Inputs     []domain.InputSource
	Options    domain.RequestOptions
	// APIKey optionally overrides the stored credential for this request
	// only. An empty value never shadows a stored key.
	APIKey string
}

// Submit validates the request, persists a queued generation and starts its
// execution task without waiting for it. The returned snapshot reflects the
// freshly created row.
func (o *Orchestrator) Submit(ctx context.Context, req SubmitRequest) (*domain.Generation, error) {
	if err := o.validate(req); err != nil {
		return nil, err
	}

	cfg, adapter, err := o.registry.Resolve(req.ProviderID)
	if err != nil {
		return nil, err
	}
	credential, err := o.registry.ResolveCredential(ctx, req.ProviderID, req.APIKey)
	if err != nil {
		return nil, err
	}
	if credential == "" && cfg.Type == provider.TypeQueue {
		return nil, valErr("no api key configured for provider %q", cfg.ID)
	}

	refs, err := resolveInputs(req.Inputs)
	if err != nil {
		return nil, valErr("input resolution failed: %v", err)
	}

	gen := &domain.Generation{
		ID:           uuid.NewString(),
		ProviderID:   cfg.ID,
		ProviderType: string(cfg.Type),
		Prompt:       req.Prompt,
		Inputs:       req.Inputs,
		Options:      req.Options,
		Status:       domain.StatusQueued,
		Logs:         []string{"generation created"},
	}
	if err := o.generations.Create(ctx, gen); err != nil {
		return nil, fmt.Errorf("create generation: %w", err)
	}

	aj := o.register(gen.ID, adapter, credential)
	aj.markSeen(gen.Logs[0])
	go o.run(gen.ID, aj, refs)

	o.logger.Info().
		Str("generation_id", gen.ID).
		Str("provider", cfg.ID).
		Msg("orchestrator: generation submitted")

	created, err := o.generations.GetByID(ctx, gen.ID)
	if err != nil {
		return gen, nil
	}
	return created, nil
}

// Cancel requests cooperative cancellation of a generation. Cancelling an
// already-terminal generation succeeds without side effects.
func (o *Orchestrator) Cancel(ctx context.Context, generationID string) error {
	gen, err := o.generations.GetByID(ctx, generationID)
	if err != nil {
		return err
	}
	if gen.Status.IsTerminal() {
		return nil
	}

	adapter, credential, err := o.resolveForCancel(ctx, gen)
	if err != nil {
		return err
	}
	if gen.Queue.CancelURL != "" {
		if err := adapter.Cancel(ctx, credential, gen.Queue.CancelURL); err != nil {
			return fmt.Errorf("cancel with provider: %w", err)
		}
	}

	if aj, ok := o.lookup(generationID); ok {
		aj.cancelRequested.Store(true)
		aj.cancel()
	}

	gen.Logs = append(gen.Logs, "cancellation requested")
	o.finish(gen, domain.StatusCancelled, "")
	return nil
}

// Retry re-submits a historical generation with the same provider, prompt,
// inputs and options, producing a brand-new id. The original row is left
// untouched.
func (o *Orchestrator) Retry(ctx context.Context, generationID string) (*domain.Generation, error) {
	gen, err := o.generations.GetByID(ctx, generationID)
	if err != nil {
		return nil, err
	}
	return o.Submit(ctx, SubmitRequest{
		ProviderID: gen.ProviderID,
		Prompt:     gen.Prompt,
		Inputs:     gen.Inputs,
		Options:    gen.Options,
	})
}

// List pages through generation history, newest first.
func (o *Orchestrator) List(ctx context.Context, filter domain.ListFilter) ([]domain.Generation, error) {
	return o.generations.List(ctx, filter)
}

// Get loads one generation with its outputs.
func (o *Orchestrator) Get(ctx context.Context, generationID string) (*domain.Generation, error) {
	return o.generations.GetByID(ctx, generationID)
}

// Delete removes a generation from history, optionally deleting its on-disk
// output files first. A running task notices the missing row at the next
// poll and stops silently.
func (o *Orchestrator) Delete(ctx context.Context, generationID string, deleteFiles bool) error {
	gen, err := o.generations.GetByID(ctx, generationID)
	if err != nil {
		return err
	}
	if deleteFiles {
		for _, out := range gen.Outputs {
			if out.LocalPath == nil {
				continue
			}
			if err := o.store.Remove(*out.LocalPath); err != nil {
				o.logger.Warn().Err(err).
					Str("generation_id", generationID).
					Int("output_index", out.Index).
					Msg("orchestrator: delete output file failed")
			}
		}
	}
	return o.generations.Delete(ctx, generationID)
}

// DeleteOutput removes a single output row, optionally with its file, then
// republishes the generation's remaining outputs.
func (o *Orchestrator) DeleteOutput(ctx context.Context, generationID string, index int, deleteFiles bool) error {
	out, err := o.outputs.GetByIndex(ctx, generationID, index)
	if err != nil {
		return err
	}
	if deleteFiles && out.LocalPath != nil {
		if err := o.store.Remove(*out.LocalPath); err != nil {
			o.logger.Warn().Err(err).
				Str("generation_id", generationID).
				Int("output_index", index).
				Msg("orchestrator: delete output file failed")
		}
	}
	if err := o.outputs.DeleteByIndex(ctx, generationID, index); err != nil {
		return err
	}
	remaining, err := o.outputs.ListByGenerationID(ctx, generationID)
	if err != nil {
		return err
	}
	o.broadcaster.Publish(events.Event{
		Type:         events.TypeOutputs,
		GenerationID: generationID,
		Outputs:      remaining,
	})
	return nil
}

// Reconcile fails every non-terminal row left behind by a previous process.
// Must run before any new task starts.
func (o *Orchestrator) Reconcile(ctx context.Context) error {
	ids, err := o.generations.MarkInterrupted(ctx, "interrupted by restart")
	if err != nil {
		return fmt.Errorf("reconcile orphaned generations: %w", err)
	}
	if len(ids) > 0 {
		o.logger.Warn().
			Int("count", len(ids)).
			Strs("generation_ids", ids).
			Msg("orchestrator: marked orphaned generations failed")
	}
	return nil
}

// resolveForCancel prefers the adapter and credential captured at submit
// time; for jobs without an active context it re-resolves from the registry.
func (o *Orchestrator) resolveForCancel(ctx context.Context, gen *domain.Generation) (provider.Adapter, string, error) {
	if aj, ok := o.lookup(gen.ID); ok {
		return aj.adapter, aj.credential, nil
	}
	_, adapter, err := o.registry.Resolve(gen.ProviderID)
	if err != nil {
		return nil, "", err
	}
	credential, err := o.registry.ResolveCredential(ctx, gen.ProviderID, "")
	if err != nil {
		return nil, "", err
	}
	return adapter, credential, nil
}

var errDeletedConcurrently = errors.New("generation deleted concurrently")

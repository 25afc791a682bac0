package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/KianaMei/genqueue/internal/domain"
	"github.com/KianaMei/genqueue/internal/events"
	"github.com/KianaMei/genqueue/internal/provider"
)

// run is the outer boundary of one execution task. Every error inside the
// task resolves to a terminal status here, and the active context is removed
// on all paths.
func (o *Orchestrator) run(id string, aj *activeJob, refs []string) {
	defer o.release(id)

	err := o.execute(id, aj, refs)
	switch {
	case err == nil:
	case errors.Is(err, errDeletedConcurrently):
		o.logger.Debug().Str("generation_id", id).Msg("orchestrator: generation deleted mid-flight")
	case errors.Is(err, context.Canceled) && aj.cancelRequested.Load():
		o.finishByID(id, domain.StatusCancelled, "")
	default:
		o.finishByID(id, domain.StatusFailed, err.Error())
	}
}

// execute drives submit → poll → resolve for one generation. The job context
// is threaded into every provider call and the inter-poll sleep; persistence
// uses the background context so a cancelled job can still record its state.
func (o *Orchestrator) execute(id string, aj *activeJob, refs []string) error {
	ctx := aj.ctx

	gen, err := o.reload(id)
	if err != nil {
		return err
	}

	handle, err := aj.adapter.Submit(ctx, aj.credential, provider.SubmitInput{
		Prompt:    gen.Prompt,
		InputRefs: refs,
		Options:   gen.Options,
	})
	if err != nil {
		return err
	}
	gen.Queue = handle
	o.appendLog(gen, aj, "submitted to provider queue")
	if err := o.generations.Update(context.Background(), gen); err != nil {
		return err
	}

	for {
		if err := sleep(ctx, o.pollInterval); err != nil {
			return err
		}

		gen, err = o.reload(id)
		if err != nil {
			return err
		}

		snapshot, err := aj.adapter.PollStatus(ctx, aj.credential, gen.Queue.StatusURL)
		if err != nil {
			return err
		}

		changed := false
		for _, line := range snapshot.Logs {
			if o.appendLog(gen, aj, line) {
				changed = true
			}
		}

		if !snapshot.Done {
			if snapshot.Status != gen.Status {
				gen.Status = snapshot.Status
				changed = true
				o.broadcaster.Publish(events.Event{
					Type:         events.TypeStatus,
					GenerationID: id,
					Status:       snapshot.Status,
				})
			}
			if changed {
				if err := o.generations.Update(context.Background(), gen); err != nil {
					return err
				}
			}
			continue
		}

		if changed {
			if err := o.generations.Update(context.Background(), gen); err != nil {
				return err
			}
		}

		switch snapshot.Status {
		case domain.StatusCompleted:
			result, err := aj.adapter.GetResult(ctx, aj.credential, gen.Queue.ResponseURL)
			if err != nil {
				return err
			}
			if _, err := o.persister.PersistOutputs(ctx, id, result.Images); err != nil {
				return err
			}
			o.finishByID(id, domain.StatusCompleted, "")
			return nil
		case domain.StatusCancelled:
			o.finishByID(id, domain.StatusCancelled, "")
			return nil
		default:
			msg := snapshot.ErrorMessage
			if msg == "" {
				msg = "provider reported failure (" + snapshot.RawStatus + ")"
			}
			o.finishByID(id, domain.StatusFailed, msg)
			return nil
		}
	}
}

// reload re-reads the row; a missing row means it was deleted concurrently
// and the task should stop silently.
func (o *Orchestrator) reload(id string) (*domain.Generation, error) {
	gen, err := o.generations.GetByID(context.Background(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, errDeletedConcurrently
		}
		return nil, err
	}
	return gen, nil
}

// appendLog records a log line unless the job already emitted it, and
// publishes a log event for each genuinely new line.
func (o *Orchestrator) appendLog(gen *domain.Generation, aj *activeJob, line string) bool {
	if line == "" || !aj.markSeen(line) {
		return false
	}
	gen.Logs = append(gen.Logs, line)
	o.broadcaster.Publish(events.Event{
		Type:         events.TypeLog,
		GenerationID: gen.ID,
		Log:          line,
	})
	return true
}

// finishByID resolves a generation to a terminal state unless it already is
// terminal. Terminal rows are never mutated again.
func (o *Orchestrator) finishByID(id string, status domain.Status, errMsg string) {
	gen, err := o.generations.GetByID(context.Background(), id)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			o.logger.Error().Err(err).Str("generation_id", id).Msg("orchestrator: load generation for finish failed")
		}
		return
	}
	if gen.Status.IsTerminal() {
		return
	}
	o.finish(gen, status, errMsg)
}

func (o *Orchestrator) finish(gen *domain.Generation, status domain.Status, errMsg string) {
	ctx := context.Background()
	now := time.Now().UTC()
	gen.Status = status
	gen.ErrorMessage = errMsg
	gen.FinishedAt = &now

	var evType events.Type
	switch status {
	case domain.StatusCompleted:
		evType = events.TypeCompleted
		gen.Logs = append(gen.Logs, "generation completed")
	case domain.StatusCancelled:
		evType = events.TypeCancelled
		gen.Logs = append(gen.Logs, "generation cancelled")
	default:
		evType = events.TypeFailed
		gen.Logs = append(gen.Logs, "generation failed: "+errMsg)
	}

	if err := o.generations.Update(ctx, gen); err != nil {
		o.logger.Error().Err(err).Str("generation_id", gen.ID).Msg("orchestrator: persist terminal status failed")
		return
	}

	snapshot, err := o.generations.GetByID(ctx, gen.ID)
	if err != nil {
		snapshot = gen
	}
	o.broadcaster.Publish(events.Event{
		Type:         evType,
		GenerationID: gen.ID,
		Status:       status,
		Generation:   snapshot,
	})
	o.logger.Info().
		Str("generation_id", gen.ID).
		Str("status", string(status)).
		Msg("orchestrator: generation finished")
}

// sleep waits the poll interval or aborts when the job context is cancelled.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

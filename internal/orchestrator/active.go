package orchestrator

import (
	"context"
	"sync/atomic"

	"github.com/KianaMei/genqueue/internal/provider"
)

// activeJob is the in-memory execution state of one in-flight generation.
// It exists only while the owning task runs; the table entry is removed on
// every exit path.
type activeJob struct {
	ctx             context.Context
	cancel          context.CancelFunc
	adapter         provider.Adapter
	credential      string
	cancelRequested atomic.Bool

	// seen dedups log lines for the job's lifetime. Only the owning task
	// goroutine touches it.
	seen map[string]struct{}
}

func (a *activeJob) markSeen(line string) bool {
	if _, ok := a.seen[line]; ok {
		return false
	}
	a.seen[line] = struct{}{}
	return true
}

// register creates the active context for a generation. The caller owns the
// id (a fresh uuid), so there is never a second context for the same one.
func (o *Orchestrator) register(id string, adapter provider.Adapter, credential string) *activeJob {
	ctx, cancel := context.WithCancel(context.Background())
	aj := &activeJob{
		ctx:        ctx,
		cancel:     cancel,
		adapter:    adapter,
		credential: credential,
		seen:       make(map[string]struct{}),
	}
	o.mu.Lock()
	o.active[id] = aj
	o.mu.Unlock()
	return aj
}

func (o *Orchestrator) lookup(id string) (*activeJob, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	aj, ok := o.active[id]
	return aj, ok
}

// release removes the active context and cancels its execution context so no
// in-flight call outlives the task.
func (o *Orchestrator) release(id string) {
	o.mu.Lock()
	aj, ok := o.active[id]
	delete(o.active, id)
	o.mu.Unlock()
	if ok {
		aj.cancel()
	}
}

// ActiveCount reports how many generations currently have an execution task.
func (o *Orchestrator) ActiveCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active)
}

package events

import (
	"sync"
	"time"

	"github.com/KianaMei/genqueue/internal/domain"
	"github.com/KianaMei/genqueue/internal/infra"
)

// Type enumerates the progress event kinds published by the orchestrator.
type Type string

const (
	TypeStatus    Type = "status"
	TypeLog       Type = "log"
	TypeOutputs   Type = "outputs"
	TypeCompleted Type = "completed"
	TypeFailed    Type = "failed"
	TypeCancelled Type = "cancelled"
)

// Event carries the generation id, a timestamp and a type-specific payload.
type Event struct {
	Type         Type               `json:"type"`
	GenerationID string             `json:"generation_id"`
	At           time.Time          `json:"at"`
	Status       domain.Status      `json:"status,omitempty"`
	Log          string             `json:"log,omitempty"`
	Outputs      []domain.Output    `json:"outputs,omitempty"`
	Generation   *domain.Generation `json:"generation,omitempty"`
}

const subscriberBuffer = 64

// Broadcaster fans progress events out to subscribers. Delivery is
// best-effort: a subscriber that cannot keep up loses events rather than
// blocking the publisher.
type Broadcaster struct {
	mu     sync.Mutex
	subs   map[int]chan Event
	nextID int
	logger infra.Logger
}

// NewBroadcaster constructs an empty broadcaster.
func NewBroadcaster(logger infra.Logger) *Broadcaster {
	return &Broadcaster{
		subs:   make(map[int]chan Event),
		logger: logger,
	}
}

// Subscribe registers a new observer. The returned func removes the
// subscription and closes its channel.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber without blocking.
func (b *Broadcaster) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.logger.Debug().
				Int("subscriber", id).
				Str("event_type", string(ev.Type)).
				Str("generation_id", ev.GenerationID).
				Msg("events: subscriber buffer full, dropping event")
		}
	}
}

package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gantryio/gantry/pkg/domain"
)

// Log implements ports.Notifier by writing events to a structured logger.
// Useful as a default sink when no delivery collaborator is wired.
type Log struct {
	Logger *slog.Logger
}

// Emit logs the event.
func (l *Log) Emit(ctx context.Context, event domain.TransitionEvent) error {
	l.Logger.Info("transition event",
		"entity_type", string(event.EntityType),
		"entity_id", event.EntityID,
		"old_status", string(event.OldStatus),
		"new_status", string(event.NewStatus),
		"actor", event.ActorID,
	)
	return nil
}

// Bus implements ports.Notifier as an in-process fan-out to subscribers.
// The HTTP SSE feed subscribes here. Slow subscribers drop events rather
// than back-pressuring the engine: notification is best-effort by contract.
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan domain.TransitionEvent
	next int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan domain.TransitionEvent)}
}

// Emit delivers the event to every subscriber without blocking.
func (b *Bus) Emit(ctx context.Context, event domain.TransitionEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			// Subscriber buffer full; drop.
		}
	}
	return nil
}

// Subscribe registers a new subscriber. The returned cancel function must
// be called to unregister and close the channel.
func (b *Bus) Subscribe() (<-chan domain.TransitionEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan domain.TransitionEvent, 64)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if _, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Multi fans out to several notifiers in order; the first error is
// returned after all notifiers have been attempted.
type Multi []interface {
	Emit(ctx context.Context, event domain.TransitionEvent) error
}

// Emit delivers to every notifier.
func (m Multi) Emit(ctx context.Context, event domain.TransitionEvent) error {
	var first error
	for _, n := range m {
		if err := n.Emit(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

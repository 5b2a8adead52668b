package syncer

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event is one of the closed set of sync lifecycle notifications.
type Event string

const (
	// EventSyncStarted fires synchronously when a cycle begins.
	EventSyncStarted Event = "syncStarted"

	// EventSyncFinished fires when a cycle completes successfully.
	EventSyncFinished Event = "syncFinished"

	// EventSyncFailed fires when a cycle aborts on a fatal failure.
	EventSyncFailed Event = "syncFailed"
)

// Payload accompanies every event delivery.
type Payload struct {
	Event   Event
	Trigger Trigger
	At      time.Time

	// Result is the cycle's outcome. Nil for EventSyncStarted.
	Result *SyncResult
}

// Handler receives event payloads. Handlers run synchronously on the sync
// goroutine; keep them short.
type Handler func(Payload)

type subscription struct {
	id      int
	handler Handler
}

// Bus is a typed publish/subscribe channel for sync lifecycle events.
//
// Handlers for an event run in registration order. A panicking handler is
// recovered and logged; it never prevents the remaining handlers from
// running, and never aborts a sync cycle.
type Bus struct {
	mu     sync.Mutex
	nextID int
	subs   map[Event][]subscription
	logger *zap.Logger
}

// NewBus creates an event bus. If logger is nil a no-op logger is used.
func NewBus(logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{
		subs:   make(map[Event][]subscription),
		logger: logger,
	}
}

// On registers a handler for an event and returns its unsubscribe function.
// Unsubscribing twice is a no-op.
func (b *Bus) On(event Event, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.subs[event] = append(b.subs[event], subscription{id: id, handler: handler})

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		subs := b.subs[event]
		for i, s := range subs {
			if s.id == id {
				b.subs[event] = append(subs[:i:i], subs[i+1:]...)
				return
			}
		}
	}
}

// ListenerCount returns the number of registered handlers across all events.
func (b *Bus) ListenerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	count := 0
	for _, subs := range b.subs {
		count += len(subs)
	}
	return count
}

// Emit delivers the payload to every handler registered for the event.
func (b *Bus) Emit(payload Payload) {
	if payload.At.IsZero() {
		payload.At = time.Now().UTC()
	}

	b.mu.Lock()
	subs := make([]subscription, len(b.subs[payload.Event]))
	copy(subs, b.subs[payload.Event])
	b.mu.Unlock()

	for _, s := range subs {
		b.deliver(s, payload)
	}
}

func (b *Bus) deliver(s subscription, payload Payload) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("sync event handler panicked",
				zap.String("event", string(payload.Event)),
				zap.Any("panic", r))
		}
	}()
	s.handler(payload)
}

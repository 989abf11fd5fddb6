package hooks

import (
	"context"
	"errors"
	"sync"
)

type (
	// Bus fans events out to registered subscribers, stopping at the first
	// subscriber error. The order in which subscribers are called is not
	// defined and can differ between Publish calls. Dispatcher layers run-level
	// and agent-level dispatch on top of two Bus instances.
	Bus interface {
		// Publish delivers event to every currently registered subscriber,
		// stopping and returning the first error a subscriber produces.
		Publish(ctx context.Context, event Event) error

		// Register adds sub to the bus, returning a Subscription that
		// unregisters it on Close. Errors if sub is nil.
		Register(sub Subscriber) (Subscription, error)
	}

	// Subscriber reacts to events published on a Bus.
	Subscriber interface {
		// HandleEvent processes one event. A returned error stops that
		// Publish call's fan-out to any remaining subscribers.
		HandleEvent(ctx context.Context, event Event) error
	}

	// Subscription is an active registration; Close is idempotent.
	Subscription interface {
		Close() error
	}

	bus struct {
		mu          sync.RWMutex
		subscribers map[*subscription]Subscriber
	}

	subscription struct {
		bus  *bus
		once sync.Once
	}
)

// NewBus constructs an empty in-memory Bus.
func NewBus() Bus {
	return &bus{subscribers: make(map[*subscription]Subscriber)}
}

// Publish snapshots the current subscriber set under a read lock, then
// invokes each (in map iteration order, not registration order) outside
// the lock so a subscriber
// registering or closing mid-dispatch can't deadlock against it.
func (b *bus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	subs := make([]Subscriber, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.HandleEvent(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

// Register adds sub under a write lock and returns its Subscription handle.
func (b *bus) Register(sub Subscriber) (Subscription, error) {
	if sub == nil {
		return nil, errors.New("hooks: subscriber is required")
	}
	s := &subscription{bus: b}
	b.mu.Lock()
	b.subscribers[s] = sub
	b.mu.Unlock()
	return s, nil
}

// Close unregisters the subscription. Safe to call more than once.
func (s *subscription) Close() error {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subscribers, s)
		s.bus.mu.Unlock()
	})
	return nil
}

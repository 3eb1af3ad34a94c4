package events

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/kode4food/cascade/pkg/api"
	"github.com/kode4food/cascade/pkg/log"
)

type (
	// Listener receives published events
	Listener interface {
		HandleEvent(api.Event) error
	}

	// ListenerFunc adapts a function to the Listener interface
	ListenerFunc func(api.Event) error

	// Bus fans events out to its current subscribers in subscription order
	Bus struct {
		subs []*Subscription
		mu   sync.RWMutex
	}

	// Subscription is the handle returned by Subscribe
	Subscription struct {
		bus      *Bus
		listener Listener
		once     sync.Once
	}
)

// Discard is a Listener that ignores every event
var Discard Listener = ListenerFunc(func(api.Event) error { return nil })

// HandleEvent calls the wrapped function
func (fn ListenerFunc) HandleEvent(ev api.Event) error {
	return fn(ev)
}

// NewBus creates an empty event bus
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a listener and returns its subscription handle
func (b *Bus) Subscribe(l Listener) *Subscription {
	sub := &Subscription{
		bus:      b,
		listener: l,
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, sub)
	return sub
}

// Cancel removes the subscription from its bus. Calling it more than once
// has no effect
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.bus.remove(s)
	})
}

// Publish delivers the event to every current subscriber
func (b *Bus) Publish(ev api.Event) {
	b.mu.RLock()
	subs := slices.Clone(b.subs)
	b.mu.RUnlock()

	for _, sub := range subs {
		if err := deliver(sub.listener, ev); err != nil {
			slog.Warn("Event listener failed",
				slog.String("event_type", string(ev.Type)),
				log.RunID(ev.RunID),
				log.Error(err))
		}
	}
}

// HandleEvent republishes the event, allowing buses to be chained
func (b *Bus) HandleEvent(ev api.Event) error {
	b.Publish(ev)
	return nil
}

// Len returns the number of current subscribers
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = slices.DeleteFunc(b.subs, func(s *Subscription) bool {
		return s == sub
	})
}

func deliver(l Listener, ev api.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrListenerPanicked, r)
		}
	}()
	return l.HandleEvent(ev)
}

package events

import (
	"slices"
	"sync"

	"github.com/kode4food/cascade/pkg/api"
)

// Recorder is a Listener that keeps every event it receives
type Recorder struct {
	events []api.Event
	mu     sync.Mutex
}

// NewRecorder creates an empty Recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// HandleEvent appends the event
func (r *Recorder) HandleEvent(ev api.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded events in arrival order
func (r *Recorder) Events() []api.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.events)
}

// Types returns the recorded event types in arrival order
func (r *Recorder) Types() []api.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]api.EventType, len(r.events))
	for i, ev := range r.events {
		res[i] = ev.Type
	}
	return res
}

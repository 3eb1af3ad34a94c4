package flow

import (
	"time"

	"github.com/kode4food/cascade/pkg/api"
)

// Result is the outcome of a run. State and Outputs are as of the last
// settled tick
type Result struct {
	RunID      api.RunID
	Flow       string
	Status     api.FlowStatus
	State      api.Values
	Revision   uint64
	Outputs    api.Outputs
	Events     []api.Event
	Err        error
	FailedStep api.StepName
}

// Snapshot converts the result into the persisted snapshot format
func (r *Result) Snapshot() *api.Snapshot {
	return &api.Snapshot{
		SavedAt:  r.finishedAt(),
		RunID:    r.RunID,
		Flow:     r.Flow,
		Status:   r.Status,
		Values:   r.State.Clone(),
		Outputs:  r.Outputs.Clone(),
		Revision: r.Revision,
	}
}

// EventTypes returns the types of the emitted events in order
func (r *Result) EventTypes() []api.EventType {
	res := make([]api.EventType, len(r.Events))
	for i, ev := range r.Events {
		res[i] = ev.Type
	}
	return res
}

func (r *Result) finishedAt() time.Time {
	if len(r.Events) == 0 {
		return time.Time{}
	}
	return r.Events[len(r.Events)-1].Timestamp
}

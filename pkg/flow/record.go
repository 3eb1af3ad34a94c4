package flow

import (
	"slices"

	"github.com/kode4food/cascade/pkg/api"
	"github.com/kode4food/cascade/pkg/util"
)

type (
	// record is the bookkeeping of a single run. It is only touched by the
	// scheduler goroutine
	record struct {
		outputs   api.Outputs
		failures  map[api.StepName]error
		completed map[api.StepName]int
		runs      map[api.StepName]int
		inFlight  util.Set[api.StepName]
		fired     map[api.StepName]map[int]firing
		events    []api.Event
		sequence  int64
	}

	// firing is a source of a consumer that fired since the consumer last
	// started, with the value it delivered
	firing struct {
		step  api.StepName
		value any
	}
)

func newRecord() *record {
	return &record{
		outputs:   api.Outputs{},
		failures:  map[api.StepName]error{},
		completed: map[api.StepName]int{},
		runs:      map[api.StepName]int{},
		inFlight:  util.Set[api.StepName]{},
		fired:     map[api.StepName]map[int]firing{},
	}
}

// start marks the step in flight and consumes its fired sources as inputs
func (r *record) start(name api.StepName) Inputs {
	in := Inputs{}
	for _, f := range r.fired[name] {
		in[f.step] = f.value
	}
	delete(r.fired, name)
	r.runs[name]++
	r.inFlight.Add(name)
	return in
}

func (r *record) complete(name api.StepName, out any) {
	r.inFlight.Remove(name)
	r.outputs[name] = out
	r.completed[name]++
}

func (r *record) fail(name api.StepName, err error) {
	r.inFlight.Remove(name)
	r.failures[name] = err
}

func (r *record) abandon(name api.StepName) {
	r.inFlight.Remove(name)
}

func (r *record) fire(consumer api.StepName, idx int, f firing) {
	srcs, ok := r.fired[consumer]
	if !ok {
		srcs = map[int]firing{}
		r.fired[consumer] = srcs
	}
	srcs[idx] = f
}

func (r *record) firedCount(name api.StepName) int {
	return len(r.fired[name])
}

func (r *record) ran() bool {
	return len(r.runs) > 0
}

func (r *record) append(ev api.Event) api.Event {
	r.sequence++
	ev.Sequence = r.sequence
	r.events = append(r.events, ev)
	return ev
}

func (r *record) eventLog() []api.Event {
	return slices.Clone(r.events)
}

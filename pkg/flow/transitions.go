package flow

import (
	"github.com/kode4food/cascade/pkg/api"
	"github.com/kode4food/cascade/pkg/util"
)

// StateTransitions maps states to their set of valid next states
type StateTransitions[T comparable] map[T]util.Set[T]

var flowTransitions = StateTransitions[api.FlowStatus]{
	api.FlowIdle: util.SetOf(
		api.FlowRunning,
	),
	api.FlowRunning: util.SetOf(
		api.FlowCompleted,
		api.FlowFailed,
		api.FlowCancelled,
	),
	api.FlowCompleted: {},
	api.FlowFailed:    {},
	api.FlowCancelled: {},
}

// CanTransition returns whether transition from one state to another is valid
func (t StateTransitions[T]) CanTransition(from, to T) bool {
	allowed, ok := t[from]
	if !ok {
		return false
	}
	return allowed.Contains(to)
}

// IsTerminal returns true if the state has no valid transitions
func (t StateTransitions[T]) IsTerminal(state T) bool {
	allowed, ok := t[state]
	return ok && allowed.IsEmpty()
}

// IsTerminal reports whether a run in this status has finished
func IsTerminal(status api.FlowStatus) bool {
	return flowTransitions.IsTerminal(status)
}

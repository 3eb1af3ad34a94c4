package api

import "time"

type (
	// EventType identifies a lifecycle transition of a flow run
	EventType string

	// Event is emitted at every lifecycle transition of a flow run. Step and
	// Label are empty for flow-level events
	Event struct {
		Timestamp time.Time `json:"timestamp"`
		Type      EventType `json:"type"`
		RunID     RunID     `json:"run_id"`
		Flow      string    `json:"flow"`
		Step      StepName  `json:"step,omitempty"`
		Label     Label     `json:"label,omitempty"`
		Error     string    `json:"error,omitempty"`
		Revision  uint64    `json:"revision"`
		Sequence  int64     `json:"sequence"`
	}
)

const (
	EventTypeFlowStarted   EventType = "flow_started"
	EventTypeStepStarted   EventType = "step_started"
	EventTypeStepCompleted EventType = "step_completed"
	EventTypeStepFailed    EventType = "step_failed"
	EventTypeFlowCompleted EventType = "flow_completed"
	EventTypeFlowFailed    EventType = "flow_failed"
	EventTypeFlowCancelled EventType = "flow_cancelled"
)

// IsTerminal reports whether the event ends a flow run
func (t EventType) IsTerminal() bool {
	switch t {
	case EventTypeFlowCompleted, EventTypeFlowFailed, EventTypeFlowCancelled:
		return true
	default:
		return false
	}
}

// IsStepEvent reports whether the event concerns a single step
func (t EventType) IsStepEvent() bool {
	switch t {
	case EventTypeStepStarted, EventTypeStepCompleted, EventTypeStepFailed:
		return true
	default:
		return false
	}
}

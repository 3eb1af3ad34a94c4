package api

import (
	"maps"
	"time"
)

type (
	// Values is the open key/value content of a flow state
	Values map[string]any

	// Outputs holds the most recent output recorded for each step
	Outputs map[StepName]any

	// Snapshot is an immutable, serializable copy of a flow run's state. It
	// is the format handed to persistence backends and telemetry
	Snapshot struct {
		SavedAt  time.Time  `json:"saved_at"`
		RunID    RunID      `json:"run_id"`
		Flow     string     `json:"flow"`
		Status   FlowStatus `json:"status"`
		Values   Values     `json:"values"`
		Outputs  Outputs    `json:"outputs,omitempty"`
		Revision uint64     `json:"revision"`
	}
)

// Clone returns a deep copy of the values
func (v Values) Clone() Values {
	res := make(Values, len(v))
	for k, val := range v {
		res[k] = CloneValue(val)
	}
	return res
}

// Clone returns a copy of the outputs
func (o Outputs) Clone() Outputs {
	res := make(Outputs, len(o))
	for k, val := range o {
		res[k] = CloneValue(val)
	}
	return res
}

// CloneValue deep copies maps and slices produced by JSON decoding or by
// step code. Other values are returned as-is
func CloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		res := make(map[string]any, len(v))
		for k, val := range v {
			res[k] = CloneValue(val)
		}
		return res
	case Values:
		return v.Clone()
	case []any:
		res := make([]any, len(v))
		for i, val := range v {
			res[i] = CloneValue(val)
		}
		return res
	default:
		return v
	}
}

// WithValues returns a copy of the snapshot carrying extra values
func (s *Snapshot) WithValues(extra Values) *Snapshot {
	res := *s
	res.Values = s.Values.Clone()
	maps.Copy(res.Values, extra)
	return &res
}

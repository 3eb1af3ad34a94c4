package api

type (
	// ErrorResponse is the body of every failed HTTP request
	ErrorResponse struct {
		Error  string `json:"error"`
		Status int    `json:"status"`
	}

	// HealthResponse reports host liveness
	HealthResponse struct {
		Status  string `json:"status"`
		Flows   int    `json:"flows"`
		Running int    `json:"running"`
	}

	// StepInfo describes one step of a flow graph
	StepInfo struct {
		Name    StepName    `json:"name"`
		Kind    TriggerKind `json:"kind"`
		Trigger string      `json:"trigger,omitempty"`
		Reentry int         `json:"reentry,omitempty"`
	}

	// FlowInfo describes a hosted flow
	FlowInfo struct {
		Name        string     `json:"name"`
		Description string     `json:"description,omitempty"`
		Steps       []StepInfo `json:"steps"`
		Graph       string     `json:"graph,omitempty"`
	}

	// FlowsListResponse lists the hosted flows
	FlowsListResponse struct {
		Flows []string `json:"flows"`
		Count int      `json:"count"`
	}

	// StartRunRequest is the body of a run request. Every field is optional
	StartRunRequest struct {
		RunID  RunID  `json:"run_id,omitempty"`
		Resume RunID  `json:"resume,omitempty"`
		Seed   Values `json:"seed,omitempty"`
	}

	// RunStartedResponse returns the ID of an accepted run
	RunStartedResponse struct {
		RunID RunID  `json:"run_id"`
		Flow  string `json:"flow"`
	}

	// RunResponse is the current or final snapshot of a run
	RunResponse struct {
		*Snapshot
		Error      string   `json:"error,omitempty"`
		FailedStep StepName `json:"failed_step,omitempty"`
	}
)

type (
	// SubscribeRequest is a websocket message replacing the client's filter
	SubscribeRequest struct {
		Type string             `json:"type"`
		Data ClientSubscription `json:"data"`
	}

	// ClientSubscription selects the events a websocket client receives.
	// Empty fields match everything
	ClientSubscription struct {
		RunID      RunID       `json:"run_id,omitempty"`
		EventTypes []EventType `json:"event_types,omitempty"`
	}
)

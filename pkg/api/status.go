package api

type (
	// TriggerKind describes what activates a step
	TriggerKind string

	// Mode determines how a step's trigger sources combine
	Mode string

	// FlowStatus represents the lifecycle state of a flow run
	FlowStatus string
)

const (
	TriggerStart  TriggerKind = "start"
	TriggerListen TriggerKind = "listen"
	TriggerRouter TriggerKind = "router"

	ModeAll Mode = "all"
	ModeAny Mode = "any"

	FlowIdle      FlowStatus = "idle"
	FlowRunning   FlowStatus = "running"
	FlowCompleted FlowStatus = "completed"
	FlowFailed    FlowStatus = "failed"
	FlowCancelled FlowStatus = "cancelled"
)

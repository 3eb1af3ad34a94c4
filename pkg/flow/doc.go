// Package flow implements the flow execution engine
//
// A Flow owns a Registry of steps. Each step is activated by a trigger: start
// steps run once when a run begins, listeners run when their Condition is
// satisfied by upstream completions or failures, and routers emit a Label
// that selects which labeled downstream edges fire. Registry.Build validates
// the registrations into an immutable Graph.
//
// Kickoff executes the graph tick by tick. Each tick evaluates triggers,
// starts every newly eligible step concurrently, merges completions in
// arrival order, and settles before the next tick is evaluated. Steps share a
// revisioned State, and every lifecycle transition is published on a per-run
// events.Bus
package flow

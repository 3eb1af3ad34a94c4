// Package events distributes flow lifecycle events to listeners
//
// A Bus is created for every flow run. Listeners are isolated from one
// another: an error or panic in one never prevents delivery to the rest and
// never reaches the run. Telemetry sinks attach through SinkListener
package events

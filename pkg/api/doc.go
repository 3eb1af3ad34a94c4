// Package api defines the core data types shared by the flow engine
//
// This package contains identifiers, trigger and status enumerations, event
// envelopes, and the state snapshot format used for persistence and telemetry
package api

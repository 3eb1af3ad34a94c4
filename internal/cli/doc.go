// Package cli implements the cascade command line: running, validating and
// describing flow documents, inspecting persisted runs, and hosting flows
// over HTTP
package cli

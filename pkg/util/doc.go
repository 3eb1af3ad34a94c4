// Package util provides common utility functions and data structures
//
// This package includes the generic set used by the flow graph, trigger
// evaluation, and status transition tables
package util

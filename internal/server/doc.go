// Package server hosts flows over HTTP and streams run events to websocket
// clients
package server

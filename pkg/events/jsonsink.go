package events

import (
	"encoding/json"
	"io"
	"log/slog"

	"github.com/kode4food/cascade/pkg/api"
	"github.com/kode4food/cascade/pkg/log"
)

// JSONSink writes each event as one line of JSON. It closes the writer on
// Shutdown when the writer is an io.Closer
type JSONSink struct {
	w   io.Writer
	enc *json.Encoder
}

var _ Sink = (*JSONSink)(nil)

// NewJSONSink creates a JSONSink writing to w
func NewJSONSink(w io.Writer) *JSONSink {
	return &JSONSink{
		w:   w,
		enc: json.NewEncoder(w),
	}
}

// Name returns "json"
func (s *JSONSink) Name() string { return "json" }

// Initialize does nothing
func (s *JSONSink) Initialize() error { return nil }

// SubmitEvents writes the batch, reporting false if any write fails
func (s *JSONSink) SubmitEvents(evs []api.Event) bool {
	for _, ev := range evs {
		if err := s.enc.Encode(ev); err != nil {
			slog.Error("Failed to write event",
				log.RunID(ev.RunID),
				log.Error(err))
			return false
		}
	}
	return true
}

// Shutdown closes the writer
func (s *JSONSink) Shutdown() {
	if c, ok := s.w.(io.Closer); ok {
		_ = c.Close()
	}
}

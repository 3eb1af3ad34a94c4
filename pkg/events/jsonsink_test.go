package events_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/cascade/pkg/api"
	"github.com/kode4food/cascade/pkg/events"
)

type (
	closeBuffer struct {
		bytes.Buffer
		closed bool
	}

	failWriter struct{}
)

func (b *closeBuffer) Close() error {
	b.closed = true
	return nil
}

func (failWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestJSONSink(t *testing.T) {
	var buf closeBuffer
	l, err := events.NewSinkListener(events.NewJSONSink(&buf), 2)
	require.NoError(t, err)

	for _, typ := range []api.EventType{
		api.EventTypeFlowStarted,
		api.EventTypeStepStarted,
		api.EventTypeFlowCompleted,
	} {
		require.NoError(t, l.HandleEvent(api.Event{RunID: "r", Type: typ}))
	}
	l.Close()

	assert.True(t, buf.closed)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)

	var last api.Event
	require.NoError(t, json.Unmarshal([]byte(lines[2]), &last))
	assert.Equal(t, api.EventTypeFlowCompleted, last.Type)
	assert.Equal(t, api.RunID("r"), last.RunID)
}

func TestJSONSinkWriteFailure(t *testing.T) {
	sink := events.NewJSONSink(failWriter{})
	assert.Equal(t, "json", sink.Name())
	assert.False(t, sink.SubmitEvents([]api.Event{{RunID: "r"}}))
	assert.NotPanics(t, sink.Shutdown)
}

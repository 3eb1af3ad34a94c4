package events

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/kode4food/caravan"
	"github.com/kode4food/caravan/message"
	"github.com/kode4food/caravan/topic"

	"github.com/kode4food/cascade/pkg/api"
)

type (
	// Sink is the contract for telemetry collaborators that receive batches
	// of events
	Sink interface {
		Name() string
		Initialize() error
		SubmitEvents([]api.Event) bool
		Shutdown()
	}

	// NoopSink accepts every batch and does nothing
	NoopSink struct{}

	// SinkListener queues events and submits them to a Sink in bounded
	// batches on a background goroutine
	SinkListener struct {
		sink      Sink
		prod      topic.Producer[api.Event]
		cons      topic.Consumer[api.Event]
		stop      chan struct{}
		batchSize int
		wg        sync.WaitGroup
		startOnce sync.Once
		stopOnce  sync.Once
	}
)

const (
	DefaultBatchSize = 64

	maxSubmitAttempts = 3
	submitRetryDelay  = 50 * time.Millisecond
	drainWait         = 50 * time.Millisecond
)

var (
	ErrSinkRequired     = errors.New("sink is required")
	ErrSinkInit         = errors.New("sink initialization failed")
	ErrListenerPanicked = errors.New("event listener panicked")
)

var _ Sink = NoopSink{}

// Name returns "noop"
func (NoopSink) Name() string { return "noop" }

// Initialize always succeeds
func (NoopSink) Initialize() error { return nil }

// SubmitEvents always succeeds
func (NoopSink) SubmitEvents([]api.Event) bool { return true }

// Shutdown does nothing
func (NoopSink) Shutdown() {}

// NewSinkListener initializes the sink and starts delivering to it. A
// non-positive batchSize selects DefaultBatchSize
func NewSinkListener(sink Sink, batchSize int) (*SinkListener, error) {
	if sink == nil {
		return nil, ErrSinkRequired
	}
	if err := sink.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSinkInit, sink.Name(), err)
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	queue := caravan.NewTopic[api.Event]()
	l := &SinkListener{
		sink:      sink,
		prod:      queue.NewProducer(),
		cons:      queue.NewConsumer(),
		stop:      make(chan struct{}),
		batchSize: batchSize,
	}
	l.start()
	return l, nil
}

// HandleEvent enqueues the event for submission
func (l *SinkListener) HandleEvent(ev api.Event) error {
	message.Send(l.prod, ev)
	return nil
}

// Close submits the events still in flight and shuts the sink down. It
// returns once the queue has been idle for a short while
func (l *SinkListener) Close() {
	l.stopOnce.Do(func() {
		close(l.stop)
		l.wg.Wait()
		l.drain()
		l.prod.Close()
		l.cons.Close()
		l.sink.Shutdown()
	})
}

func (l *SinkListener) start() {
	l.startOnce.Do(func() {
		l.wg.Go(func() {
			for {
				select {
				case <-l.stop:
					return
				case ev, ok := <-l.cons.Receive():
					if !ok {
						return
					}
					l.submit(l.collectBatch(ev))
				}
			}
		})
	})
}

func (l *SinkListener) collectBatch(first api.Event) []api.Event {
	batch := []api.Event{first}
	for len(batch) < l.batchSize {
		select {
		case ev, ok := <-l.cons.Receive():
			if !ok {
				return batch
			}
			batch = append(batch, ev)
		default:
			return batch
		}
	}
	return batch
}

func (l *SinkListener) drain() {
	for {
		select {
		case ev, ok := <-l.cons.Receive():
			if !ok {
				return
			}
			l.submit(l.collectBatch(ev))
		case <-time.After(drainWait):
			return
		}
	}
}

func (l *SinkListener) submit(batch []api.Event) {
	for attempt := range maxSubmitAttempts {
		if l.trySubmit(batch) {
			return
		}
		slog.Warn("Event sink rejected batch",
			slog.String("sink", l.sink.Name()),
			slog.Int("batch_size", len(batch)),
			slog.Int("attempt", attempt+1))
		if attempt < maxSubmitAttempts-1 {
			time.Sleep(submitRetryDelay)
		}
	}
	slog.Error("Event sink batch dropped",
		slog.String("sink", l.sink.Name()),
		slog.Int("batch_size", len(batch)))
}

func (l *SinkListener) trySubmit(batch []api.Event) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Event sink panicked",
				slog.String("sink", l.sink.Name()),
				slog.Any("panic", r))
			ok = false
		}
	}()
	return l.sink.SubmitEvents(batch)
}

package server

import (
	"sync"
	"sync/atomic"

	"github.com/kode4food/caravan"
	"github.com/kode4food/caravan/message"
	"github.com/kode4food/caravan/topic"

	"github.com/kode4food/cascade/pkg/api"
	"github.com/kode4food/cascade/pkg/events"
)

// Hub republishes the events of every hosted flow on a topic that each
// websocket client consumes independently
type Hub struct {
	topic  topic.Topic[api.Event]
	prod   topic.Producer[api.Event]
	closed atomic.Bool
	once   sync.Once
}

var _ events.Listener = (*Hub)(nil)

// NewHub creates an empty Hub
func NewHub() *Hub {
	t := caravan.NewTopic[api.Event]()
	return &Hub{
		topic: t,
		prod:  t.NewProducer(),
	}
}

// HandleEvent publishes the event to every consumer
func (h *Hub) HandleEvent(ev api.Event) error {
	if h.closed.Load() {
		return nil
	}
	message.Send(h.prod, ev)
	return nil
}

// NewConsumer returns an independent consumer of the published events
func (h *Hub) NewConsumer() topic.Consumer[api.Event] {
	return h.topic.NewConsumer()
}

// Close stops publishing
func (h *Hub) Close() {
	h.once.Do(func() {
		h.closed.Store(true)
		h.prod.Close()
	})
}

package events

import (
	"encoding/json"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
)

// Sink receives progress events. Publishing is best effort: a failing sink
// never stops generation, callers only log the error.
type Sink interface {
	Publish(e Event) error
}

type NopSink struct{}

func (NopSink) Publish(Event) error { return nil }

// WatermillSink publishes events as JSON messages on a watermill topic.
type WatermillSink struct {
	publisher message.Publisher
	topic     string
}

var _ Sink = (*WatermillSink)(nil)

func NewWatermillSink(publisher message.Publisher, topic string) *WatermillSink {
	return &WatermillSink{publisher: publisher, topic: topic}
}

func (w *WatermillSink) Publish(e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return errors.Wrap(err, "could not marshal event")
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	return w.publisher.Publish(w.topic, msg)
}

// CollectingSink keeps every event in memory.
type CollectingSink struct {
	mu     sync.Mutex
	events []Event
}

func (c *CollectingSink) Publish(e Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *CollectingSink) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Event{}, c.events...)
}

func (c *CollectingSink) OfType(t EventType) []Event {
	var ret []Event
	for _, e := range c.Events() {
		if e.Type == t {
			ret = append(ret, e)
		}
	}
	return ret
}

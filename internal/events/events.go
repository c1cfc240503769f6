// Package events fans polled cloud events out to their consumers: an
// in-process Stream with synchronous broadcast, and an optional NATS bus
// that the Stream can be bridged onto.
package events

import (
	"context"

	"github.com/alfredjeanlab/cmevents/internal/model"
)

// Bus topics. Individual events publish on model.Topic(e), i.e.
// cloud.events.<entity type>.<action>.
const (
	TopicAll = model.TopicPrefix + ".>"

	// TopicStale is published when the poller raises or clears its stale
	// signal.
	TopicStale = "cloud.poller.stale"
)

// StaleNotice is the payload published on TopicStale.
type StaleNotice struct {
	Stale               bool   `json:"stale"`
	ConsecutiveFailures int    `json:"consecutive_failures"`
	LastError           string `json:"last_error,omitempty"`
}

// Publisher is the interface for emitting events onto a bus.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// Subscriber receives events from the bus.
type Subscriber interface {
	// Subscribe delivers raw event payloads on the returned channel.
	// Call the returned cancel function to unsubscribe and close the channel.
	Subscribe(topic string) (<-chan []byte, func(), error)
	Close() error
}

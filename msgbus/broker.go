// Package msgbus defines the message bus that carries stored event records between services.
package msgbus

import (
	"context"

	"github.com/0m3kk/lunafold/eventsrc"
)

// Handler processes one delivered record. A returned error asks the broker to redeliver it.
type Handler func(ctx context.Context, rec eventsrc.Record) error

// Broker publishes and delivers event records. Records of one aggregate are
// delivered in the order they were published.
type Broker interface {
	// Publish sends a record to a topic, keyed by its aggregate id.
	Publish(ctx context.Context, topic string, rec eventsrc.Record) error
	// Subscribe starts a durable subscription named subscriberID and feeds
	// incoming records to handler until ctx is done.
	Subscribe(ctx context.Context, topic, subscriberID string, handler Handler) error
	// Close gracefully shuts down the broker connection.
	Close()
}

// TopicPrefix prefixes the topic of every aggregate kind.
const TopicPrefix = "luna."

// TopicFor returns the topic records of kind are published to.
func TopicFor(kind eventsrc.AggregateKind) string {
	if kind == "" {
		return ""
	}
	return TopicPrefix + string(kind)
}

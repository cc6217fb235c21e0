// Package nats implements msgbus.Broker on NATS JetStream.
package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/0m3kk/lunafold/eventsrc"
	"github.com/0m3kk/lunafold/msgbus"
)

// Broker is a msgbus.Broker on JetStream. Each topic is a stream whose
// subjects are the topic followed by the aggregate id.
type Broker struct {
	conn *nats.Conn
	js   nats.JetStreamContext
}

// NewBroker connects to NATS and opens a JetStream context.
func NewBroker(url string) (*Broker, error) {
	nc, err := nats.Connect(
		url,
		nats.Timeout(10*time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	return &Broker{conn: nc, js: js}, nil
}

var tokenReplacer = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_", "\t", "_")

// StreamName returns the JetStream stream that holds a topic. Stream names
// may not contain dots.
func StreamName(topic string) string {
	return tokenReplacer.Replace(topic)
}

// Subject returns the subject a record of the aggregate is published on.
func Subject(topic, aggregateID string) string {
	return topic + "." + tokenReplacer.Replace(aggregateID)
}

func (b *Broker) ensureStream(ctx context.Context, topic string) error {
	name := StreamName(topic)
	_, err := b.js.StreamInfo(name)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) {
		return fmt.Errorf("failed to get stream info for %s: %w", name, err)
	}
	slog.InfoContext(ctx, "Stream not found, creating it", "stream", name)
	_, err = b.js.AddStream(&nats.StreamConfig{
		Name:     name,
		Subjects: []string{topic + ".>"},
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return fmt.Errorf("failed to create stream %s: %w", name, err)
	}
	return nil
}

// Publish sends a record on the subject of its aggregate.
func (b *Broker) Publish(ctx context.Context, topic string, rec eventsrc.Record) error {
	if err := b.ensureStream(ctx, topic); err != nil {
		return err
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	subject := Subject(topic, rec.AggregateID)
	// The event id doubles as the JetStream dedup id.
	_, err = b.js.Publish(subject, data, nats.MsgId(rec.EventID.String()), nats.Context(ctx))
	if err != nil {
		return fmt.Errorf("failed to publish record to NATS: %w", err)
	}

	slog.DebugContext(ctx, "Record published successfully", "topic", topic, "subject", subject, "eventID", rec.EventID)
	return nil
}

// Subscribe creates a durable, pull-based subscription.
func (b *Broker) Subscribe(ctx context.Context, topic, subscriberID string, handler msgbus.Handler) error {
	if err := b.ensureStream(ctx, topic); err != nil {
		return err
	}
	consumerName := StreamName(topic) + "-" + StreamName(subscriberID)

	sub, err := b.js.PullSubscribe(
		topic+".>",
		consumerName,
		nats.PullMaxWaiting(128),
		nats.BindStream(StreamName(topic)),
	)
	if err != nil {
		return fmt.Errorf("failed to create pull subscription: %w", err)
	}

	go func() {
		slog.InfoContext(ctx, "Subscriber started", "topic", topic, "subscriberID", subscriberID)
		defer func() {
			if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
				slog.WarnContext(ctx, "Failed to unsubscribe", "error", err, "topic", topic)
			}
		}()
		for {
			select {
			case <-ctx.Done():
				slog.InfoContext(ctx, "Subscriber stopping", "topic", topic, "subscriberID", subscriberID)
				return
			default:
				msgs, err := sub.Fetch(10, nats.MaxWait(5*time.Second))
				if err != nil {
					if errors.Is(err, nats.ErrConnectionClosed) {
						return
					}
					if !errors.Is(err, nats.ErrTimeout) && !errors.Is(err, context.DeadlineExceeded) {
						slog.ErrorContext(ctx, "Failed to fetch messages", "error", err, "topic", topic)
					}
					continue
				}

				for _, msg := range msgs {
					var rec eventsrc.Record
					if err := json.Unmarshal(msg.Data, &rec); err != nil {
						// Redelivery cannot fix a bad payload.
						slog.ErrorContext(ctx, "Failed to unmarshal record, terminating message", "error", err, "topic", topic)
						_ = msg.Term()
						continue
					}

					settle(ctx, msg, rec, handler(ctx, rec))
				}
			}
		}
	}()

	return nil
}

// acker is the part of *nats.Msg that settles a delivery.
type acker interface {
	Ack(opts ...nats.AckOpt) error
	Nak(opts ...nats.AckOpt) error
	Term(opts ...nats.AckOpt) error
}

// settle acknowledges a handled message. A fold error terminates it, since
// redelivering the same log fails the same way; other errors ask for redelivery.
func settle(ctx context.Context, msg acker, rec eventsrc.Record, err error) {
	switch {
	case err == nil:
		_ = msg.Ack()
	case eventsrc.IsFatal(err):
		slog.ErrorContext(ctx, "Record cannot be processed, terminating message", "error", err, "eventID", rec.EventID)
		_ = msg.Term()
	default:
		slog.ErrorContext(ctx, "Handler failed to process record", "error", err, "eventID", rec.EventID)
		_ = msg.Nak()
	}
}

// Close gracefully closes the NATS connection.
func (b *Broker) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

var _ msgbus.Broker = (*Broker)(nil)

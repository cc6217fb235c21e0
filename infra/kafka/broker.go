// Package kafka implements msgbus.Broker on Kafka.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/cenkalti/backoff/v5"
	kafkaGo "github.com/segmentio/kafka-go"

	"github.com/0m3kk/lunafold/eventsrc"
	"github.com/0m3kk/lunafold/msgbus"
)

// Broker is a msgbus.Broker on Kafka. Records are keyed by aggregate id so
// that one aggregate always lands on one partition.
type Broker struct {
	brokers    []string
	writer     *kafkaGo.Writer
	newBackOff func() backoff.BackOff

	mu      sync.Mutex
	readers []*kafkaGo.Reader
}

// NewBroker creates a broker for the given bootstrap addresses.
func NewBroker(brokers []string) *Broker {
	return &Broker{
		brokers:    brokers,
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
		writer: &kafkaGo.Writer{
			Addr:                   kafkaGo.TCP(brokers...),
			Balancer:               &kafkaGo.Hash{},
			RequiredAcks:           kafkaGo.RequireAll,
			AllowAutoTopicCreation: true,
		},
	}
}

// Message returns the Kafka message carrying rec.
func Message(topic string, rec eventsrc.Record) (kafkaGo.Message, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return kafkaGo.Message{}, fmt.Errorf("failed to marshal record: %w", err)
	}
	return kafkaGo.Message{
		Topic: topic,
		Key:   []byte(string(rec.AggregateKind) + "/" + rec.AggregateID),
		Value: payload,
		Headers: []kafkaGo.Header{
			{Key: "event_type", Value: []byte(rec.EventType)},
			{Key: "event_id", Value: []byte(rec.EventID.String())},
		},
	}, nil
}

// Publish writes a record to topic.
func (b *Broker) Publish(ctx context.Context, topic string, rec eventsrc.Record) error {
	msg, err := Message(topic, rec)
	if err != nil {
		return err
	}
	if err := b.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish record to Kafka: %w", err)
	}
	slog.DebugContext(ctx, "Record published successfully", "topic", topic, "eventID", rec.EventID)
	return nil
}

// Subscribe consumes topic in the consumer group subscriberID. Offsets are
// committed only after the handler succeeds.
func (b *Broker) Subscribe(ctx context.Context, topic, subscriberID string, handler msgbus.Handler) error {
	reader := kafkaGo.NewReader(kafkaGo.ReaderConfig{
		Brokers: b.brokers,
		Topic:   topic,
		GroupID: subscriberID,
	})
	b.mu.Lock()
	b.readers = append(b.readers, reader)
	b.mu.Unlock()

	go func() {
		slog.InfoContext(ctx, "Subscriber started", "topic", topic, "subscriberID", subscriberID)
		consume(ctx, reader, b.newBackOff, handler)
		slog.InfoContext(ctx, "Subscriber stopping", "topic", topic, "subscriberID", subscriberID)
	}()

	return nil
}

// messageReader is the part of *kafkaGo.Reader a subscriber uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafkaGo.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkaGo.Message) error
}

// consume feeds messages to handler until ctx is done. Offsets are cumulative
// per partition, so a failed message is retried in place: fetching past it
// would let the next commit skip it.
func consume(ctx context.Context, reader messageReader, newBackOff func() backoff.BackOff, handler msgbus.Handler) {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return
			}
			if errors.Is(err, kafkaGo.ErrGroupClosed) {
				return
			}
			slog.ErrorContext(ctx, "Error reading message", "topic", msg.Topic, "error", err)
			continue
		}

		var rec eventsrc.Record
		if err := json.Unmarshal(msg.Value, &rec); err != nil {
			// Redelivery cannot fix a bad payload.
			slog.ErrorContext(ctx, "Failed to unmarshal record, skipping", "error", err, "topic", msg.Topic, "offset", msg.Offset)
			commit(ctx, reader, msg)
			continue
		}

		if err := deliver(ctx, rec, handler, newBackOff()); err != nil {
			if ctx.Err() != nil {
				// Left uncommitted; the group hands it out again after a restart.
				return
			}
			slog.ErrorContext(ctx, "Record cannot be processed, skipping", "error", err, "eventID", rec.EventID, "offset", msg.Offset)
		}
		commit(ctx, reader, msg)
	}
}

// deliver runs handler until it succeeds or fails with a fold error. It gives up when ctx is done.
func deliver(ctx context.Context, rec eventsrc.Record, handler msgbus.Handler, bo backoff.BackOff) error {
	operation := func() (struct{}, error) {
		err := handler(ctx, rec)
		if err == nil {
			return struct{}{}, nil
		}
		if eventsrc.IsFatal(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		slog.WarnContext(ctx, "Handler failed to process record, retrying", "error", err, "eventID", rec.EventID)
		return struct{}{}, err
	}
	_, err := backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxElapsedTime(0))
	return err
}

func commit(ctx context.Context, reader messageReader, msg kafkaGo.Message) {
	if err := reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
		slog.ErrorContext(ctx, "Failed to commit offset", "error", err, "topic", msg.Topic, "offset", msg.Offset)
	}
}

// Close flushes the writer and closes every reader.
func (b *Broker) Close() {
	if err := b.writer.Close(); err != nil {
		slog.Error("Failed to close Kafka writer", "error", err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range b.readers {
		if err := r.Close(); err != nil {
			slog.Error("Failed to close Kafka reader", "error", err)
		}
	}
	b.readers = nil
}

var _ msgbus.Broker = (*Broker)(nil)

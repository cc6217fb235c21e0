// Package outbox relays stored event records from the transactional outbox to the message bus.
package outbox

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/0m3kk/lunafold/eventsrc"
	"github.com/0m3kk/lunafold/msgbus"
)

// Store abstracts the transactional processing of an outbox batch.
type Store interface {
	// ProcessOutboxBatch fetches a batch of unpublished records, processes them
	// using processFunc and marks them as published, all within a single transaction.
	// If processFunc returns an error, the entire transaction is rolled back.
	ProcessOutboxBatch(
		ctx context.Context,
		batchSize int,
		processFunc func(ctx context.Context, records []eventsrc.Record) error,
	) error
}

// TopicMapper maps an aggregate kind to a message bus topic. An empty topic skips the record.
type TopicMapper func(kind eventsrc.AggregateKind) string

// Relay is a background worker that polls the outbox and publishes records.
type Relay struct {
	store       Store
	broker      msgbus.Broker
	topicMapper TopicMapper
	batchSize   int
	interval    time.Duration
	wg          sync.WaitGroup
	quit        chan struct{}
	stopOnce    sync.Once
}

// NewRelay creates a new Relay. Several relays may poll the same store.
// A nil mapper publishes to msgbus.TopicFor(kind).
func NewRelay(store Store, broker msgbus.Broker, mapper TopicMapper, batchSize int, interval time.Duration) *Relay {
	if mapper == nil {
		mapper = msgbus.TopicFor
	}
	return &Relay{
		store:       store,
		broker:      broker,
		topicMapper: mapper,
		batchSize:   batchSize,
		interval:    interval,
		quit:        make(chan struct{}),
	}
}

// Start begins the relay's polling process in a separate goroutine.
func (r *Relay) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		slog.InfoContext(ctx, "Outbox relay started", "batchSize", r.batchSize, "interval", r.interval)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := r.processBatch(ctx); err != nil {
					slog.ErrorContext(ctx, "Failed to process outbox batch", "error", err)
				}
			case <-r.quit:
				slog.InfoContext(ctx, "Outbox relay shutting down")
				return
			case <-ctx.Done():
				slog.InfoContext(ctx, "Context cancelled, outbox relay shutting down")
				return
			}
		}
	}()
}

func (r *Relay) processBatch(ctx context.Context) error {
	processor := func(ctx context.Context, records []eventsrc.Record) error {
		slog.DebugContext(ctx, "Processing fetched records", "count", len(records))

		for _, rec := range records {
			topic := r.topicMapper(rec.AggregateKind)
			if topic == "" {
				slog.WarnContext(ctx, "No topic mapped for aggregate kind, skipping",
					"aggregateKind", rec.AggregateKind, "eventID", rec.EventID)
				continue
			}

			// An error rolls the batch back.
			if err := r.broker.Publish(ctx, topic, rec); err != nil {
				return fmt.Errorf("failed to publish event %s to topic %s: %w", rec.EventID, topic, err)
			}
		}
		slog.InfoContext(ctx, "Successfully published records to broker", "count", len(records))
		return nil
	}

	return r.store.ProcessOutboxBatch(ctx, r.batchSize, processor)
}

// Stop gracefully stops the relay. It is safe to call more than once.
func (r *Relay) Stop() {
	r.stopOnce.Do(func() { close(r.quit) })
	r.wg.Wait()
}

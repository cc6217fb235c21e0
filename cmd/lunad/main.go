package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	goredis "github.com/redis/go-redis/v9"

	"github.com/0m3kk/lunafold/config"
	"github.com/0m3kk/lunafold/cqrs"
	"github.com/0m3kk/lunafold/eventsrc"
	"github.com/0m3kk/lunafold/infra/kafka"
	"github.com/0m3kk/lunafold/infra/nats"
	"github.com/0m3kk/lunafold/infra/postgres"
	"github.com/0m3kk/lunafold/infra/redis"
	"github.com/0m3kk/lunafold/marketplace"
	"github.com/0m3kk/lunafold/msgbus"
	"github.com/0m3kk/lunafold/outbox"
	"github.com/0m3kk/lunafold/publishing"
)

const cacheSubscriber = "AggregateCache"

type eventStore interface {
	eventsrc.EventStore
	eventsrc.SnapshotStore
}

func main() {
	cfg, err := config.Load()
	if err == nil {
		err = cfg.ValidateServer()
	}
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	level, _ := cfg.SlogLevel()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		slog.Error("lunad stopped with an error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	// Infrastructure
	db, err := postgres.NewDB(ctx, cfg.DSN)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Database connection established")

	outboxStore := postgres.NewOutboxStore(db)
	store := postgres.NewEventStore(db, outboxStore)
	idempotencyStore := postgres.NewIdempotencyStore(db)

	client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	defer client.Close()
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	cache := redis.NewAggregateCache(client, cfg.CacheTTL)
	slog.InfoContext(ctx, "Redis connection established")

	broker, err := newBroker(cfg)
	if err != nil {
		return err
	}
	if broker == nil {
		slog.WarnContext(ctx, "No broker configured, outbox relay and cache projection are disabled")
		<-ctx.Done()
		slog.Info("Shutdown signal received. Exiting.")
		return nil
	}
	defer broker.Close()

	// Outbox relays
	relays := make([]*outbox.Relay, 0, cfg.RelayWorkers)
	for range cfg.RelayWorkers {
		relay := outbox.NewRelay(outboxStore, broker, nil, cfg.RelayBatchSize, cfg.RelayInterval)
		relay.Start(ctx)
		relays = append(relays, relay)
	}
	defer func() {
		for _, r := range relays {
			r.Stop()
		}
	}()
	slog.InfoContext(ctx, "Outbox relays started", "workers", cfg.RelayWorkers)

	// Cache projection
	refresher := cqrs.NewCacheRefresher(cache, reconstructors(store, cfg.SnapshotEvery)...)
	projection := cqrs.NewProjection(
		cacheSubscriber,
		idempotencyStore,
		cache,
		db,
		refresher.Handle,
		cqrs.WithMaxElapsedTime(cfg.MaxRetryTime),
	)
	for _, kind := range []eventsrc.AggregateKind{publishing.Kind, marketplace.Kind} {
		topic := msgbus.TopicFor(kind)
		if err := broker.Subscribe(ctx, topic, cacheSubscriber, projection.Handle); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
	}

	<-ctx.Done()
	slog.Info("Shutdown signal received. Exiting.")
	return nil
}

func reconstructors(store eventStore, snapshotEvery int) []cqrs.AggregateSource {
	opt := eventsrc.WithSnapshotEvery(snapshotEvery)
	return []cqrs.AggregateSource{
		publishing.NewReconstructor(store, store, opt),
		marketplace.NewReconstructor(store, store, opt),
	}
}

func newBroker(cfg config.Config) (msgbus.Broker, error) {
	switch cfg.Broker {
	case config.BrokerNATS:
		return nats.NewBroker(cfg.NATSURL)
	case config.BrokerKafka:
		return kafka.NewBroker(cfg.KafkaBrokers), nil
	case config.BrokerNone:
		return nil, nil
	}
	return nil, errors.New("unknown broker " + cfg.Broker)
}

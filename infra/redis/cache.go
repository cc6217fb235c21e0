// Package redis caches reconstructed aggregates and resolves secrets from Redis.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/0m3kk/lunafold/eventsrc"
)

const (
	aggregatePrefix    = "luna:aggregate:"
	aggregateSeqPrefix = "luna:aggregate_seq:"
)

// putScript writes the state only when its sequence id is newer than the cached one.
var putScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[2]) or '0')
if tonumber(ARGV[1]) <= cur then
  return 0
end
local ttl = tonumber(ARGV[3])
if ttl > 0 then
  redis.call('SET', KEYS[1], ARGV[2], 'PX', ttl)
  redis.call('SET', KEYS[2], ARGV[1], 'PX', ttl)
else
  redis.call('SET', KEYS[1], ARGV[2])
  redis.call('SET', KEYS[2], ARGV[1])
end
return 1
`)

// evictScript drops the state and keeps the sequence id as a tombstone.
var evictScript = redis.NewScript(`
local cur = tonumber(redis.call('GET', KEYS[2]) or '0')
if tonumber(ARGV[1]) < cur then
  return 0
end
redis.call('DEL', KEYS[1])
local ttl = tonumber(ARGV[2])
if ttl > 0 then
  redis.call('SET', KEYS[2], ARGV[1], 'PX', ttl)
else
  redis.call('SET', KEYS[2], ARGV[1])
end
return 1
`)

// AggregateCache keeps the serialized state of aggregates with the sequence id it reflects.
// It implements cqrs.AggregateCache and cqrs.VersionedStore.
type AggregateCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewAggregateCache creates a cache. ttl <= 0 keeps entries forever.
func NewAggregateCache(client *redis.Client, ttl time.Duration) *AggregateCache {
	return &AggregateCache{client: client, ttl: ttl}
}

func aggregateKey(kind eventsrc.AggregateKind, id string) string {
	return aggregatePrefix + string(kind) + ":" + id
}

func aggregateSeqKey(kind eventsrc.AggregateKind, id string) string {
	return aggregateSeqPrefix + string(kind) + ":" + id
}

// Put stores body as the state at seq. An older seq than the cached one is ignored.
func (c *AggregateCache) Put(ctx context.Context, kind eventsrc.AggregateKind, id string, seq int64, body []byte) error {
	keys := []string{aggregateKey(kind, id), aggregateSeqKey(kind, id)}
	err := putScript.Run(ctx, c.client, keys, seq, body, c.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("failed to cache aggregate: %w", err)
	}
	return nil
}

// Evict drops the cached state and records seq as the version of the gone aggregate.
func (c *AggregateCache) Evict(ctx context.Context, kind eventsrc.AggregateKind, id string, seq int64) error {
	keys := []string{aggregateKey(kind, id), aggregateSeqKey(kind, id)}
	err := evictScript.Run(ctx, c.client, keys, seq, c.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("failed to evict aggregate: %w", err)
	}
	return nil
}

// Get returns the cached state and its sequence id. ok is false on a cache miss.
func (c *AggregateCache) Get(ctx context.Context, kind eventsrc.AggregateKind, id string) (body []byte, seq int64, ok bool, err error) {
	vals, err := c.client.MGet(ctx, aggregateKey(kind, id), aggregateSeqKey(kind, id)).Result()
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to get cached aggregate: %w", err)
	}
	data, isStr := vals[0].(string)
	if !isStr {
		return nil, 0, false, nil // Cache miss
	}
	rawSeq, _ := vals[1].(string)
	seq, err = strconv.ParseInt(rawSeq, 10, 64)
	if err != nil {
		return nil, 0, false, fmt.Errorf("failed to parse cached sequence id %q: %w", rawSeq, err)
	}
	return []byte(data), seq, true, nil
}

// GetVersion returns the sequence id the cached state reflects, 0 when nothing is cached.
func (c *AggregateCache) GetVersion(ctx context.Context, kind eventsrc.AggregateKind, id string) (int64, error) {
	seq, err := c.client.Get(ctx, aggregateSeqKey(kind, id)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get cached sequence id: %w", err)
	}
	return seq, nil
}

package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0m3kk/lunafold/eventsrc"
)

// fakeReader hands out queued messages and cancels the subscription once they run out.
type fakeReader struct {
	mu        sync.Mutex
	queue     []kafkaGo.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafkaGo.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		r.cancel()
		return kafkaGo.Message{}, ctx.Err()
	}
	msg := r.queue[0]
	r.queue = r.queue[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafkaGo.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func recordMessage(t *testing.T, offset int64, aggregateID string) kafkaGo.Message {
	t.Helper()
	msg, err := Message("luna.application", eventsrc.Record{
		EventID:       uuid.New(),
		AggregateKind: "application",
		AggregateID:   aggregateID,
		EventType:     "UpdateLunaApplication",
		SequenceID:    offset,
		Payload:       json.RawMessage(`{}`),
	})
	require.NoError(t, err)
	msg.Offset = offset
	return msg
}

func quickBackOff() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }

func TestConsume_RetriesFailedMessageBeforeFetchingNext(t *testing.T) {
	// GIVEN a record of aggregate A that fails twice, followed by one of aggregate B
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader := &fakeReader{
		queue:  []kafkaGo.Message{recordMessage(t, 5, "A"), recordMessage(t, 6, "B")},
		cancel: cancel,
	}
	var handled []string
	failures := 2
	handler := func(_ context.Context, rec eventsrc.Record) error {
		handled = append(handled, rec.AggregateID)
		if rec.AggregateID == "A" && failures > 0 {
			failures--
			return errors.New("redis unavailable")
		}
		return nil
	}

	// WHEN
	consume(ctx, reader, quickBackOff, handler)

	// THEN A is retried in place and both offsets are committed in order
	assert.Equal(t, []string{"A", "A", "A", "B"}, handled)
	assert.Equal(t, []int64{5, 6}, reader.committed)
}

func TestConsume_SkipsRecordsThatCannotBeFolded(t *testing.T) {
	// GIVEN
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader := &fakeReader{
		queue:  []kafkaGo.Message{recordMessage(t, 5, "A"), recordMessage(t, 6, "B")},
		cancel: cancel,
	}
	calls := 0
	handler := func(_ context.Context, rec eventsrc.Record) error {
		calls++
		if rec.AggregateID == "A" {
			return eventsrc.NewError(eventsrc.KindMissingSnapshot, "no creation event")
		}
		return nil
	}

	// WHEN
	consume(ctx, reader, quickBackOff, handler)

	// THEN the fold error is not retried
	assert.Equal(t, 2, calls)
	assert.Equal(t, []int64{5, 6}, reader.committed)
}

func TestConsume_CancelledRetryLeavesOffsetUncommitted(t *testing.T) {
	// GIVEN a handler that keeps failing until the subscription is cancelled
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader := &fakeReader{
		queue:  []kafkaGo.Message{recordMessage(t, 5, "A"), recordMessage(t, 6, "B")},
		cancel: cancel,
	}
	calls := 0
	handler := func(_ context.Context, rec eventsrc.Record) error {
		calls++
		if calls == 3 {
			cancel()
		}
		return errors.New("redis unavailable")
	}

	// WHEN
	consume(ctx, reader, quickBackOff, handler)

	// THEN nothing is committed and B is never fetched
	assert.Empty(t, reader.committed)
	assert.Len(t, reader.queue, 1)
}

func TestConsume_SkipsUndecodableMessage(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader := &fakeReader{
		queue:  []kafkaGo.Message{{Offset: 4, Value: []byte("not json")}, recordMessage(t, 5, "A")},
		cancel: cancel,
	}
	var handled []string
	handler := func(_ context.Context, rec eventsrc.Record) error {
		handled = append(handled, rec.AggregateID)
		return nil
	}

	consume(ctx, reader, quickBackOff, handler)

	assert.Equal(t, []string{"A"}, handled)
	assert.Equal(t, []int64{4, 5}, reader.committed)
}

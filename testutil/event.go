package testutil

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/0m3kk/lunafold/eventsrc"
)

// NewRecord returns an unstored record with a fresh event id.
func NewRecord(kind eventsrc.AggregateKind, aggregateID string, eventType eventsrc.EventType, payload string) eventsrc.Record {
	return eventsrc.Record{
		EventID:       uuid.New(),
		AggregateKind: kind,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       json.RawMessage(payload),
		CreatedAt:     time.Now().UTC().Truncate(time.Microsecond),
	}
}

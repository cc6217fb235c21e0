package kafka_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0m3kk/lunafold/eventsrc"
	"github.com/0m3kk/lunafold/infra/kafka"
	"github.com/0m3kk/lunafold/publishing"
	"github.com/0m3kk/lunafold/testutil"
)

func TestMessage_KeysByAggregate(t *testing.T) {
	// GIVEN
	rec := testutil.NewRecord(publishing.Kind, "myapp", publishing.EventCreateLunaAPI, `{"name":"sentiment"}`)
	rec.SequenceID = 2

	// WHEN
	msg, err := kafka.Message("luna.application", rec)

	// THEN
	require.NoError(t, err)
	assert.Equal(t, "luna.application", msg.Topic)
	assert.Equal(t, "application/myapp", string(msg.Key))

	var decoded eventsrc.Record
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, rec.EventID, decoded.EventID)
	assert.Equal(t, int64(2), decoded.SequenceID)
	assert.Equal(t, publishing.EventCreateLunaAPI, decoded.EventType)
	assert.JSONEq(t, `{"name":"sentiment"}`, string(decoded.Payload))

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "CreateLunaAPI", headers["event_type"])
	assert.Equal(t, rec.EventID.String(), headers["event_id"])
}

func TestMessage_SameAggregateSameKey(t *testing.T) {
	a, err := kafka.Message("t", testutil.NewRecord(publishing.Kind, "myapp", publishing.EventUpdateLunaApplication, `{}`))
	require.NoError(t, err)
	b, err := kafka.Message("t", testutil.NewRecord(publishing.Kind, "myapp", publishing.EventDeleteLunaApplication, `{}`))
	require.NoError(t, err)

	assert.Equal(t, a.Key, b.Key)
}

package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/rainfall-import-service/internal/domain"
)

func TestMapMessageToRawEvent(t *testing.T) {
	now := time.Now()
	msg := kafkago.Message{
		Key:       []byte("59700"),
		Value:     []byte(`{"station_id":"59700"}`),
		Topic:     "gauge-discovered",
		Partition: 2,
		Offset:    42,
		Time:      now,
		Headers: []kafkago.Header{
			{Key: "source", Value: []byte("gauge-index")},
		},
	}

	raw := mapMessageToRawEvent(msg)

	assert.Equal(t, []byte("59700"), raw.Key)
	assert.JSONEq(t, `{"station_id":"59700"}`, string(raw.Value))
	assert.Equal(t, "gauge-discovered", raw.Topic)
	assert.Equal(t, 2, raw.Partition)
	assert.Equal(t, int64(42), raw.Offset)
	assert.Equal(t, now, raw.Timestamp)
	assert.Equal(t, "gauge-index", raw.Headers["source"])
	assert.Nil(t, raw.Commit)
}

func TestSerializeToMessage(t *testing.T) {
	now := time.Date(2024, 4, 26, 15, 10, 0, 0, time.UTC)
	job := domain.ImportJob{ID: uuid.New(), StationID: "59700", RetryCount: 1}
	event := domain.CompletedOutcome(job, domain.ImportStats{RowsImported: 365}, now)

	msg, err := serializeToMessage(event)
	require.NoError(t, err)

	assert.Equal(t, []byte("59700"), msg.Key)
	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, []byte(domain.EventImportCompleted), msg.Headers[0].Value)
	assert.Equal(t, "occurred_at", msg.Headers[1].Key)
	assert.Equal(t, []byte(now.Format(time.RFC3339)), msg.Headers[1].Value)

	var decoded domain.ImportOutcome
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, job.ID, decoded.JobID)
	assert.Equal(t, domain.JobCompleted, decoded.Status)
	require.NotNil(t, decoded.Stats)
	assert.Equal(t, 365, decoded.Stats.RowsImported)
	assert.Empty(t, decoded.Error)
}

func TestSerializeToMessage_Failed(t *testing.T) {
	job := domain.ImportJob{ID: uuid.New(), StationID: "4695", Status: domain.JobFailed, RetryCount: 3}
	event := domain.FailedOutcome(job, "fetch metadata: not_found", time.Now())

	msg, err := serializeToMessage(event)
	require.NoError(t, err)
	assert.Contains(t, string(msg.Value), `"type":"import.failed"`)
	assert.Contains(t, string(msg.Value), `"status":"failed"`)
	assert.Contains(t, string(msg.Value), `"error":"fetch metadata: not_found"`)
	assert.NotContains(t, string(msg.Value), `"stats"`)
}

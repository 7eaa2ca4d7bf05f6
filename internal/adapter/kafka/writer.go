package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/rainfall-import-service/internal/config"
	"github.com/couchcryptid/rainfall-import-service/internal/domain"
	"github.com/couchcryptid/rainfall-import-service/internal/observability"
)

// Writer publishes import outcome events to a Kafka topic.
// It implements worker.Publisher.
type Writer struct {
	writer  *kafkago.Writer
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewWriter creates a Kafka producer for the configured events topic.
func NewWriter(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaEventsTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{writer: w, metrics: metrics, logger: logger}
}

// Publish serializes and writes one outcome event. Events are keyed by
// station so a station's outcomes stay ordered within a partition.
func (w *Writer) Publish(ctx context.Context, event domain.ImportOutcome) error {
	msg, err := serializeToMessage(event)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write %s event: %w", event.Type, err)
	}
	w.metrics.EventsPublished.WithLabelValues(event.Type).Inc()
	w.logger.Debug("published import outcome", "type", event.Type, "job_id", event.JobID, "station_id", event.StationID)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals an ImportOutcome into a Kafka message.
func serializeToMessage(event domain.ImportOutcome) (kafkago.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize import outcome: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(event.StationID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "event_type", Value: []byte(event.Type)},
			{Key: "occurred_at", Value: []byte(event.OccurredAt.Format(time.RFC3339))},
		},
	}, nil
}

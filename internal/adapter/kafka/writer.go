package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/hotspot-etl/internal/config"
	"github.com/couchcryptid/hotspot-etl/internal/domain"
)

// Header keys set on every published hotspot.
const (
	HeaderRiskLevel    = "risk_level"
	HeaderClassifiedAt = "classified_at"
	HeaderSourceSlot   = "source_slot"
)

// Writer produces classified hotspots to a Kafka topic.
// It implements pipeline.BatchLoader.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &Writer{writer: w, logger: logger}
}

// LoadBatch serializes and publishes records to the sink topic in a single
// WriteMessages call. Records are keyed by their identity hash so a
// re-published detection lands on the same partition.
func (w *Writer) LoadBatch(ctx context.Context, records []domain.HotspotRecord) error {
	if len(records) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(records))
	for i := range records {
		msg, err := serializeToMessage(records[i])
		if err != nil {
			return err
		}
		msgs[i] = msg
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d hotspots: %w", len(msgs), err)
	}
	w.logger.Debug("hotspots published", "topic", w.writer.Topic, "count", len(msgs))
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a HotspotRecord into a Kafka message.
func serializeToMessage(rec domain.HotspotRecord) (kafkago.Message, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize hotspot: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(rec.ID()),
		Value: data,
		Headers: []kafkago.Header{
			{Key: HeaderRiskLevel, Value: []byte(rec.Risk.String())},
			{Key: HeaderClassifiedAt, Value: []byte(rec.ClassifiedAt.Format(time.RFC3339))},
			{Key: HeaderSourceSlot, Value: []byte(rec.SourceSlot)},
		},
	}, nil
}

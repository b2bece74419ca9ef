package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/couchcryptid/parcel-valuation-service/internal/config"
	"github.com/couchcryptid/parcel-valuation-service/internal/valuation"
	kafkago "github.com/segmentio/kafka-go"
)

// Writer publishes committed resolutions to a Kafka topic. It implements
// valuation.Publisher for direct use and pipeline.BatchLoader behind the
// publish queue.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the configured topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		// Batching happens upstream in the publish queue.
		BatchTimeout: 10 * time.Millisecond,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish serializes and writes one resolution.
func (w *Writer) Publish(ctx context.Context, res valuation.Resolution) error {
	msg, err := serializeToMessage(res)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write resolution %s: %w", res.ID, err)
	}
	w.logger.Debug("resolution published", "resolution_id", res.ID, "topic", w.writer.Topic)
	return nil
}

// PublishBatch serializes and writes a batch of resolutions in one call.
func (w *Writer) PublishBatch(ctx context.Context, batch []valuation.Resolution) error {
	msgs := make([]kafkago.Message, 0, len(batch))
	for _, res := range batch {
		msg, err := serializeToMessage(res)
		if err != nil {
			return err
		}
		msgs = append(msgs, msg)
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d resolutions: %w", len(msgs), err)
	}
	w.logger.Debug("resolutions published", "count", len(msgs), "topic", w.writer.Topic)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals a Resolution into a Kafka message keyed by its id.
func serializeToMessage(res valuation.Resolution) (kafkago.Message, error) {
	data, err := json.Marshal(res)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize resolution: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(res.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "matched", Value: []byte(strconv.FormatBool(res.Matched()))},
			{Key: "resolved_at", Value: []byte(res.ResolvedAt.Format(time.RFC3339))},
		},
	}, nil
}

package kafka

import (
	"context"
	"fmt"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/vehicle-incident-etl/internal/config"
	"github.com/couchcryptid/vehicle-incident-etl/internal/domain"
)

// sourceHeader tags published messages with their producer.
const sourceHeader = domain.SourceHeader

// Writer publishes raw incident payloads to the configured Kafka topic.
// It is used by the operator CLI to seed the channel.
type Writer struct {
	writer *kafkago.Writer
	source string
	logger *slog.Logger
}

// NewWriter creates a Kafka producer for the incident topic.
func NewWriter(cfg *config.Config, source string, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(cfg.KafkaBrokers...),
		Topic:                  cfg.KafkaTopic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return &Writer{writer: w, source: source, logger: logger}
}

// Publish writes one payload keyed by car id so reports from one vehicle stay ordered.
func (w *Writer) Publish(ctx context.Context, key string, payload []byte) error {
	if err := w.writer.WriteMessages(ctx, buildMessage(key, payload, w.source)); err != nil {
		return fmt.Errorf("publish to %s: %w", w.writer.Topic, err)
	}
	w.logger.Debug("message published", "topic", w.writer.Topic, "key", key)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

func buildMessage(key string, payload []byte, source string) kafkago.Message {
	msg := kafkago.Message{Value: payload}
	if key != "" {
		msg.Key = []byte(key)
	}
	if source != "" {
		msg.Headers = []kafkago.Header{{Key: sourceHeader, Value: []byte(source)}}
	}
	return msg
}

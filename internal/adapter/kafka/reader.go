package kafka

import (
	"context"
	"fmt"
	"log/slog"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/vehicle-incident-etl/internal/config"
	"github.com/couchcryptid/vehicle-incident-etl/internal/domain"
)

// Reader consumes incident reports from a Kafka topic as part of a consumer group.
// It implements pipeline.Extractor.
type Reader struct {
	reader *kafkago.Reader
	logger *slog.Logger
}

// NewReader creates a consumer-group reader for the configured incident topic.
func NewReader(cfg *config.Config, logger *slog.Logger) *Reader {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    cfg.KafkaTopic,
		GroupID:  cfg.KafkaGroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Reader{reader: r, logger: logger}
}

// Extract blocks until the next message is fetched or ctx is done. The offset
// is not committed until the returned event's Commit is called.
func (r *Reader) Extract(ctx context.Context) (domain.RawEvent, error) {
	msg, err := r.reader.FetchMessage(ctx)
	if err != nil {
		return domain.RawEvent{}, fmt.Errorf("fetch message: %w", err)
	}

	raw := mapMessageToRawEvent(msg)
	raw.Commit = func(ctx context.Context) error {
		return r.reader.CommitMessages(ctx, msg)
	}
	return raw, nil
}

func (r *Reader) Close() error {
	return r.reader.Close()
}

func mapMessageToRawEvent(msg kafkago.Message) domain.RawEvent {
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	return domain.RawEvent{
		Key:       msg.Key,
		Value:     msg.Value,
		Headers:   headers,
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Timestamp: msg.Time,
	}
}

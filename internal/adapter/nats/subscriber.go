package nats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/couchcryptid/vehicle-incident-etl/internal/domain"
)

// Subscriber receives incident reports from a NATS subject into a bounded
// channel. It implements pipeline.Extractor.
//
// Core NATS has no acknowledgements, so extracted events carry no Commit.
// When the buffer is full the client drops messages and reports a slow
// consumer through the connection's error handler.
type Subscriber struct {
	conn   *nats.Conn
	sub    *nats.Subscription
	msgs   chan *nats.Msg
	logger *slog.Logger
}

// NewSubscriber subscribes to subject with a buffer of bufferSize messages.
func NewSubscriber(conn *nats.Conn, subject string, bufferSize int, logger *slog.Logger) (*Subscriber, error) {
	msgs := make(chan *nats.Msg, bufferSize)
	sub, err := conn.ChanSubscribe(subject, msgs)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	logger.Info("nats subscription started", "subject", subject, "buffer", bufferSize)
	return &Subscriber{conn: conn, sub: sub, msgs: msgs, logger: logger}, nil
}

// Extract blocks until a message arrives or ctx is done.
func (s *Subscriber) Extract(ctx context.Context) (domain.RawEvent, error) {
	select {
	case <-ctx.Done():
		return domain.RawEvent{}, ctx.Err()
	case msg, ok := <-s.msgs:
		if !ok {
			return domain.RawEvent{}, errors.New("nats subscription closed")
		}
		return mapMsgToRawEvent(msg, time.Now()), nil
	}
}

// Close removes the subscription and drains the connection.
func (s *Subscriber) Close() error {
	if s.sub != nil {
		if err := s.sub.Unsubscribe(); err != nil {
			s.logger.Warn("nats unsubscribe failed", "error", err)
		}
	}
	if s.conn != nil {
		return s.conn.Drain()
	}
	return nil
}

func mapMsgToRawEvent(msg *nats.Msg, received time.Time) domain.RawEvent {
	headers := make(map[string]string, len(msg.Header))
	for k := range msg.Header {
		headers[k] = msg.Header.Get(k)
	}
	var key []byte
	if k := headers[keyHeader]; k != "" {
		key = []byte(k)
	}
	return domain.RawEvent{
		Key:       key,
		Value:     msg.Data,
		Headers:   headers,
		Topic:     msg.Subject,
		Timestamp: received,
	}
}

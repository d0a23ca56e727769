package nats

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/couchcryptid/vehicle-incident-etl/internal/domain"
)

const (
	sourceHeader = domain.SourceHeader
	keyHeader    = "car_id"
)

// Publisher sends raw incident payloads to a NATS subject.
type Publisher struct {
	conn    *nats.Conn
	subject string
	source  string
	logger  *slog.Logger
}

// NewPublisher creates a publisher bound to subject.
func NewPublisher(conn *nats.Conn, subject, source string, logger *slog.Logger) *Publisher {
	return &Publisher{conn: conn, subject: subject, source: source, logger: logger}
}

// Publish sends one payload. key travels as a header since core NATS has no message key.
func (p *Publisher) Publish(ctx context.Context, key string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.conn.PublishMsg(buildMsg(p.subject, key, p.source, payload)); err != nil {
		return fmt.Errorf("publish to %s: %w", p.subject, err)
	}
	p.logger.Debug("message published", "subject", p.subject, "key", key)
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() error {
	if err := p.conn.Flush(); err != nil {
		p.conn.Close()
		return fmt.Errorf("flush nats: %w", err)
	}
	p.conn.Close()
	return nil
}

func buildMsg(subject, key, source string, payload []byte) *nats.Msg {
	msg := nats.NewMsg(subject)
	msg.Data = payload
	if key != "" {
		msg.Header.Set(keyHeader, key)
	}
	if source != "" {
		msg.Header.Set(sourceHeader, source)
	}
	return msg
}

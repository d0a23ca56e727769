package nats

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMapMsgToRawEvent(t *testing.T) {
	received := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	msg := buildMsg("accident.data", "car-7", "incidentctl", []byte(`{"car_id":"car-7"}`))

	raw := mapMsgToRawEvent(msg, received)

	assert.Equal(t, []byte(`{"car_id":"car-7"}`), raw.Value)
	assert.Equal(t, "accident.data", raw.Topic)
	assert.Equal(t, received, raw.Timestamp)
	assert.Equal(t, []byte("car-7"), raw.Key)
	assert.Equal(t, "car-7", raw.Headers[keyHeader])
	assert.Equal(t, "incidentctl", raw.Headers[sourceHeader])
	assert.Nil(t, raw.Commit)
}

func TestMapMsgToRawEvent_NoHeaders(t *testing.T) {
	raw := mapMsgToRawEvent(&nats.Msg{Subject: "accident.data", Data: []byte("x")}, time.Now())
	assert.NotNil(t, raw.Headers)
	assert.Empty(t, raw.Headers)
	assert.Nil(t, raw.Key)
}

func TestBuildMsg_OmitsEmptyHeaders(t *testing.T) {
	msg := buildMsg("accident.data", "", "", []byte("payload"))
	assert.Empty(t, msg.Header.Get(keyHeader))
	assert.Empty(t, msg.Header.Get(sourceHeader))
	assert.Equal(t, []byte("payload"), msg.Data)
}

func TestSubscriber_Extract_DeliversInOrder(t *testing.T) {
	msgs := make(chan *nats.Msg, 2)
	msgs <- &nats.Msg{Subject: "accident.data", Data: []byte("first")}
	msgs <- &nats.Msg{Subject: "accident.data", Data: []byte("second")}
	s := &Subscriber{msgs: msgs, logger: discardLogger()}

	first, err := s.Extract(context.Background())
	require.NoError(t, err)
	second, err := s.Extract(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []byte("first"), first.Value)
	assert.Equal(t, []byte("second"), second.Value)
}

func TestSubscriber_Extract_ContextCancelled(t *testing.T) {
	s := &Subscriber{msgs: make(chan *nats.Msg), logger: discardLogger()}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.Extract(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSubscriber_Extract_ClosedChannel(t *testing.T) {
	msgs := make(chan *nats.Msg)
	close(msgs)
	s := &Subscriber{msgs: msgs, logger: discardLogger()}

	_, err := s.Extract(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}

func TestPublisher_Publish_CancelledContext(t *testing.T) {
	p := &Publisher{subject: "accident.data", logger: discardLogger()}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := p.Publish(ctx, "car-7", []byte("{}"))
	require.ErrorIs(t, err, context.Canceled)
}

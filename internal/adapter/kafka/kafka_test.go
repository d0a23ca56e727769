package kafka

import (
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

func TestMapMessageToRawEvent(t *testing.T) {
	now := time.Now()
	msg := kafkago.Message{
		Key:       []byte("car-7"),
		Value:     []byte(`{"car_id":"car-7","latitude":"30.05","longitude":"31.25"}`),
		Topic:     "accident-data",
		Partition: 2,
		Offset:    42,
		Time:      now,
		Headers: []kafkago.Header{
			{Key: "source", Value: []byte("incidentctl")},
		},
	}

	raw := mapMessageToRawEvent(msg)

	assert.Equal(t, []byte("car-7"), raw.Key)
	assert.JSONEq(t, `{"car_id":"car-7","latitude":"30.05","longitude":"31.25"}`, string(raw.Value))
	assert.Equal(t, "accident-data", raw.Topic)
	assert.Equal(t, 2, raw.Partition)
	assert.Equal(t, int64(42), raw.Offset)
	assert.Equal(t, now, raw.Timestamp)
	assert.Equal(t, "incidentctl", raw.Headers["source"])
	assert.Nil(t, raw.Commit)
}

func TestMapMessageToRawEvent_NoHeaders(t *testing.T) {
	raw := mapMessageToRawEvent(kafkago.Message{Value: []byte(`{}`)})
	assert.NotNil(t, raw.Headers)
	assert.Empty(t, raw.Headers)
}

func TestBuildMessage(t *testing.T) {
	msg := buildMessage("car-7", []byte(`{"car_id":"car-7"}`), "incidentctl")

	assert.Equal(t, []byte("car-7"), msg.Key)
	assert.Equal(t, []byte(`{"car_id":"car-7"}`), msg.Value)
	assert.Len(t, msg.Headers, 1)
	assert.Equal(t, sourceHeader, msg.Headers[0].Key)
	assert.Equal(t, []byte("incidentctl"), msg.Headers[0].Value)
}

func TestBuildMessage_NoKeyNoSource(t *testing.T) {
	msg := buildMessage("", []byte("not json"), "")

	assert.Nil(t, msg.Key)
	assert.Empty(t, msg.Headers)
	assert.Equal(t, []byte("not json"), msg.Value)
}

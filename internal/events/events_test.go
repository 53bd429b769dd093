package events

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaPublisherKeysByEntity(t *testing.T) {
	writer := &fakeWriter{}
	publisher := NewKafkaPublisher(writer)

	event := New(OrderVoided, "order", 42, map[string]string{"reason": "wrong table"})
	require.NoError(t, publisher.Publish(context.Background(), event))
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	assert.Equal(t, "order:42", string(msg.Key))
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, "event-type", msg.Headers[0].Key)
	assert.Equal(t, OrderVoided, string(msg.Headers[0].Value))

	var decoded Event
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, event.ID, decoded.ID)
	assert.Equal(t, OrderVoided, decoded.Type)
	assert.Equal(t, int64(42), decoded.EntityID)
	assert.True(t, strings.HasPrefix(decoded.ID, "evt-"))
}

func TestKafkaPublisherPropagatesWriteError(t *testing.T) {
	writer := &fakeWriter{err: errors.New("broker down")}
	publisher := NewKafkaPublisher(writer)

	err := publisher.Publish(context.Background(), New(SessionOpened, "session", 1, nil))
	assert.EqualError(t, err, "broker down")

	require.NoError(t, publisher.Close())
	assert.True(t, writer.closed)
}

func TestNewKafkaWriter(t *testing.T) {
	w := NewKafkaWriter([]string{"localhost:9092"}, "pos-events")
	assert.Equal(t, "pos-events", w.Topic)
	assert.Equal(t, "localhost:9092", w.Addr.String())
}

func TestNoopPublisher(t *testing.T) {
	var p Publisher = NoopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), New(PaymentAdded, "payment", 1, nil)))
	assert.NoError(t, p.Close())
}

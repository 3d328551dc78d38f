package events

import (
	"context"
	"encoding/json"
	"testing"

	kafka "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/admissions-api/pkg/config"
)

type writerStub struct {
	messages []kafka.Message
	closed   bool
}

func (w *writerStub) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *writerStub) Close() error {
	w.closed = true
	return nil
}

func TestNewWithoutBrokersIsNop(t *testing.T) {
	pub := New(config.EventsConfig{Topic: "events"}, nil)
	_, ok := pub.(NopPublisher)
	require.True(t, ok)
	require.NoError(t, pub.Publish(context.Background(), Event{Type: TypeApplicationReviewed}))
}

func TestKafkaPublisherKeysByApplication(t *testing.T) {
	writer := &writerStub{}
	pub := &KafkaPublisher{writer: writer}

	err := pub.Publish(context.Background(), Event{
		Type:          TypeApplicationReviewed,
		ApplicationID: "app-1",
		Attributes:    map[string]string{"status": "APPROVED"},
	})
	require.NoError(t, err)
	require.Len(t, writer.messages, 1)
	require.Equal(t, "app-1", string(writer.messages[0].Key))

	var decoded Event
	require.NoError(t, json.Unmarshal(writer.messages[0].Value, &decoded))
	require.Equal(t, TypeApplicationReviewed, decoded.Type)
	require.False(t, decoded.OccurredAt.IsZero())

	require.NoError(t, pub.Close())
	require.True(t, writer.closed)
}

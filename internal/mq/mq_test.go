package mq

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/config"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBackend_PublishSubscribe(t *testing.T) {
	backend := NewMemoryBackend(4)
	defer backend.Close()

	id, err := backend.Publish(context.Background(), "user.registered", []byte(`{"a":1}`), map[string]string{"key": "42"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	ctx, cancel := context.WithCancel(context.Background())
	received := make(chan Message, 1)
	go func() {
		_ = backend.Subscribe(ctx, "user.registered", func(ctx context.Context, msg Message) error {
			received <- msg
			cancel()
			return nil
		})
	}()

	select {
	case msg := <-received:
		assert.Equal(t, id, msg.ID)
		assert.JSONEq(t, `{"a":1}`, string(msg.Data))
		assert.Equal(t, "42", msg.Attributes["key"])
	case <-time.After(2 * time.Second):
		t.Fatal("message was not delivered")
	}
}

func TestMemoryBackend_QueueFull(t *testing.T) {
	backend := NewMemoryBackend(1)
	defer backend.Close()

	_, err := backend.Publish(context.Background(), "c", []byte("1"), nil)
	require.NoError(t, err)

	_, err = backend.Publish(context.Background(), "c", []byte("2"), nil)
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestMemoryBackend_RedeliversOnceOnHandlerError(t *testing.T) {
	backend := NewMemoryBackend(4)
	defer backend.Close()

	_, err := backend.Publish(context.Background(), "c", []byte("x"), nil)
	require.NoError(t, err)

	var calls atomic.Int32
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	_ = backend.Subscribe(ctx, "c", func(ctx context.Context, msg Message) error {
		calls.Add(1)
		return errors.New("smtp down")
	})

	assert.Equal(t, int32(2), calls.Load())
}

func TestMemoryBackend_Closed(t *testing.T) {
	backend := NewMemoryBackend(1)
	require.NoError(t, backend.Close())
	require.NoError(t, backend.Close())

	_, err := backend.Publish(context.Background(), "c", nil, nil)
	assert.ErrorIs(t, err, ErrBackendClosed)

	err = backend.Subscribe(context.Background(), "c", func(context.Context, Message) error { return nil })
	assert.ErrorIs(t, err, ErrBackendClosed)
}

func TestMemoryBackend_RequiresChannel(t *testing.T) {
	backend := NewMemoryBackend(1)
	defer backend.Close()

	_, err := backend.Publish(context.Background(), " ", nil, nil)
	assert.Error(t, err)
}

func TestNewBackend_Memory(t *testing.T) {
	backend, err := NewBackend(context.Background(), config.EventsConfig{Broker: config.BrokerMemory}, slog.Default())
	require.NoError(t, err)
	defer backend.Close()

	assert.IsType(t, &MemoryBackend{}, backend)
}

func TestNewBackend_Unsupported(t *testing.T) {
	_, err := NewBackend(context.Background(), config.EventsConfig{Broker: "sqs"}, slog.Default())
	assert.Error(t, err)
}

func TestNewBackend_MissingSettings(t *testing.T) {
	_, err := NewBackend(context.Background(), config.EventsConfig{Broker: config.BrokerRabbitMQ}, slog.Default())
	assert.Error(t, err)

	_, err = NewBackend(context.Background(), config.EventsConfig{Broker: config.BrokerKafka}, slog.Default())
	assert.Error(t, err)
}

func TestHeadersToAttributes(t *testing.T) {
	attrs := headersToAttributes(amqp.Table{"event_type": "user.registered", "raw": []byte("b"), "n": int32(3)})

	assert.Equal(t, map[string]string{"event_type": "user.registered", "raw": "b", "n": "3"}, attrs)
	assert.Nil(t, headersToAttributes(nil))
}

func TestKafkaHeadersRoundTrip(t *testing.T) {
	headers := attributesToHeaders("msg-1", map[string]string{"key": "42"})

	msg := headersToMessage(kafka.Message{Value: []byte("v"), Headers: headers})

	assert.Equal(t, "msg-1", msg.ID)
	assert.Equal(t, map[string]string{"key": "42"}, msg.Attributes)
	assert.Equal(t, []byte("v"), msg.Data)
}

func TestSubscriptionName(t *testing.T) {
	assert.Equal(t, "user.registered-sub", subscriptionName("user.registered", ""))
	assert.Equal(t, "user.registered-gatekeeper", subscriptionName("user.registered", "gatekeeper"))
}

func TestRabbitMQQueueName(t *testing.T) {
	assert.Equal(t, "gatekeeper.user.registered", (&RabbitMQClient{queuePrefix: "gatekeeper"}).queueName("user.registered"))
	assert.Equal(t, "user.registered", (&RabbitMQClient{}).queueName("user.registered"))
}

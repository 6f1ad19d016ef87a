// Package mq is a small broker-agnostic publish/subscribe layer. Account
// events leave the service through it and the background notifier consumes
// them through it.
package mq

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BradenHooton/gatekeeper/internal/config"
)

// Message is a broker-agnostic payload delivered to subscribers.
type Message struct {
	ID         string
	Data       []byte
	Attributes map[string]string
}

// Handler processes a message. Returning an error asks the broker to redeliver.
type Handler func(ctx context.Context, msg Message) error

// Backend is implemented by every broker client.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Subscribe(ctx context.Context, channel string, handler Handler) error
	Close() error
}

// NewBackend builds the backend selected by EVENT_BROKER.
func NewBackend(ctx context.Context, cfg config.EventsConfig, logger *slog.Logger) (Backend, error) {
	switch cfg.Broker {
	case config.BrokerMemory, "":
		logger.Info("using in-process event bus")
		return NewMemoryBackend(256), nil
	case config.BrokerRabbitMQ:
		logger.Info("connecting to rabbitmq", "queue_prefix", cfg.RabbitMQ.QueuePrefix)
		return NewRabbitMQClient(cfg.RabbitMQ)
	case config.BrokerPubSub:
		logger.Info("connecting to pubsub", "project_id", cfg.PubSub.ProjectID)
		return NewPubSubClient(ctx, cfg.PubSub)
	case config.BrokerKafka:
		logger.Info("connecting to kafka", "brokers", cfg.Kafka.Brokers)
		return NewKafkaClient(cfg.Kafka)
	default:
		return nil, fmt.Errorf("unsupported event broker %q", cfg.Broker)
	}
}

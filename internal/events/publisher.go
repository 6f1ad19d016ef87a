// Package events serialises account events and hands them to the message bus.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/models"
)

// Broker is the publishing half of mq.Backend.
type Broker interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

type Publisher struct {
	broker  Broker
	timeout time.Duration
	logger  *slog.Logger
}

func NewPublisher(broker Broker, timeout time.Duration, logger *slog.Logger) *Publisher {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Publisher{broker: broker, timeout: timeout, logger: logger}
}

// Publish sends event on its topic. It runs detached from ctx cancellation so
// a client hanging up does not drop an event for a committed transition.
func (p *Publisher) Publish(ctx context.Context, event models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", event.Topic(), err)
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
	defer cancel()

	attrs := map[string]string{
		"event_type": event.Topic(),
		"key":        event.Key(),
	}
	messageID, err := p.broker.Publish(ctx, event.Topic(), data, attrs)
	if err != nil {
		p.logger.Warn("failed to publish event",
			"event_type", event.Topic(),
			"user_id", event.Key(),
			"error", err,
		)
		return fmt.Errorf("failed to publish %s event: %w", event.Topic(), err)
	}

	p.logger.Debug("event published", "event_type", event.Topic(), "message_id", messageID)
	return nil
}

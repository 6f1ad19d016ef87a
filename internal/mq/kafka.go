package mq

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/BradenHooton/gatekeeper/internal/config"
	"github.com/BradenHooton/gatekeeper/pkg/ids"
	"github.com/segmentio/kafka-go"
)

const messageIDHeader = "message-id"

// KafkaClient writes each channel to the topic of the same name, keyed by the
// "key" attribute so events for one account stay on one partition.
type KafkaClient struct {
	brokers []string
	groupID string
	writer  *kafka.Writer
}

func NewKafkaClient(cfg config.KafkaConfig) (*KafkaClient, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}

	return &KafkaClient{
		brokers: cfg.Brokers,
		groupID: cfg.GroupID,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
	}, nil
}

func (k *KafkaClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("kafka channel is required")
	}

	messageID := ids.NewKSUID()
	msg := kafka.Message{
		Topic:   channel,
		Key:     []byte(attrs["key"]),
		Value:   data,
		Headers: attributesToHeaders(messageID, attrs),
	}
	if err := k.writer.WriteMessages(ctx, msg); err != nil {
		return "", fmt.Errorf("failed to write to %s: %w", channel, err)
	}
	return messageID, nil
}

// Subscribe commits an offset only after the handler succeeds. A failed
// message is retried once before the reader moves past it.
func (k *KafkaClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("kafka channel is required")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  k.brokers,
		GroupID:  k.groupID,
		Topic:    channel,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer func() { _ = reader.Close() }()

	for {
		m, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to fetch from %s: %w", channel, err)
		}

		message := headersToMessage(m)
		if err := handler(ctx, message); err != nil {
			if err := handler(ctx, message); err != nil && ctx.Err() != nil {
				return ctx.Err()
			}
		}
		if err := reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
			return fmt.Errorf("failed to commit offset on %s: %w", channel, err)
		}
	}
}

func (k *KafkaClient) Close() error {
	return k.writer.Close()
}

func attributesToHeaders(messageID string, attrs map[string]string) []kafka.Header {
	headers := make([]kafka.Header, 0, len(attrs)+1)
	headers = append(headers, kafka.Header{Key: messageIDHeader, Value: []byte(messageID)})
	for key, value := range attrs {
		headers = append(headers, kafka.Header{Key: key, Value: []byte(value)})
	}
	return headers
}

func headersToMessage(m kafka.Message) Message {
	msg := Message{Data: m.Value, Attributes: make(map[string]string, len(m.Headers))}
	for _, h := range m.Headers {
		if h.Key == messageIDHeader {
			msg.ID = string(h.Value)
			continue
		}
		msg.Attributes[h.Key] = string(h.Value)
	}
	return msg
}

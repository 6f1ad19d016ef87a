package mq

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/BradenHooton/gatekeeper/pkg/ids"
)

var (
	ErrBackendClosed = errors.New("mq backend closed")
	ErrQueueFull     = errors.New("mq queue full")
)

// MemoryBackend delivers messages inside the process. Each channel is a
// bounded queue; concurrent subscribers on one channel compete for messages.
type MemoryBackend struct {
	mu     sync.Mutex
	queues map[string]chan Message
	size   int
	closed bool
	done   chan struct{}
}

func NewMemoryBackend(queueSize int) *MemoryBackend {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &MemoryBackend{
		queues: make(map[string]chan Message),
		size:   queueSize,
		done:   make(chan struct{}),
	}
}

func (m *MemoryBackend) queue(name string) (chan Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrBackendClosed
	}
	q, ok := m.queues[name]
	if !ok {
		q = make(chan Message, m.size)
		m.queues[name] = q
	}
	return q, nil
}

// Publish enqueues without blocking. A full queue is reported as ErrQueueFull.
func (m *MemoryBackend) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("mq channel is required")
	}
	q, err := m.queue(channel)
	if err != nil {
		return "", err
	}

	msg := Message{
		ID:         ids.NewKSUID(),
		Data:       append([]byte(nil), data...),
		Attributes: copyAttributes(attrs),
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case q <- msg:
		return msg.ID, nil
	default:
		return "", ErrQueueFull
	}
}

// Subscribe blocks until ctx is cancelled or the backend is closed. A message
// whose handler fails is put back once if there is room.
func (m *MemoryBackend) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("mq channel is required")
	}
	q, err := m.queue(channel)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.done:
			return ErrBackendClosed
		case msg := <-q:
			if err := handler(ctx, msg); err != nil && msg.Attributes[redeliveredAttr] == "" {
				retry := msg
				retry.Attributes = copyAttributes(msg.Attributes)
				retry.Attributes[redeliveredAttr] = "true"
				select {
				case q <- retry:
				default:
				}
			}
		}
	}
}

func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}

const redeliveredAttr = "x-redelivered"

func copyAttributes(attrs map[string]string) map[string]string {
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}

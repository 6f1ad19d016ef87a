package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingBroker struct {
	channel string
	data    []byte
	attrs   map[string]string
	ctxErr  error
	err     error
}

func (b *recordingBroker) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	b.channel = channel
	b.data = data
	b.attrs = attrs
	b.ctxErr = ctx.Err()
	if b.err != nil {
		return "", b.err
	}
	return "msg-1", nil
}

func TestPublisher_Publish(t *testing.T) {
	broker := &recordingBroker{}
	p := NewPublisher(broker, time.Second, slog.Default())

	created := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	err := p.Publish(context.Background(), models.UserRegistered{
		UserID:            1234567890123,
		Email:             "ada@example.com",
		FullName:          "Ada Lovelace",
		VerificationToken: "tok",
		ExpiresAt:         created.Add(24 * time.Hour),
		CreatedAt:         created,
	})

	require.NoError(t, err)
	assert.Equal(t, models.TopicUserRegistered, broker.channel)
	assert.Equal(t, map[string]string{"event_type": "user.registered", "key": "1234567890123"}, broker.attrs)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(broker.data, &decoded))
	assert.Equal(t, "1234567890123", decoded["user_id"])
	assert.Equal(t, "tok", decoded["verification_token"])
}

func TestPublisher_DetachedFromCancelledRequest(t *testing.T) {
	broker := &recordingBroker{}
	p := NewPublisher(broker, time.Second, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Publish(ctx, models.UserActivated{UserID: 1, Email: "a@b.com"}))
	assert.NoError(t, broker.ctxErr)
}

func TestPublisher_BrokerFailure(t *testing.T) {
	broker := &recordingBroker{err: errors.New("connection reset")}
	p := NewPublisher(broker, time.Second, slog.Default())

	err := p.Publish(context.Background(), models.UserLoggedIn{UserID: 1, Email: "a@b.com", SessionID: "s"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "user.logged_in")
}

func TestEventKeys_AreAccountIDs(t *testing.T) {
	events := []models.Event{
		models.UserRegistered{UserID: 42, Email: "ada@example.com"},
		models.UserActivated{UserID: 42, Email: "ada@example.com"},
		models.UserLoggedIn{UserID: 42, Email: "ada@example.com"},
		models.UserVerificationResent{UserID: 42, Email: "ada@example.com"},
		models.UserEmailChanged{UserID: 42, Email: "ada@example.com"},
		models.UserDeactivated{UserID: 42, DeactivatedBy: 7},
		models.UserReactivated{UserID: 42, Email: "ada@example.com"},
	}

	for _, event := range events {
		t.Run(event.Topic(), func(t *testing.T) {
			broker := &recordingBroker{}
			p := NewPublisher(broker, time.Second, slog.Default())

			require.NoError(t, p.Publish(context.Background(), event))
			assert.Equal(t, "42", event.Key())
			for name, value := range broker.attrs {
				assert.NotContains(t, value, "@", "attribute %s leaks the email", name)
			}
		})
	}
}

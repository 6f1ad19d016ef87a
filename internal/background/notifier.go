package background

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/BradenHooton/gatekeeper/internal/mq"
	"github.com/BradenHooton/gatekeeper/internal/services"
	pkglogger "github.com/BradenHooton/gatekeeper/pkg/logger"
)

// Subscriber is the consuming half of mq.Backend.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string, handler mq.Handler) error
}

// Notifier consumes account events and sends the verification emails they ask for.
type Notifier struct {
	sub          Subscriber
	email        services.EmailService
	logger       *slog.Logger
	retryBackoff time.Duration
	now          func() time.Time

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func NewNotifier(sub Subscriber, email services.EmailService, logger *slog.Logger) *Notifier {
	return &Notifier{
		sub:          sub,
		email:        email,
		logger:       logger,
		retryBackoff: 5 * time.Second,
		now:          time.Now,
	}
}

// Start subscribes to the verification topics in the background. It returns
// immediately; call Stop to shut the consumers down.
func (n *Notifier) Start(ctx context.Context) {
	ctx, n.cancel = context.WithCancel(ctx)

	handlers := map[string]mq.Handler{
		models.TopicUserRegistered:         n.handleRegistered,
		models.TopicUserVerificationResent: n.handleResent,
		models.TopicUserEmailChanged:       n.handleEmailChanged,
		models.TopicUserReactivated:        n.handleReactivated,
	}
	for topic, handler := range handlers {
		n.wg.Add(1)
		go n.consume(ctx, topic, handler)
	}
	n.logger.Info("notifier started")
}

// Stop cancels the consumers and waits for in-flight messages to finish.
func (n *Notifier) Stop() {
	n.stopOnce.Do(func() {
		if n.cancel != nil {
			n.cancel()
		}
		n.wg.Wait()
		n.logger.Info("notifier stopped")
	})
}

// consume keeps a subscription alive, resubscribing after broker errors.
func (n *Notifier) consume(ctx context.Context, topic string, handler mq.Handler) {
	defer n.wg.Done()
	for {
		err := n.sub.Subscribe(ctx, topic, handler)
		if ctx.Err() != nil {
			return
		}
		n.logger.Error("subscription ended, retrying", slog.String("topic", topic), slog.Any("error", err))

		select {
		case <-time.After(n.retryBackoff):
		case <-ctx.Done():
			return
		}
	}
}

func (n *Notifier) handleRegistered(ctx context.Context, msg mq.Message) error {
	var event models.UserRegistered
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		n.logger.Error("dropping malformed event", slog.String("topic", models.TopicUserRegistered), slog.String("message_id", msg.ID), slog.Any("error", err))
		return nil
	}
	return n.send(ctx, event.Email, event.FullName, event.VerificationToken, event.ExpiresAt)
}

func (n *Notifier) handleResent(ctx context.Context, msg mq.Message) error {
	var event models.UserVerificationResent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		n.logger.Error("dropping malformed event", slog.String("topic", models.TopicUserVerificationResent), slog.String("message_id", msg.ID), slog.Any("error", err))
		return nil
	}
	return n.send(ctx, event.Email, event.FullName, event.VerificationToken, event.ExpiresAt)
}

func (n *Notifier) handleEmailChanged(ctx context.Context, msg mq.Message) error {
	var event models.UserEmailChanged
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		n.logger.Error("dropping malformed event", slog.String("topic", models.TopicUserEmailChanged), slog.String("message_id", msg.ID), slog.Any("error", err))
		return nil
	}
	return n.send(ctx, event.Email, event.FullName, event.VerificationToken, event.ExpiresAt)
}

// handleReactivated only mails accounts that came back as pending.
func (n *Notifier) handleReactivated(ctx context.Context, msg mq.Message) error {
	var event models.UserReactivated
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		n.logger.Error("dropping malformed event", slog.String("topic", models.TopicUserReactivated), slog.String("message_id", msg.ID), slog.Any("error", err))
		return nil
	}
	if event.VerificationToken == "" || event.ExpiresAt == nil {
		return nil
	}
	return n.send(ctx, event.Email, event.FullName, event.VerificationToken, *event.ExpiresAt)
}

func (n *Notifier) send(ctx context.Context, email, fullName, token string, expiresAt time.Time) error {
	if email == "" || token == "" {
		n.logger.Warn("skipping verification email without recipient or token")
		return nil
	}
	if !expiresAt.After(n.now()) {
		n.logger.Info("skipping verification email for expired token", slog.String("email", pkglogger.SanitizedEmail(email)))
		return nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return n.email.SendVerificationEmail(sendCtx, email, fullName, token, expiresAt)
}

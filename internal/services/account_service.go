package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/guard"
	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/BradenHooton/gatekeeper/pkg/ids"
	pkglogger "github.com/BradenHooton/gatekeeper/pkg/logger"
)

// AccountRepository is the storage the account services need.
// Save must reject a record whose Version is stale with models.ErrConcurrentUpdate.
type AccountRepository interface {
	GetByID(ctx context.Context, id int64) (*models.AccountRecord, error)
	GetByEmail(ctx context.Context, email string) (*models.AccountRecord, error)
	GetByVerificationToken(ctx context.Context, token string) (*models.AccountRecord, error)
	EmailExists(ctx context.Context, email string) (bool, error)
	PhoneExists(ctx context.Context, phone string) (bool, error)
	Create(ctx context.Context, rec *models.AccountRecord) (*models.AccountRecord, error)
	Save(ctx context.Context, rec *models.AccountRecord) (*models.AccountRecord, error)
	List(ctx context.Context, filter models.AccountFilter) ([]models.AccountRecord, int64, error)
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event models.Event) error
}

type IDGenerator interface {
	NextID() int64
}

// ClientInfo describes where a request came from, for audit and events.
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

type RegisterInput struct {
	Email       string
	Password    string
	FullName    string
	Phone       *string
	DateOfBirth *time.Time
	Client      ClientInfo
}

type RegisterResponse struct {
	UserID   int64    `json:"user_id,string"`
	Email    string   `json:"email"`
	Message  string   `json:"message"`
	Warnings []string `json:"warnings,omitempty"`
}

// MessageResponse is returned by operations that only report an outcome.
type MessageResponse struct {
	Message  string   `json:"message"`
	Warnings []string `json:"warnings,omitempty"`
}

const (
	maxSaveAttempts = 3

	warnVerificationEmail = "Verification email could not be queued. Please request a new one."
	warnEventNotPublished = "Account event could not be published."
)

// AccountService runs registration and email verification.
type AccountService struct {
	repo        AccountRepository
	hasher      PasswordHasher
	ids         IDGenerator
	publisher   EventPublisher
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	now         func() time.Time
	newToken    guard.TokenFunc
}

func NewAccountService(repo AccountRepository, hasher PasswordHasher, idGen IDGenerator, publisher EventPublisher, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *AccountService {
	return &AccountService{
		repo:        repo,
		hasher:      hasher,
		ids:         idGen,
		publisher:   publisher,
		logger:      logger,
		auditLogger: auditLogger,
		now:         time.Now,
		newToken:    ids.NewToken,
	}
}

// Register validates the sign-up, stores a pending account and announces it.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*RegisterResponse, error) {
	now := s.now()
	email := normalizeEmail(in.Email)

	rec, err := guard.Register(guard.Registration{
		Email:       email,
		Password:    in.Password,
		FullName:    in.FullName,
		Phone:       in.Phone,
		DateOfBirth: in.DateOfBirth,
	}, now, s.newToken)
	if err != nil {
		s.auditRegisterFailure(ctx, email, in.Client, err)
		return nil, err
	}

	if err := ensureUnique(ctx, s.repo, s.logger, rec.Email, rec.Phone); err != nil {
		s.auditRegisterFailure(ctx, email, in.Client, err)
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	rec.PasswordHash = hash
	rec.ID = s.ids.NextID()

	created, err := s.repo.Create(ctx, &rec)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			s.auditRegisterFailure(ctx, email, in.Client, err)
			return nil, err
		}
		s.logger.Error("failed to create account", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	var warnings []string
	err = s.publisher.Publish(ctx, models.UserRegistered{
		UserID:            created.ID,
		Email:             created.Email,
		FullName:          created.FullName(),
		VerificationToken: created.VerificationToken,
		ExpiresAt:         *created.VerificationTokenExpiry,
		CreatedAt:         created.CreatedAt,
	})
	if err != nil {
		warnings = append(warnings, warnVerificationEmail)
	}

	s.logger.Info("account registered", slog.String("user_id", strconv.FormatInt(created.ID, 10)))
	s.auditLogger.LogAccountAction(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventRegister,
		UserID:    created.ID,
		Email:     created.Email,
		IPAddress: in.Client.IPAddress,
		UserAgent: in.Client.UserAgent,
		Success:   true,
	})

	return &RegisterResponse{
		UserID:   created.ID,
		Email:    created.Email,
		Message:  "Registration successful. Please check your email to verify your account.",
		Warnings: warnings,
	}, nil
}

func (s *AccountService) auditRegisterFailure(ctx context.Context, email string, client ClientInfo, err error) {
	s.auditLogger.LogAccountAction(ctx, pkglogger.AuditEvent{
		EventType:     pkglogger.EventRegister,
		Email:         email,
		IPAddress:     client.IPAddress,
		UserAgent:     client.UserAgent,
		FailureReason: failureReason(err),
	})
}

// VerifyEmail activates the account holding token.
func (s *AccountService) VerifyEmail(ctx context.Context, token string, client ClientInfo) (*MessageResponse, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, models.FieldViolation(models.ErrValidationFailed, "token", "Verification token is required")
	}

	rec, err := s.repo.GetByVerificationToken(ctx, token)
	if err != nil {
		return nil, lookupError(s.logger, "verification token", err)
	}

	now := s.now()
	saved, err := s.transition(ctx, rec, func(cur models.AccountRecord) (models.AccountRecord, error) {
		// a concurrent resend may have rotated the token since the lookup
		if cur.Status != models.StatusActive && cur.VerificationToken != token {
			return models.AccountRecord{}, models.Violation(models.ErrNotFound, "Verification token not found")
		}
		return guard.Verify(cur, now)
	})
	if err != nil {
		s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
			EventType:     pkglogger.EventVerifyEmail,
			UserID:        rec.ID,
			Email:         rec.Email,
			IPAddress:     client.IPAddress,
			UserAgent:     client.UserAgent,
			FailureReason: failureReason(err),
		})
		return nil, stateError(s.logger, "verify email", err)
	}

	var warnings []string
	err = s.publisher.Publish(ctx, models.UserActivated{
		UserID:     saved.ID,
		Email:      saved.Email,
		VerifiedAt: *saved.EmailVerifiedAt,
	})
	if err != nil {
		warnings = append(warnings, warnEventNotPublished)
	}

	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventVerifyEmail,
		UserID:    saved.ID,
		Email:     saved.Email,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Success:   true,
	})

	return &MessageResponse{
		Message:  "Email verified successfully. You can now log in.",
		Warnings: warnings,
	}, nil
}

// ResendVerification rotates the verification token of a pending account and
// queues a new email, at most three times per rolling hour.
func (s *AccountService) ResendVerification(ctx context.Context, email string, client ClientInfo) (*MessageResponse, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, models.FieldViolation(models.ErrValidationFailed, "email", "Email is required")
	}

	rec, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		return nil, lookupError(s.logger, "account", err)
	}

	now := s.now()
	token := s.newToken()
	saved, err := s.transition(ctx, rec, func(cur models.AccountRecord) (models.AccountRecord, error) {
		return guard.PrepareResend(cur, token, now.Add(guard.VerificationTokenTTL), now)
	})
	if err != nil {
		s.auditLogger.LogAccountAction(ctx, pkglogger.AuditEvent{
			EventType:     pkglogger.EventResendVerification,
			UserID:        rec.ID,
			Email:         rec.Email,
			IPAddress:     client.IPAddress,
			UserAgent:     client.UserAgent,
			FailureReason: failureReason(err),
		})
		return nil, stateError(s.logger, "resend verification", err)
	}

	var warnings []string
	err = s.publisher.Publish(ctx, models.UserVerificationResent{
		UserID:            saved.ID,
		Email:             saved.Email,
		FullName:          saved.FullName(),
		VerificationToken: saved.VerificationToken,
		ExpiresAt:         *saved.VerificationTokenExpiry,
		ResendCount:       saved.VerificationResendCount,
	})
	if err != nil {
		warnings = append(warnings, warnVerificationEmail)
	}

	s.auditLogger.LogAccountAction(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventResendVerification,
		UserID:    saved.ID,
		Email:     saved.Email,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Success:   true,
		Metadata:  map[string]string{"resend_count": strconv.Itoa(saved.VerificationResendCount)},
	})

	return &MessageResponse{
		Message:  "Verification email sent. Please check your inbox.",
		Warnings: warnings,
	}, nil
}

func (s *AccountService) transition(ctx context.Context, rec *models.AccountRecord, step func(models.AccountRecord) (models.AccountRecord, error)) (*models.AccountRecord, error) {
	return transition(ctx, s.repo, rec, step)
}

// ensureUnique rejects an email or phone already held by another account.
// An empty email or nil phone is not checked.
func ensureUnique(ctx context.Context, repo AccountRepository, logger *slog.Logger, email string, phone *string) error {
	if email != "" {
		exists, err := repo.EmailExists(ctx, email)
		if err != nil {
			logger.Error("failed to check email uniqueness", slog.Any("error", err))
			return models.ErrInternalServer
		}
		if exists {
			return models.FieldViolation(models.ErrConflict, "email", "Email is already registered")
		}
	}

	if phone == nil {
		return nil
	}
	exists, err := repo.PhoneExists(ctx, *phone)
	if err != nil {
		logger.Error("failed to check phone uniqueness", slog.Any("error", err))
		return models.ErrInternalServer
	}
	if exists {
		return models.FieldViolation(models.ErrConflict, "phone", "Phone number is already registered")
	}
	return nil
}

func lookupError(logger *slog.Logger, what string, err error) error {
	if errors.Is(err, models.ErrNotFound) {
		return models.Violation(models.ErrNotFound, fmt.Sprintf("%s not found", capitalize(what)))
	}
	logger.Error("failed to load account", slog.String("lookup", what), slog.Any("error", err))
	return models.ErrInternalServer
}

func stateError(logger *slog.Logger, op string, err error) error {
	var violation *models.RuleViolation
	if errors.As(err, &violation) {
		return err
	}
	if errors.Is(err, models.ErrNotFound) {
		return models.Violation(models.ErrNotFound, "Account not found")
	}
	logger.Error("account update failed", slog.String("operation", op), slog.Any("error", err))
	return models.ErrInternalServer
}

// transition applies step to rec and saves the result. When another writer
// bumped the version first, the record is reloaded and step runs again on
// the fresh state, up to maxSaveAttempts times.
func transition(ctx context.Context, repo AccountRepository, rec *models.AccountRecord, step func(models.AccountRecord) (models.AccountRecord, error)) (*models.AccountRecord, error) {
	current := rec
	for attempt := 1; ; attempt++ {
		next, err := step(*current)
		if err != nil {
			return nil, err
		}

		saved, err := repo.Save(ctx, &next)
		if err == nil {
			return saved, nil
		}
		if !errors.Is(err, models.ErrConcurrentUpdate) || attempt >= maxSaveAttempts {
			return nil, err
		}

		current, err = repo.GetByID(ctx, current.ID)
		if err != nil {
			return nil, err
		}
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// failureReason is the rule name of a violation, or the error text.
func failureReason(err error) string {
	var violation *models.RuleViolation
	if errors.As(err, &violation) && violation.Rule != "" {
		return violation.Rule
	}
	return err.Error()
}

package services

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/guard"
	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/BradenHooton/gatekeeper/pkg/ids"
	pkglogger "github.com/BradenHooton/gatekeeper/pkg/logger"
)

// SessionStore keeps the refresh token of every live session.
type SessionStore interface {
	Put(ctx context.Context, sessionID, refreshToken string, ttl time.Duration) error
	Delete(ctx context.Context, sessionID string) error
}

type TokenSigner interface {
	SignPair(access, refresh guard.SessionClaims) (*models.TokenPair, error)
}

type LoginInput struct {
	Email      string
	Password   string
	DeviceInfo string
	Client     ClientInfo
}

// UserInfo is the account summary returned with a token pair.
type UserInfo struct {
	ID       int64  `json:"id,string"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

type LoginResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenType    string   `json:"token_type"`
	ExpiresIn    int64    `json:"expires_in"`
	User         UserInfo `json:"user"`
	Warnings     []string `json:"warnings,omitempty"`
}

// AuthService handles login and logout
type AuthService struct {
	repo        AccountRepository
	hasher      PasswordHasher
	signer      TokenSigner
	sessions    SessionStore
	publisher   EventPublisher
	policy      guard.TokenPolicy
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	now         func() time.Time
	newID       func() string

	dummyOnce sync.Once
	dummyHash string
}

func NewAuthService(repo AccountRepository, hasher PasswordHasher, signer TokenSigner, sessions SessionStore, publisher EventPublisher, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *AuthService {
	return &AuthService{
		repo:        repo,
		hasher:      hasher,
		signer:      signer,
		sessions:    sessions,
		publisher:   publisher,
		policy:      guard.DefaultTokenPolicy,
		logger:      logger,
		auditLogger: auditLogger,
		now:         time.Now,
		newID:       ids.NewToken,
	}
}

// Login checks the account state and password, records the outcome on the
// account and opens a session on success.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResponse, error) {
	email := normalizeEmail(in.Email)
	if email == "" || in.Password == "" {
		return nil, models.ErrInvalidCredentials
	}

	rec, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// burn the same hashing work as a real account
			s.verifyDummy(in.Password)
			s.auditFailure(ctx, in, 0, "invalid_credentials")
			return nil, models.ErrInvalidCredentials
		}
		s.logger.Error("failed to get account by email", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	now := s.now()
	if err := guard.ValidateLogin(*rec, now); err != nil {
		s.auditFailure(ctx, in, rec.ID, failureReason(err))
		return nil, err
	}

	ok, err := s.hasher.Verify(in.Password, rec.PasswordHash)
	if err != nil {
		s.logger.Error("failed to verify password hash", slog.String("user_id", formatID(rec.ID)), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if !ok {
		return nil, s.recordFailure(ctx, in, rec, now)
	}

	saved, err := transition(ctx, s.repo, rec, func(cur models.AccountRecord) (models.AccountRecord, error) {
		if err := guard.ValidateLogin(cur, now); err != nil {
			return models.AccountRecord{}, err
		}
		return guard.HandleSuccessfulLogin(cur, now), nil
	})
	if err != nil {
		var violation *models.RuleViolation
		if errors.As(err, &violation) {
			s.auditFailure(ctx, in, rec.ID, failureReason(err))
			return nil, err
		}
		s.logger.Error("failed to record successful login", slog.String("user_id", formatID(rec.ID)), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return s.openSession(ctx, in, saved, now)
}

// recordFailure stores a wrong-password attempt. The attempt that trips the
// lock is answered with the lock itself. A retry after a concurrent write
// re-checks the login preconditions, so an account another request has just
// locked is not counted again.
func (s *AuthService) recordFailure(ctx context.Context, in LoginInput, rec *models.AccountRecord, now time.Time) error {
	var prior models.AccountRecord
	saved, err := transition(ctx, s.repo, rec, func(cur models.AccountRecord) (models.AccountRecord, error) {
		if err := guard.ValidateLogin(cur, now); err != nil {
			return models.AccountRecord{}, err
		}
		prior = cur
		return guard.HandleFailedLogin(cur, now), nil
	})
	if err != nil {
		var violation *models.RuleViolation
		if errors.As(err, &violation) {
			s.auditFailure(ctx, in, rec.ID, failureReason(err))
			return err
		}
		s.logger.Error("failed to record failed login", slog.String("user_id", formatID(rec.ID)), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.auditFailure(ctx, in, saved.ID, "invalid_credentials")

	if saved.IsLocked(now) && !prior.IsLocked(now) {
		s.auditLogger.LogLockout(ctx, saved.ID, saved.Email, *saved.AccountLockedUntil, in.Client.IPAddress)
		return guard.ValidateLogin(*saved, now)
	}
	return models.ErrInvalidCredentials
}

func (s *AuthService) openSession(ctx context.Context, in LoginInput, rec *models.AccountRecord, now time.Time) (*LoginResponse, error) {
	sessionID := s.newID()
	access, refresh := s.policy.Issue(rec.ID, sessionID, now)

	pair, err := s.signer.SignPair(access, refresh)
	if err != nil {
		s.logger.Error("failed to sign tokens", slog.String("user_id", formatID(rec.ID)), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := s.sessions.Put(ctx, sessionID, pair.RefreshToken, s.policy.RefreshTTL); err != nil {
		s.logger.Error("failed to store session", slog.String("user_id", formatID(rec.ID)), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	var warnings []string
	err = s.publisher.Publish(ctx, models.UserLoggedIn{
		UserID:     rec.ID,
		Email:      rec.Email,
		SessionID:  sessionID,
		DeviceInfo: in.DeviceInfo,
		IPAddress:  in.Client.IPAddress,
		LoggedInAt: now,
	})
	if err != nil {
		warnings = append(warnings, warnEventNotPublished)
	}

	s.logger.Info("user logged in", slog.String("user_id", formatID(rec.ID)))
	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventLogin,
		UserID:    rec.ID,
		Email:     rec.Email,
		IPAddress: in.Client.IPAddress,
		UserAgent: in.Client.UserAgent,
		Success:   true,
		Metadata:  map[string]string{"session_id": sessionID},
	})

	return &LoginResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    pair.TokenType,
		ExpiresIn:    pair.ExpiresIn,
		User: UserInfo{
			ID:       rec.ID,
			Email:    rec.Email,
			FullName: rec.FullName(),
			Role:     rec.Role,
		},
		Warnings: warnings,
	}, nil
}

// Logout ends the session named in the caller's access token.
func (s *AuthService) Logout(ctx context.Context, claims *models.TokenClaims, client ClientInfo) error {
	if claims == nil || claims.SessionID == "" {
		return models.ErrUnauthorized
	}

	if err := s.sessions.Delete(ctx, claims.SessionID); err != nil {
		s.logger.Error("failed to delete session", slog.String("user_id", claims.Subject), slog.Any("error", err))
		return models.ErrInternalServer
	}

	userID, _ := strconv.ParseInt(claims.Subject, 10, 64)
	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventLogout,
		UserID:    userID,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Success:   true,
		Metadata:  map[string]string{"session_id": claims.SessionID},
	})
	return nil
}

func (s *AuthService) auditFailure(ctx context.Context, in LoginInput, userID int64, reason string) {
	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType:     pkglogger.EventLogin,
		UserID:        userID,
		Email:         normalizeEmail(in.Email),
		IPAddress:     in.Client.IPAddress,
		UserAgent:     in.Client.UserAgent,
		FailureReason: reason,
	})
}

func (s *AuthService) verifyDummy(password string) {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash("dummy-password-for-timing")
		if err != nil {
			s.logger.Warn("failed to build dummy password hash", slog.Any("error", err))
			return
		}
		s.dummyHash = hash
	})
	if s.dummyHash != "" {
		_, _ = s.hasher.Verify(password, s.dummyHash)
	}
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

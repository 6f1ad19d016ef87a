package services

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/guard"
	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/BradenHooton/gatekeeper/pkg/ids"
	pkglogger "github.com/BradenHooton/gatekeeper/pkg/logger"
)

// ProfileCache is a read-through cache of public profiles. Get returns nil
// without error on a miss.
type ProfileCache interface {
	Get(ctx context.Context, id int64) (*models.Profile, error)
	Set(ctx context.Context, profile *models.Profile) error
	Delete(ctx context.Context, id int64) error
}

const (
	DefaultListLimit = 10
	MaxListLimit     = 100
)

type UpdateProfileInput struct {
	UserID      int64
	FullName    *string
	Phone       *string
	DateOfBirth *time.Time
	Email       *string
	Client      ClientInfo
}

type ProfileResponse struct {
	Profile  models.Profile `json:"profile"`
	Message  string         `json:"message,omitempty"`
	Warnings []string       `json:"warnings,omitempty"`
}

// CreateUserInput is an account created by an administrator. Verified
// accounts skip the email round trip and can log in straight away.
type CreateUserInput struct {
	ActorID     int64
	Email       string
	Password    string
	FullName    string
	Phone       *string
	DateOfBirth *time.Time
	Role        string
	Verified    bool
	Client      ClientInfo
}

type ListUsersInput struct {
	Status models.AccountStatus
	Limit  int
	Offset int
}

type ListUsersResponse struct {
	Users  []models.Profile `json:"users"`
	Total  int64            `json:"total"`
	Limit  int              `json:"limit"`
	Offset int              `json:"offset"`
}

// UserService manages profiles and the administrative account lifecycle.
type UserService struct {
	repo        AccountRepository
	hasher      PasswordHasher
	ids         IDGenerator
	publisher   EventPublisher
	cache       ProfileCache
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	now         func() time.Time
	newToken    guard.TokenFunc
}

// NewUserService builds the service. A nil cache reads every profile from the repository.
func NewUserService(repo AccountRepository, hasher PasswordHasher, idGen IDGenerator, publisher EventPublisher, cache ProfileCache, logger *slog.Logger, auditLogger *pkglogger.AuditLogger) *UserService {
	return &UserService{
		repo:        repo,
		hasher:      hasher,
		ids:         idGen,
		publisher:   publisher,
		cache:       cache,
		logger:      logger,
		auditLogger: auditLogger,
		now:         time.Now,
		newToken:    ids.NewToken,
	}
}

// GetProfile returns the public view of account id, from the cache when possible.
// Cache failures are logged and fall back to the repository.
func (s *UserService) GetProfile(ctx context.Context, id int64) (*models.Profile, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, id)
		if err != nil {
			s.logger.Warn("profile cache read failed", slog.String("user_id", strconv.FormatInt(id, 10)), slog.Any("error", err))
		}
		if cached != nil {
			return cached, nil
		}
	}

	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, lookupError(s.logger, "account", err)
	}
	profile := rec.ToProfile()

	if s.cache != nil {
		if err := s.cache.Set(ctx, &profile); err != nil {
			s.logger.Warn("profile cache write failed", slog.String("user_id", strconv.FormatInt(id, 10)), slog.Any("error", err))
		}
	}
	return &profile, nil
}

// UpdateProfile edits the caller's own profile. A new email address must be
// free and sends the account back through verification.
func (s *UserService) UpdateProfile(ctx context.Context, in UpdateProfileInput) (*ProfileResponse, error) {
	rec, err := s.repo.GetByID(ctx, in.UserID)
	if err != nil {
		return nil, lookupError(s.logger, "account", err)
	}

	upd := guard.ProfileUpdate{FullName: in.FullName, Phone: in.Phone, DateOfBirth: in.DateOfBirth}
	var newEmail string
	if in.Email != nil {
		email := normalizeEmail(*in.Email)
		upd.Email = &email
		if !strings.EqualFold(email, rec.Email) {
			newEmail = email
		}
	}
	var newPhone *string
	if in.Phone != nil && (rec.Phone == nil || *rec.Phone != *in.Phone) {
		newPhone = in.Phone
	}

	now := s.now()
	token := s.newToken()
	step := func(cur models.AccountRecord) (models.AccountRecord, error) {
		return guard.UpdateProfile(cur, upd, now, func() string { return token })
	}

	// validate before spending lookups on uniqueness
	_, err = step(*rec)
	if err == nil {
		err = ensureUnique(ctx, s.repo, s.logger, newEmail, newPhone)
	}
	var saved *models.AccountRecord
	if err == nil {
		saved, err = s.transition(ctx, rec, step)
	}
	if err != nil {
		s.auditLogger.LogAccountAction(ctx, pkglogger.AuditEvent{
			EventType:     pkglogger.EventProfileUpdate,
			UserID:        rec.ID,
			Email:         rec.Email,
			IPAddress:     in.Client.IPAddress,
			UserAgent:     in.Client.UserAgent,
			FailureReason: failureReason(err),
		})
		return nil, stateError(s.logger, "update profile", err)
	}

	resp := &ProfileResponse{Profile: saved.ToProfile(), Message: "Profile updated successfully."}
	emailChanged := !strings.EqualFold(saved.Email, rec.Email)
	if emailChanged {
		resp.Message = "Profile updated. Please verify your new email address before logging in again."
		err = s.publisher.Publish(ctx, models.UserEmailChanged{
			UserID:            saved.ID,
			Email:             saved.Email,
			FullName:          saved.FullName(),
			VerificationToken: saved.VerificationToken,
			ExpiresAt:         *saved.VerificationTokenExpiry,
			ChangedAt:         now,
		})
		if err != nil {
			resp.Warnings = append(resp.Warnings, warnVerificationEmail)
		}
	}

	s.auditLogger.LogAccountAction(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventProfileUpdate,
		UserID:    saved.ID,
		Email:     saved.Email,
		IPAddress: in.Client.IPAddress,
		UserAgent: in.Client.UserAgent,
		Success:   true,
		Metadata:  map[string]string{"email_changed": strconv.FormatBool(emailChanged)},
	})
	return resp, nil
}

// CreateUser registers an account on behalf of an administrator.
func (s *UserService) CreateUser(ctx context.Context, in CreateUserInput) (*ProfileResponse, error) {
	now := s.now()
	email := normalizeEmail(in.Email)
	role := in.Role
	if role == "" {
		role = models.RoleCustomer
	}
	if role != models.RoleCustomer && role != models.RoleAdmin {
		return nil, models.FieldViolation(models.ErrValidationFailed, "role", "Role must be customer or admin")
	}

	rec, err := guard.Register(guard.Registration{
		Email:       email,
		Password:    in.Password,
		FullName:    in.FullName,
		Phone:       in.Phone,
		DateOfBirth: in.DateOfBirth,
	}, now, s.newToken)
	if err == nil && in.Verified {
		rec, err = guard.Verify(rec, now)
	}
	if err == nil {
		err = ensureUnique(ctx, s.repo, s.logger, rec.Email, rec.Phone)
	}
	if err != nil {
		s.auditCreateFailure(ctx, in, email, err)
		return nil, err
	}
	rec.Role = role

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
			s.auditCreateFailure(ctx, in, email, err)
			return nil, err
		}
		s.logger.Error("failed to create account", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	resp := &ProfileResponse{Profile: created.ToProfile(), Message: "User created successfully."}
	var event models.Event = models.UserActivated{
		UserID:     created.ID,
		Email:      created.Email,
		VerifiedAt: now,
	}
	if !in.Verified {
		event = models.UserRegistered{
			UserID:            created.ID,
			Email:             created.Email,
			FullName:          created.FullName(),
			VerificationToken: created.VerificationToken,
			ExpiresAt:         *created.VerificationTokenExpiry,
			CreatedAt:         created.CreatedAt,
		}
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		resp.Warnings = append(resp.Warnings, warnEventNotPublished)
	}

	s.logger.Info("account created by administrator",
		slog.String("user_id", strconv.FormatInt(created.ID, 10)),
		slog.String("actor_id", strconv.FormatInt(in.ActorID, 10)),
	)
	s.auditLogger.LogAccountAction(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventUserCreated,
		UserID:    created.ID,
		Email:     created.Email,
		IPAddress: in.Client.IPAddress,
		UserAgent: in.Client.UserAgent,
		Success:   true,
		Metadata:  map[string]string{"actor_id": strconv.FormatInt(in.ActorID, 10), "role": role},
	})
	return resp, nil
}

func (s *UserService) auditCreateFailure(ctx context.Context, in CreateUserInput, email string, err error) {
	s.auditLogger.LogAccountAction(ctx, pkglogger.AuditEvent{
		EventType:     pkglogger.EventUserCreated,
		Email:         email,
		IPAddress:     in.Client.IPAddress,
		UserAgent:     in.Client.UserAgent,
		FailureReason: failureReason(err),
		Metadata:      map[string]string{"actor_id": strconv.FormatInt(in.ActorID, 10)},
	})
}

// ListUsers returns one page of profiles, newest first. Limit is clamped to
// [1, MaxListLimit] and defaults to DefaultListLimit.
func (s *UserService) ListUsers(ctx context.Context, in ListUsersInput) (*ListUsersResponse, error) {
	switch in.Status {
	case "", models.StatusPending, models.StatusActive, models.StatusInactive:
	default:
		return nil, models.FieldViolation(models.ErrValidationFailed, "status", "Status must be pending, active or inactive")
	}

	limit := in.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)
	offset := max(in.Offset, 0)

	recs, total, err := s.repo.List(ctx, models.AccountFilter{Status: in.Status, Limit: limit, Offset: offset})
	if err != nil {
		s.logger.Error("failed to list accounts", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	users := make([]models.Profile, 0, len(recs))
	for _, rec := range recs {
		users = append(users, rec.ToProfile())
	}
	return &ListUsersResponse{Users: users, Total: total, Limit: limit, Offset: offset}, nil
}

// Deactivate soft-deletes account id. Administrators cannot deactivate
// themselves, so at least the acting admin keeps access.
func (s *UserService) Deactivate(ctx context.Context, actorID, id int64, client ClientInfo) (*MessageResponse, error) {
	if actorID == id {
		return nil, models.Violation(models.ErrValidationFailed, "Administrators cannot deactivate their own account")
	}

	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, lookupError(s.logger, "account", err)
	}

	now := s.now()
	saved, err := s.transition(ctx, rec, func(cur models.AccountRecord) (models.AccountRecord, error) {
		return guard.Deactivate(cur, now)
	})
	if err != nil {
		s.auditLifecycle(ctx, pkglogger.EventDeactivate, actorID, rec, client, err)
		return nil, stateError(s.logger, "deactivate", err)
	}

	var warnings []string
	err = s.publisher.Publish(ctx, models.UserDeactivated{UserID: saved.ID, DeactivatedBy: actorID, DeactivatedAt: now})
	if err != nil {
		warnings = append(warnings, warnEventNotPublished)
	}
	s.auditLifecycle(ctx, pkglogger.EventDeactivate, actorID, saved, client, nil)

	return &MessageResponse{Message: "User deactivated successfully.", Warnings: warnings}, nil
}

// Reactivate restores a deactivated account.
func (s *UserService) Reactivate(ctx context.Context, actorID, id int64, client ClientInfo) (*ProfileResponse, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, lookupError(s.logger, "account", err)
	}

	now := s.now()
	token := s.newToken()
	saved, err := s.transition(ctx, rec, func(cur models.AccountRecord) (models.AccountRecord, error) {
		return guard.Reactivate(cur, now, func() string { return token })
	})
	if err != nil {
		s.auditLifecycle(ctx, pkglogger.EventReactivate, actorID, rec, client, err)
		return nil, stateError(s.logger, "reactivate", err)
	}

	resp := &ProfileResponse{Profile: saved.ToProfile(), Message: "User reactivated successfully."}
	err = s.publisher.Publish(ctx, models.UserReactivated{
		UserID:            saved.ID,
		Email:             saved.Email,
		FullName:          saved.FullName(),
		Status:            string(saved.Status),
		ReactivatedBy:     actorID,
		VerificationToken: saved.VerificationToken,
		ExpiresAt:         saved.VerificationTokenExpiry,
		ReactivatedAt:     now,
	})
	if err != nil {
		resp.Warnings = append(resp.Warnings, warnEventNotPublished)
	}
	s.auditLifecycle(ctx, pkglogger.EventReactivate, actorID, saved, client, nil)
	return resp, nil
}

func (s *UserService) auditLifecycle(ctx context.Context, eventType string, actorID int64, rec *models.AccountRecord, client ClientInfo, err error) {
	event := pkglogger.AuditEvent{
		EventType: eventType,
		UserID:    rec.ID,
		Email:     rec.Email,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Success:   err == nil,
		Metadata:  map[string]string{"actor_id": strconv.FormatInt(actorID, 10)},
	}
	if err != nil {
		event.FailureReason = failureReason(err)
	}
	s.auditLogger.LogAccountAction(ctx, event)
}

func (s *UserService) transition(ctx context.Context, rec *models.AccountRecord, step func(models.AccountRecord) (models.AccountRecord, error)) (*models.AccountRecord, error) {
	return transition(ctx, s.repo, rec, step)
}

package logger

import (
	"context"
	"log/slog"
	"strconv"
	"time"
)

// Audit event types
const (
	EventRegister           = "register"
	EventVerifyEmail        = "verify_email"
	EventResendVerification = "resend_verification"
	EventLogin              = "login"
	EventLogout             = "logout"
	EventAccountLocked      = "account_locked"
	EventUserCreated        = "user_created"
	EventProfileUpdate      = "profile_update"
	EventDeactivate         = "account_deactivated"
	EventReactivate         = "account_reactivated"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType     string
	UserID        int64
	Email         string // masked before logging
	IPAddress     string
	UserAgent     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger writes security events as structured log lines with audit_type set.
type AuditLogger struct {
	logger *slog.Logger
	now    func() time.Time
}

func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
		now:    time.Now,
	}
}

// LogAuthAttempt logs login, logout and verification attempts.
// Failures are logged at warn level.
func (al *AuditLogger) LogAuthAttempt(ctx context.Context, event AuditEvent) {
	attrs := al.baseAttrs("auth", event.EventType)
	attrs = append(attrs, slog.Bool("success", event.Success))
	attrs = append(attrs, eventAttrs(event)...)

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "audit", attrs...)
}

// LogLockout records that an account crossed the failed-login threshold.
func (al *AuditLogger) LogLockout(ctx context.Context, userID int64, email string, lockedUntil time.Time, ipAddress string) {
	attrs := al.baseAttrs("account", EventAccountLocked)
	attrs = append(attrs,
		slog.String("user_id", strconv.FormatInt(userID, 10)),
		slog.String("email", SanitizedEmail(email)),
		slog.String("locked_until", lockedUntil.UTC().Format(time.RFC3339)),
	)
	if ipAddress != "" {
		attrs = append(attrs, slog.String("ip_address", ipAddress))
	}
	al.logger.LogAttrs(ctx, slog.LevelWarn, "audit", attrs...)
}

// LogAccountAction logs general account lifecycle actions
func (al *AuditLogger) LogAccountAction(ctx context.Context, event AuditEvent) {
	attrs := al.baseAttrs("account", event.EventType)
	attrs = append(attrs, eventAttrs(event)...)
	al.logger.LogAttrs(ctx, slog.LevelInfo, "audit", attrs...)
}

func (al *AuditLogger) baseAttrs(auditType, eventType string) []slog.Attr {
	return []slog.Attr{
		slog.String("audit_type", auditType),
		slog.String("event_type", eventType),
		slog.String("timestamp", al.now().UTC().Format(time.RFC3339)),
	}
}

func eventAttrs(event AuditEvent) []slog.Attr {
	var attrs []slog.Attr
	if event.UserID != 0 {
		attrs = append(attrs, slog.String("user_id", strconv.FormatInt(event.UserID, 10)))
	}
	if event.Email != "" {
		attrs = append(attrs, slog.String("email", SanitizedEmail(event.Email)))
	}
	if event.IPAddress != "" {
		attrs = append(attrs, slog.String("ip_address", event.IPAddress))
	}
	if event.UserAgent != "" {
		attrs = append(attrs, slog.String("user_agent", event.UserAgent))
	}
	if event.FailureReason != "" {
		attrs = append(attrs, slog.String("failure_reason", event.FailureReason))
	}
	for key, val := range event.Metadata {
		attrs = append(attrs, slog.String(key, val))
	}
	return attrs
}

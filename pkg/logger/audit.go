package logger

import (
	"context"
	"log/slog"
	"time"
)

// Audit event types
const (
	EventLoginSuccess      = "login_success"
	EventLoginFailure      = "login_failure"
	EventLoginRateLimited  = "login_rate_limited"
	EventTwoFactorRequired = "login_two_factor_required"
	EventTwoFactorSuccess  = "two_factor_success"
	EventTwoFactorFailure  = "two_factor_failure"
	EventChallengeFailure  = "challenge_failure"
)

// AuditEvent represents a security audit event
type AuditEvent struct {
	EventType     string
	UserID        string
	Login         string
	IPAddress     string
	UserAgent     string
	Success       bool
	FailureReason string
	Metadata      map[string]string
}

// AuditLogger provides audit logging functionality
type AuditLogger struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger,
		now:    time.Now,
	}
}

// LogAuthAttempt logs authentication attempts
func (al *AuditLogger) LogAuthAttempt(event AuditEvent) {
	attrs := []slog.Attr{
		slog.String("audit_type", "auth"),
		slog.String("event_type", event.EventType),
		slog.Bool("success", event.Success),
		slog.String("timestamp", al.now().UTC().Format(time.RFC3339)),
	}

	if event.UserID != "" {
		attrs = append(attrs, slog.String("user_id", event.UserID))
	}
	if event.Login != "" {
		attrs = append(attrs, slog.String("login", SanitizeLogin(event.Login)))
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

	if event.Success {
		al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", attrs...)
	} else {
		al.logger.LogAttrs(context.Background(), slog.LevelWarn, "audit", attrs...)
	}
}

// LogAccountAction logs general account actions
func (al *AuditLogger) LogAccountAction(eventType, userID, ipAddress string, metadata map[string]string) {
	attrs := []slog.Attr{
		slog.String("audit_type", "account"),
		slog.String("event_type", eventType),
		slog.String("user_id", userID),
		slog.String("timestamp", al.now().UTC().Format(time.RFC3339)),
	}

	if ipAddress != "" {
		attrs = append(attrs, slog.String("ip_address", ipAddress))
	}

	for key, val := range metadata {
		attrs = append(attrs, slog.String(key, val))
	}

	al.logger.LogAttrs(context.Background(), slog.LevelInfo, "audit", attrs...)
}

// internal/app/system/auditlog/logger.go
package auditlog

import (
	"context"
	"net/http"

	"github.com/dalemusser/stratapass/internal/app/store/audit"
	"github.com/dalemusser/stratapass/internal/app/system/network"
	"go.uber.org/zap"
)

// Config holds audit logging configuration.
type Config struct {
	// Auth controls logging for authentication events (signup, login, replay,
	// logout). Values: "all" (MongoDB + zap), "db" (MongoDB only),
	// "log" (zap only), "off" (disabled)
	Auth string
}

// Logger provides convenience methods for logging audit events.
// It logs to both MongoDB (via audit.Store) and structured logs (via zap).
type Logger struct {
	store  *audit.Store
	zapLog *zap.Logger
	config Config
}

// New creates a new audit Logger.
func New(store *audit.Store, zapLog *zap.Logger, config Config) *Logger {
	return &Logger{
		store:  store,
		zapLog: zapLog,
		config: config,
	}
}

// logToZap logs the event to zap with consistent structure.
func (l *Logger) logToZap(event audit.Event) {
	fields := []zap.Field{
		zap.Bool("audit", true),
		zap.String("category", event.Category),
		zap.String("event_type", event.EventType),
		zap.Bool("success", event.Success),
		zap.String("ip", event.IP),
	}

	if event.Issuer != "" {
		fields = append(fields, zap.String("issuer", event.Issuer))
	}
	if event.FailureReason != "" {
		fields = append(fields, zap.String("failure_reason", event.FailureReason))
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String("detail_"+k, v))
	}

	if event.Success {
		l.zapLog.Info("audit event", fields...)
	} else {
		l.zapLog.Warn("audit event", fields...)
	}
}

// Log records an audit event based on configuration.
// If the logger is nil, this is a no-op (allows tests to use nil audit logger).
// Logging destination is controlled by config: "all", "db", "log", or "off".
func (l *Logger) Log(ctx context.Context, event audit.Event) {
	if l == nil {
		return
	}

	setting := l.config.Auth
	if setting == "off" {
		return
	}

	// Log to zap if configured
	if setting == "all" || setting == "log" || setting == "" {
		l.logToZap(event)
	}

	// Log to MongoDB if configured
	if setting == "all" || setting == "db" {
		if err := l.store.Log(ctx, event); err != nil {
			l.zapLog.Warn("failed to store audit event",
				zap.String("event_type", event.EventType),
				zap.Error(err))
		}
	}
}

// AuthEvent records an auth-category event built from the HTTP request.
func (l *Logger) AuthEvent(ctx context.Context, r *http.Request, eventType, issuer string, success bool, failureReason string) {
	if l == nil {
		return
	}
	l.Log(ctx, audit.Event{
		Category:      audit.CategoryAuth,
		EventType:     eventType,
		Issuer:        issuer,
		IP:            network.GetClientIP(r),
		UserAgent:     r.UserAgent(),
		Success:       success,
		FailureReason: failureReason,
	})
}

// Logout records a logout event.
func (l *Logger) Logout(ctx context.Context, r *http.Request, issuer string) {
	l.AuthEvent(ctx, r, audit.EventLogout, issuer, true, "")
}

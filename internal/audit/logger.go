package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sso-identity-provider/internal/audit/domain"
	auditrepo "sso-identity-provider/internal/audit/repository"
)

// IPExtractor returns the client IP from the request context.
type IPExtractor func(context.Context) string

// AuditLogger writes a single audit event. Used by the auth flows after logout,
// session upgrade, exchange redemption and refresh token reuse.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, eventType, userID string, detail any)
}

// Logger implements AuditLogger using the audit repository and an optional IP extractor.
type Logger struct {
	repo        auditrepo.Repository
	ipExtractor IPExtractor
	logger      *zap.Logger
}

// NewLogger returns an AuditLogger that persists to repo and uses ipExtractor for client IP.
// ipExtractor may be nil; then IP is recorded as "unknown". log may be nil.
func NewLogger(repo auditrepo.Repository, ipExtractor IPExtractor, log *zap.Logger) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{repo: repo, ipExtractor: ipExtractor, logger: log}
}

// LogEvent writes one audit log entry synchronously. detail is marshaled to JSON;
// a nil detail stores no payload. Errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, eventType, userID string, detail any) {
	if l == nil || l.repo == nil {
		return
	}
	ip := "unknown"
	if l.ipExtractor != nil {
		if v := l.ipExtractor(ctx); v != "" {
			ip = v
		}
	}
	var raw json.RawMessage
	if detail != nil {
		b, err := json.Marshal(detail)
		if err != nil {
			l.logger.Warn("audit: marshal detail", zap.String("event", eventType), zap.Error(err))
		} else {
			raw = b
		}
	}
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		EventType: eventType,
		UserID:    userID,
		IP:        ip,
		Detail:    raw,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.repo.Create(ctx, entry); err != nil {
		l.logger.Warn("audit: failed to log event",
			zap.String("event", eventType), zap.String("user_id", userID), zap.Error(err))
	}
}

package domain

import (
	"time"

	"sso-identity-provider/internal/security"
)

// Session is the ledger record of one issued token, central or system-scoped.
// Records are never deleted; revocation only flips Revoked and stamps RevokedAt.
type Session struct {
	ID        string
	UserID    string
	TokenID   string // jti of the issued token; unique per user
	Kind      security.Kind
	Audience  string
	Scope     string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Revoked   bool
	RevokedAt *time.Time // nil when not revoked
	Device    string
	IPAddress string
}

// ActiveAt reports whether the session is unrevoked and unexpired at now.
func (s *Session) ActiveAt(now time.Time) bool {
	return s != nil && !s.Revoked && now.Before(s.ExpiresAt)
}

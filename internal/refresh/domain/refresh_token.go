package domain

import "time"

// RefreshToken is a stored opaque refresh credential. Only TokenHash is persisted;
// Token carries the raw value between generation and delivery to the client.
type RefreshToken struct {
	ID         string
	TokenHash  string
	Token      string
	UserID     string
	SystemID   string // empty for central credentials
	SessionID  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	Revoked    bool
	RevokedAt  *time.Time
	ReplacedBy string // hash of the successor, set on rotation
	Device     string
	IPAddress  string
}

// IsExpired reports whether the token has expired at now.
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// UsableAt reports whether the token can still be rotated at now.
func (t *RefreshToken) UsableAt(now time.Time) bool {
	return t != nil && !t.Revoked && !t.IsExpired(now)
}

// Rotated reports whether the token was revoked by a rotation rather than by logout or admin action.
func (t *RefreshToken) Rotated() bool {
	return t.Revoked && t.ReplacedBy != ""
}

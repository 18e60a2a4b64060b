package domain

import "time"

// Code is a single-use handoff code letting a downstream system redeem a central session.
type Code struct {
	ID        string // uuid v4; the code value itself
	SystemID  string
	UserID    string
	SessionID string // ledger record id of the central session
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
	Device    string
	IPAddress string
}

// RedeemableAt reports whether the code is unused and unexpired at now.
func (c *Code) RedeemableAt(now time.Time) bool {
	return c != nil && c.UsedAt == nil && now.Before(c.ExpiresAt)
}

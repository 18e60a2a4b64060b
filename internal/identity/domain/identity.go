package domain

import (
	"time"

	"sso-identity-provider/internal/security"
	systemdomain "sso-identity-provider/internal/system/domain"
)

// TokenPair is the result of every flow that mints tokens: login, refresh, upgrade and exchange redemption.
type TokenPair struct {
	AccessToken  string
	Kind         security.Kind
	RefreshToken string // empty for upgrade, which reuses the central refresh credential
	ExpiresAt    time.Time
	// SessionID is the ledger record id of the issued token.
	SessionID string
	// UserID is the subject the tokens were issued to.
	UserID string
	// Systems lists the systems the subject may upgrade to; set for central tokens only.
	Systems []systemdomain.Summary
}

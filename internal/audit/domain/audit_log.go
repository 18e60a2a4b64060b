package domain

import (
	"encoding/json"
	"time"
)

// Event types written by the auth flows.
const (
	EventLogin             = "login"
	EventLoginSystem       = "login_system"
	EventSessionUpgrade    = "session_upgrade"
	EventRefresh           = "refresh"
	EventLogout            = "logout"
	EventExchangeCode      = "exchange_code"
	EventExchangeRedeem    = "exchange_redeem"
	EventRefreshTokenReuse = "refresh_token_reuse"
)

// AuditLog represents an audit event.
type AuditLog struct {
	ID        string
	EventType string
	UserID    string
	IP        string
	Detail    json.RawMessage // nil when the event carries no detail
	CreatedAt time.Time
}

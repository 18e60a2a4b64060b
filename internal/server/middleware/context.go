package middleware

import (
	"context"

	"sso-identity-provider/internal/security"
)

type contextKey struct{ name string }

var (
	identityKey = contextKey{"identity"}
	clientKey   = contextKey{"client"}
)

// Identity is the authenticated caller, taken from a validated bearer token.
type Identity struct {
	UserID          string
	TokenID         string
	SessionRecordID string
	Kind            security.Kind
	Claims          *security.Claims
}

// ClientInfo is the network origin of a request.
type ClientInfo struct {
	IP        string
	UserAgent string
}

// WithIdentity returns a context carrying id. Handlers read it via GetIdentity.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// GetIdentity returns the identity from context and true if set; otherwise a zero Identity, false.
func GetIdentity(ctx context.Context) (Identity, bool) {
	v, ok := ctx.Value(identityKey).(Identity)
	return v, ok
}

// WithClientInfo returns a context carrying the client's IP and user agent.
func WithClientInfo(ctx context.Context, info ClientInfo) context.Context {
	return context.WithValue(ctx, clientKey, info)
}

// GetClientInfo returns the client info from context and true if set.
func GetClientInfo(ctx context.Context) (ClientInfo, bool) {
	v, ok := ctx.Value(clientKey).(ClientInfo)
	return v, ok
}

// ClientIP returns the client IP from context, or "" if not set.
// Its signature matches audit.IPExtractor.
func ClientIP(ctx context.Context) string {
	v, _ := GetClientInfo(ctx)
	return v.IP
}

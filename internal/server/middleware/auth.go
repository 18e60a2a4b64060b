package middleware

import (
	"net/http"
	"strings"

	"sso-identity-provider/internal/security"
)

const bearerPrefix = "bearer "

// TokenParser validates a bearer token of any kind.
type TokenParser interface {
	ParseAny(token string) (*security.Claims, error)
}

// RequireBearer rejects requests without a valid bearer token of one of kinds
// (any kind when none are given) and stores the caller's Identity in the context.
func RequireBearer(tokens TokenParser, kinds ...security.Kind) func(http.Handler) http.Handler {
	allowed := make(map[security.Kind]bool, len(kinds))
	for _, k := range kinds {
		allowed[k] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearer(r)
			if token == "" {
				unauthorized(w)
				return
			}
			claims, err := tokens.ParseAny(token)
			if err != nil {
				unauthorized(w)
				return
			}
			if len(allowed) > 0 && !allowed[claims.TokenType] {
				unauthorized(w)
				return
			}
			ctx := WithIdentity(r.Context(), Identity{
				UserID:          claims.Subject,
				TokenID:         claims.ID,
				SessionRecordID: claims.SessionID,
				Kind:            claims.TokenType,
				Claims:          claims,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractBearer returns the Bearer token from the Authorization header, or "" if missing or malformed.
func extractBearer(r *http.Request) string {
	v := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(v) < len(bearerPrefix) {
		return ""
	}
	if !strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(v[len(bearerPrefix):])
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized"}` + "\n"))
}

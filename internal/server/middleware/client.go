package middleware

import (
	"net"
	"net/http"
	"strings"
)

// Client records the request's client IP and user agent in the context.
// The first X-Forwarded-For entry wins, then X-Real-IP, then the peer address.
func Client(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := ClientInfo{IP: remoteIP(r), UserAgent: r.UserAgent()}
		next.ServeHTTP(w, r.WithContext(WithClientInfo(r.Context(), info)))
	})
}

func remoteIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if first != "" {
			return first
		}
	}
	if xr := strings.TrimSpace(r.Header.Get("X-Real-IP")); xr != "" {
		return xr
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Pinger reports database reachability. *sql.DB implements it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Server serves GET /healthz for load balancers and Kubernetes probes.
type Server struct {
	db      Pinger
	timeout time.Duration
}

// NewServer returns a health handler. A nil db reports serving without a dependency check.
func NewServer(db Pinger) *Server {
	return &Server{db: db, timeout: 2 * time.Second}
}

// ServeHTTP responds 200 {"status":"serving"} or 503 {"status":"not_serving"} when the database ping fails.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status, code := "serving", http.StatusOK
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
		defer cancel()
		if err := s.db.PingContext(ctx); err != nil {
			status, code = "not_serving", http.StatusServiceUnavailable
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}

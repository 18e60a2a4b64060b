package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	identitydomain "sso-identity-provider/internal/identity/domain"
	"sso-identity-provider/internal/identity/service"
	"sso-identity-provider/internal/security"
	"sso-identity-provider/internal/server/middleware"
	sessiondomain "sso-identity-provider/internal/session/domain"
	systemdomain "sso-identity-provider/internal/system/domain"
)

const maxBodyBytes = 1 << 20

// AuthService is the set of flows served over HTTP.
type AuthService interface {
	Login(ctx context.Context, req service.LoginRequest) (*identitydomain.TokenPair, error)
	LoginToSystem(ctx context.Context, req service.SystemLoginRequest) (*identitydomain.TokenPair, error)
	Refresh(ctx context.Context, req service.RefreshRequest) (*identitydomain.TokenPair, error)
	UpgradeToSystem(ctx context.Context, userID, centralTokenID, systemName, scope, ip, device string) (*identitydomain.TokenPair, error)
	Logout(ctx context.Context, userID, tokenID string) (int64, error)
	ListSessions(ctx context.Context, userID string) ([]*sessiondomain.Session, error)
	CreateExchangeCode(ctx context.Context, userID, sessionTokenID, systemCode, ip, userAgent string) (string, error)
	RedeemExchangeCode(ctx context.Context, code, systemID, secret, ip, userAgent string) (*identitydomain.TokenPair, error)
}

// AuthHandlers serves the /auth routes.
type AuthHandlers struct {
	svc    AuthService
	tokens middleware.TokenParser
	logger *zap.Logger
}

// NewAuthHandlers returns handlers backed by svc. tokens validates bearer tokens on protected routes.
func NewAuthHandlers(svc AuthService, tokens middleware.TokenParser, logger *zap.Logger) *AuthHandlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandlers{svc: svc, tokens: tokens, logger: logger}
}

// RegisterRoutes registers the authentication routes on router.
func (h *AuthHandlers) RegisterRoutes(router *mux.Router) {
	sessionOnly := middleware.RequireBearer(h.tokens, security.KindSession)
	anyToken := middleware.RequireBearer(h.tokens)

	router.HandleFunc("/auth/login", h.login).Methods(http.MethodPost)
	router.HandleFunc("/auth/login/system", h.loginSystem).Methods(http.MethodPost)
	router.HandleFunc("/auth/refresh", h.refresh).Methods(http.MethodPost)
	router.HandleFunc("/auth/exchange/redeem", h.redeemExchange).Methods(http.MethodPost)

	router.Handle("/auth/upgrade", sessionOnly(http.HandlerFunc(h.upgrade))).Methods(http.MethodPost)
	router.Handle("/auth/exchange/code", sessionOnly(http.HandlerFunc(h.createExchangeCode))).Methods(http.MethodPost)
	router.Handle("/auth/logout", anyToken(http.HandlerFunc(h.logout))).Methods(http.MethodPost)
	router.Handle("/auth/sessions", anyToken(http.HandlerFunc(h.listSessions))).Methods(http.MethodGet)
}

type tokenResponse struct {
	AccessToken  string                 `json:"access_token"`
	TokenType    string                 `json:"token_type"`
	Kind         security.Kind          `json:"kind"`
	RefreshToken string                 `json:"refresh_token,omitempty"`
	ExpiresIn    int64                  `json:"expires_in"`
	ExpiresAt    time.Time              `json:"expires_at"`
	SessionID    string                 `json:"session_id"`
	Systems      []systemdomain.Summary `json:"systems,omitempty"`
}

func toTokenResponse(p *identitydomain.TokenPair) tokenResponse {
	expiresIn := int64(time.Until(p.ExpiresAt).Seconds())
	if expiresIn < 0 {
		expiresIn = 0
	}
	return tokenResponse{
		AccessToken:  p.AccessToken,
		TokenType:    "Bearer",
		Kind:         p.Kind,
		RefreshToken: p.RefreshToken,
		ExpiresIn:    expiresIn,
		ExpiresAt:    p.ExpiresAt,
		SessionID:    p.SessionID,
		Systems:      p.Systems,
	}
}

type sessionResponse struct {
	ID        string        `json:"id"`
	Kind      security.Kind `json:"kind"`
	Audience  string        `json:"audience"`
	Scope     string        `json:"scope,omitempty"`
	IssuedAt  time.Time     `json:"issued_at"`
	ExpiresAt time.Time     `json:"expires_at"`
	Device    string        `json:"device,omitempty"`
	IPAddress string        `json:"ip_address,omitempty"`
}

// login handles POST /auth/login
func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Document string `json:"document"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decode(w, r, &req) {
		return
	}
	client, _ := middleware.GetClientInfo(r.Context())
	pair, err := h.svc.Login(r.Context(), service.LoginRequest{
		Document: req.Document,
		Email:    req.Email,
		Password: req.Password,
		IP:       client.IP,
		Device:   client.UserAgent,
	})
	if err != nil {
		h.writeServiceError(w, r, err, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, toTokenResponse(pair))
}

// loginSystem handles POST /auth/login/system
func (h *AuthHandlers) loginSystem(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Document   string `json:"document"`
		Email      string `json:"email"`
		Password   string `json:"password"`
		SystemCode string `json:"system_code"`
		Secret     string `json:"secret"`
		Scope      string `json:"scope"`
	}
	if !decode(w, r, &req) {
		return
	}
	client, _ := middleware.GetClientInfo(r.Context())
	pair, err := h.svc.LoginToSystem(r.Context(), service.SystemLoginRequest{
		Document:   req.Document,
		Email:      req.Email,
		Password:   req.Password,
		SystemCode: req.SystemCode,
		Secret:     req.Secret,
		Scope:      req.Scope,
		IP:         client.IP,
		Device:     client.UserAgent,
	})
	if err != nil {
		msg := "unauthorized"
		if errors.Is(err, service.ErrUnauthorizedSystem) {
			msg = "unauthorized system"
		}
		h.writeServiceError(w, r, err, msg)
		return
	}
	writeJSON(w, http.StatusOK, toTokenResponse(pair))
}

// refresh handles POST /auth/refresh
func (h *AuthHandlers) refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
		Kind         string `json:"kind"`
		SystemName   string `json:"system_name"`
		Scope        string `json:"scope"`
	}
	if !decode(w, r, &req) {
		return
	}
	client, _ := middleware.GetClientInfo(r.Context())
	pair, err := h.svc.Refresh(r.Context(), service.RefreshRequest{
		Token:      req.RefreshToken,
		Kind:       security.Kind(req.Kind),
		SystemName: req.SystemName,
		Scope:      req.Scope,
		IP:         client.IP,
		Device:     client.UserAgent,
	})
	if err != nil {
		h.writeServiceError(w, r, err, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, toTokenResponse(pair))
}

// upgrade handles POST /auth/upgrade
func (h *AuthHandlers) upgrade(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SystemName string `json:"system_name"`
		Scope      string `json:"scope"`
	}
	if !decode(w, r, &req) {
		return
	}
	id, _ := middleware.GetIdentity(r.Context())
	client, _ := middleware.GetClientInfo(r.Context())
	pair, err := h.svc.UpgradeToSystem(r.Context(), id.UserID, id.TokenID, req.SystemName, req.Scope, client.IP, client.UserAgent)
	if err != nil {
		h.writeServiceError(w, r, err, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, toTokenResponse(pair))
}

// logout handles POST /auth/logout. With {"all": true} every session of the caller is revoked.
func (h *AuthHandlers) logout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		All bool `json:"all"`
	}
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	id, _ := middleware.GetIdentity(r.Context())
	tokenID := id.TokenID
	if req.All {
		tokenID = ""
	}
	n, err := h.svc.Logout(r.Context(), id.UserID, tokenID)
	if err != nil {
		h.writeServiceError(w, r, err, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"sessions_revoked": n})
}

// listSessions handles GET /auth/sessions
func (h *AuthHandlers) listSessions(w http.ResponseWriter, r *http.Request) {
	id, _ := middleware.GetIdentity(r.Context())
	sessions, err := h.svc.ListSessions(r.Context(), id.UserID)
	if err != nil {
		h.writeServiceError(w, r, err, "unauthorized")
		return
	}
	out := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionResponse{
			ID:        s.ID,
			Kind:      s.Kind,
			Audience:  s.Audience,
			Scope:     s.Scope,
			IssuedAt:  s.IssuedAt,
			ExpiresAt: s.ExpiresAt,
			Device:    s.Device,
			IPAddress: s.IPAddress,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

// createExchangeCode handles POST /auth/exchange/code
func (h *AuthHandlers) createExchangeCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SystemCode string `json:"system_code"`
	}
	if !decode(w, r, &req) {
		return
	}
	id, _ := middleware.GetIdentity(r.Context())
	client, _ := middleware.GetClientInfo(r.Context())
	code, err := h.svc.CreateExchangeCode(r.Context(), id.UserID, id.TokenID, req.SystemCode, client.IP, client.UserAgent)
	if err != nil {
		h.writeServiceError(w, r, err, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"code": code})
}

// redeemExchange handles POST /auth/exchange/redeem
func (h *AuthHandlers) redeemExchange(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code     string `json:"code"`
		SystemID string `json:"system_id"`
		Secret   string `json:"secret"`
	}
	if !decode(w, r, &req) {
		return
	}
	client, _ := middleware.GetClientInfo(r.Context())
	pair, err := h.svc.RedeemExchangeCode(r.Context(), req.Code, req.SystemID, req.Secret, client.IP, client.UserAgent)
	if err != nil {
		h.writeServiceError(w, r, err, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, toTokenResponse(pair))
}

// writeServiceError maps err to a status code. Authentication failures share authMsg so
// callers cannot tell which check failed; anything unexpected is logged and hidden.
func (h *AuthHandlers) writeServiceError(w http.ResponseWriter, r *http.Request, err error, authMsg string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case service.IsAuthError(err):
		h.logger.Debug("auth request rejected", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusUnauthorized, authMsg)
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "request canceled")
	default:
		h.logger.Error("auth request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

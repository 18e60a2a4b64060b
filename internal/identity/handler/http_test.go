package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	exchangeservice "sso-identity-provider/internal/exchange/service"
	identitydomain "sso-identity-provider/internal/identity/domain"
	"sso-identity-provider/internal/identity/service"
	"sso-identity-provider/internal/security"
	"sso-identity-provider/internal/server/middleware"
	sessiondomain "sso-identity-provider/internal/session/domain"
	systemdomain "sso-identity-provider/internal/system/domain"
)

type fakeService struct {
	login        func(service.LoginRequest) (*identitydomain.TokenPair, error)
	loginSystem  func(service.SystemLoginRequest) (*identitydomain.TokenPair, error)
	refresh      func(service.RefreshRequest) (*identitydomain.TokenPair, error)
	upgrade      func(userID, tokenID, systemName, scope string) (*identitydomain.TokenPair, error)
	logout       func(userID, tokenID string) (int64, error)
	listSessions func(userID string) ([]*sessiondomain.Session, error)
	createCode   func(userID, tokenID, systemCode string) (string, error)
	redeem       func(code, systemID, secret string) (*identitydomain.TokenPair, error)

	lastIP, lastDevice string
}

func (f *fakeService) Login(ctx context.Context, req service.LoginRequest) (*identitydomain.TokenPair, error) {
	f.lastIP, f.lastDevice = req.IP, req.Device
	return f.login(req)
}

func (f *fakeService) LoginToSystem(ctx context.Context, req service.SystemLoginRequest) (*identitydomain.TokenPair, error) {
	return f.loginSystem(req)
}

func (f *fakeService) Refresh(ctx context.Context, req service.RefreshRequest) (*identitydomain.TokenPair, error) {
	return f.refresh(req)
}

func (f *fakeService) UpgradeToSystem(ctx context.Context, userID, centralTokenID, systemName, scope, ip, device string) (*identitydomain.TokenPair, error) {
	return f.upgrade(userID, centralTokenID, systemName, scope)
}

func (f *fakeService) Logout(ctx context.Context, userID, tokenID string) (int64, error) {
	return f.logout(userID, tokenID)
}

func (f *fakeService) ListSessions(ctx context.Context, userID string) ([]*sessiondomain.Session, error) {
	return f.listSessions(userID)
}

func (f *fakeService) CreateExchangeCode(ctx context.Context, userID, sessionTokenID, systemCode, ip, userAgent string) (string, error) {
	return f.createCode(userID, sessionTokenID, systemCode)
}

func (f *fakeService) RedeemExchangeCode(ctx context.Context, code, systemID, secret, ip, userAgent string) (*identitydomain.TokenPair, error) {
	return f.redeem(code, systemID, secret)
}

func samplePair() *identitydomain.TokenPair {
	return &identitydomain.TokenPair{
		AccessToken:  "access",
		Kind:         security.KindSession,
		RefreshToken: "refresh",
		ExpiresAt:    time.Now().Add(time.Hour),
		SessionID:    "s1",
		Systems:      []systemdomain.Summary{{Code: "PAY", Name: "payroll", DisplayName: "Payroll"}},
	}
}

type testServer struct {
	router http.Handler
	tokens *security.TokenIssuer
	logs   *observer.ObservedLogs
}

func newTestServer(svc *fakeService) *testServer {
	core, logs := observer.New(zapcore.DebugLevel)
	tokens := security.NewTestTokenIssuer()
	r := mux.NewRouter()
	NewAuthHandlers(svc, tokens, zap.New(core)).RegisterRoutes(r)
	return &testServer{router: middleware.Client(r), tokens: tokens, logs: logs}
}

func (s *testServer) do(t *testing.T, method, path, body, bearer string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	req.Header.Set("User-Agent", "test-agent")
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func (s *testServer) centralToken(t *testing.T) security.Issued {
	t.Helper()
	issued, err := s.tokens.IssueCentralToken("u1", "", "rec-1", "ana@example.com", nil, "", time.Hour)
	require.NoError(t, err)
	return issued
}

func (s *testServer) systemToken(t *testing.T) security.Issued {
	t.Helper()
	issued, err := s.tokens.IssueSystemToken(security.Subject{UserID: "u1"}, []string{"admin"}, "payroll", "", time.Hour)
	require.NoError(t, err)
	return issued
}

func TestLogin(t *testing.T) {
	svc := &fakeService{login: func(req service.LoginRequest) (*identitydomain.TokenPair, error) {
		if req.Password != "pw" {
			return nil, service.ErrInvalidCredentials
		}
		if req.Email == "" && req.Document == "" {
			return nil, service.ErrValidation
		}
		return samplePair(), nil
	}}
	s := newTestServer(svc)

	w, body := s.do(t, http.MethodPost, "/auth/login", `{"email":"ana@example.com","password":"pw"}`, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "access", body["access_token"])
	assert.Equal(t, "refresh", body["refresh_token"])
	assert.Equal(t, "Bearer", body["token_type"])
	assert.Equal(t, "session", body["kind"])
	assert.Equal(t, "s1", body["session_id"])
	assert.Len(t, body["systems"], 1)
	assert.Equal(t, "203.0.113.9", svc.lastIP)
	assert.Equal(t, "test-agent", svc.lastDevice)

	w, body = s.do(t, http.MethodPost, "/auth/login", `{"email":"ana@example.com","password":"bad"}`, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized", body["error"])

	w, _ = s.do(t, http.MethodPost, "/auth/login", `{"password":"pw"}`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = s.do(t, http.MethodPost, "/auth/login", `{not json`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid request body", body["error"])
}

func TestLogin_InternalErrorIsHidden(t *testing.T) {
	svc := &fakeService{login: func(service.LoginRequest) (*identitydomain.TokenPair, error) {
		return nil, errors.New("connection refused")
	}}
	s := newTestServer(svc)

	w, body := s.do(t, http.MethodPost, "/auth/login", `{"email":"a@b.io","password":"pw"}`, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal error", body["error"])
	entries := s.logs.FilterMessage("auth request failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "/auth/login", entries[0].ContextMap()["path"])
}

func TestLoginSystem_ErrorMessages(t *testing.T) {
	var next error
	svc := &fakeService{loginSystem: func(service.SystemLoginRequest) (*identitydomain.TokenPair, error) {
		return nil, next
	}}
	s := newTestServer(svc)

	next = service.ErrUnauthorizedSystem
	w, body := s.do(t, http.MethodPost, "/auth/login/system", `{"system_code":"PAY","secret":"x"}`, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized system", body["error"])

	next = service.ErrInvalidCredentials
	_, body = s.do(t, http.MethodPost, "/auth/login/system", `{"system_code":"PAY","secret":"x"}`, "")
	assert.Equal(t, "unauthorized", body["error"])
}

func TestRefresh(t *testing.T) {
	var got service.RefreshRequest
	svc := &fakeService{refresh: func(req service.RefreshRequest) (*identitydomain.TokenPair, error) {
		got = req
		if req.Token == "stale" {
			return nil, service.ErrInvalidRefreshToken
		}
		p := samplePair()
		p.Kind = security.KindAccess
		return p, nil
	}}
	s := newTestServer(svc)

	w, body := s.do(t, http.MethodPost, "/auth/refresh", `{"refresh_token":"r0","kind":"access","system_name":"payroll"}`, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "access", body["kind"])
	assert.Equal(t, security.KindAccess, got.Kind)
	assert.Equal(t, "payroll", got.SystemName)

	w, body = s.do(t, http.MethodPost, "/auth/refresh", `{"refresh_token":"stale"}`, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized", body["error"])
}

func TestUpgrade_RequiresSessionToken(t *testing.T) {
	var gotUser, gotToken string
	svc := &fakeService{upgrade: func(userID, tokenID, systemName, scope string) (*identitydomain.TokenPair, error) {
		gotUser, gotToken = userID, tokenID
		return samplePair(), nil
	}}
	s := newTestServer(svc)

	w, _ := s.do(t, http.MethodPost, "/auth/upgrade", `{"system_name":"payroll"}`, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = s.do(t, http.MethodPost, "/auth/upgrade", `{"system_name":"payroll"}`, s.systemToken(t).Token)
	assert.Equal(t, http.StatusUnauthorized, w.Code, "access tokens cannot upgrade")

	central := s.centralToken(t)
	w, _ = s.do(t, http.MethodPost, "/auth/upgrade", `{"system_name":"payroll"}`, central.Token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", gotUser)
	assert.Equal(t, central.TokenID, gotToken)
}

func TestLogout(t *testing.T) {
	var gotToken string
	svc := &fakeService{logout: func(userID, tokenID string) (int64, error) {
		gotToken = tokenID
		if userID != "u1" {
			return 0, service.ErrNoActiveSessions
		}
		if tokenID == "" {
			return 3, nil
		}
		return 1, nil
	}}
	s := newTestServer(svc)
	central := s.centralToken(t)

	w, body := s.do(t, http.MethodPost, "/auth/logout", "", central.Token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), body["sessions_revoked"])
	assert.Equal(t, central.TokenID, gotToken)

	w, body = s.do(t, http.MethodPost, "/auth/logout", `{"all":true}`, s.systemToken(t).Token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(3), body["sessions_revoked"])
	assert.Equal(t, "", gotToken)

	w, _ = s.do(t, http.MethodPost, "/auth/logout", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestListSessions(t *testing.T) {
	now := time.Now().UTC()
	svc := &fakeService{listSessions: func(userID string) ([]*sessiondomain.Session, error) {
		return []*sessiondomain.Session{
			{ID: "s2", Kind: security.KindAccess, Audience: "payroll", IssuedAt: now, ExpiresAt: now.Add(time.Minute)},
			{ID: "s1", Kind: security.KindSession, Audience: "test-central", IssuedAt: now.Add(-time.Minute), ExpiresAt: now.Add(time.Hour)},
		}, nil
	}}
	s := newTestServer(svc)

	w, body := s.do(t, http.MethodGet, "/auth/sessions", "", s.centralToken(t).Token)
	require.Equal(t, http.StatusOK, w.Code)
	sessions, ok := body["sessions"].([]any)
	require.True(t, ok)
	require.Len(t, sessions, 2)
	first := sessions[0].(map[string]any)
	assert.Equal(t, "s2", first["id"])
	assert.Equal(t, "payroll", first["audience"])
}

func TestExchange(t *testing.T) {
	svc := &fakeService{
		createCode: func(userID, tokenID, systemCode string) (string, error) {
			if systemCode != "PAY" {
				return "", service.ErrUnauthorizedSystem
			}
			return "code-1", nil
		},
		redeem: func(code, systemID, secret string) (*identitydomain.TokenPair, error) {
			if secret != "pay-secret" {
				return nil, errors.Join(service.ErrUnauthorizedSystem, exchangeservice.ErrInvalidSecret)
			}
			return samplePair(), nil
		},
	}
	s := newTestServer(svc)
	central := s.centralToken(t)

	w, body := s.do(t, http.MethodPost, "/auth/exchange/code", `{"system_code":"PAY"}`, central.Token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "code-1", body["code"])

	w, body = s.do(t, http.MethodPost, "/auth/exchange/code", `{"system_code":"CRM"}`, central.Token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized", body["error"])

	w, body = s.do(t, http.MethodPost, "/auth/exchange/redeem", `{"code":"code-1","system_id":"sys-pay","secret":"pay-secret"}`, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "access", body["access_token"])

	w, body = s.do(t, http.MethodPost, "/auth/exchange/redeem", `{"code":"code-1","system_id":"sys-pay","secret":"nope"}`, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "unauthorized", body["error"], "redemption failures are not distinguished")
}

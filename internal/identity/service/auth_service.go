package service

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"sso-identity-provider/internal/audit"
	auditdomain "sso-identity-provider/internal/audit/domain"
	identitydomain "sso-identity-provider/internal/identity/domain"
	"sso-identity-provider/internal/permission"
	refreshdomain "sso-identity-provider/internal/refresh/domain"
	refreshservice "sso-identity-provider/internal/refresh/service"
	roledomain "sso-identity-provider/internal/role/domain"
	"sso-identity-provider/internal/security"
	sessiondomain "sso-identity-provider/internal/session/domain"
	sessionservice "sso-identity-provider/internal/session/service"
	systemdomain "sso-identity-provider/internal/system/domain"
	telemetry "sso-identity-provider/internal/telemetry/otel"
	userdomain "sso-identity-provider/internal/user/domain"
)

// UserRepo is the minimal user repository needed by the auth service.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
	GetByEmail(ctx context.Context, email string) (*userdomain.User, error)
	GetByDocument(ctx context.Context, documentNumber string) (*userdomain.User, error)
}

// CredentialVerifier checks a password against a stored hash. An empty hash must still
// take comparable time and fail.
type CredentialVerifier interface {
	Verify(ctx context.Context, hash string, password []byte) error
}

// RoleResolver lists the roles currently assigned to a user.
type RoleResolver interface {
	ListByUser(ctx context.Context, userID string) ([]*roledomain.Role, error)
}

// GrantSource returns the module grants held by roleIDs on systemID.
type GrantSource interface {
	ModuleGrants(ctx context.Context, roleIDs []string, systemID string) ([]roledomain.ModuleGrant, error)
}

// SystemRegistry resolves registered downstream systems.
type SystemRegistry interface {
	GetByID(ctx context.Context, id string) (*systemdomain.System, error)
	GetByCode(ctx context.Context, code string) (*systemdomain.System, error)
	GetByName(ctx context.Context, name string) (*systemdomain.System, error)
}

// SessionLedger is the minimal session ledger needed by the auth service.
type SessionLedger interface {
	Record(ctx context.Context, s *sessiondomain.Session) error
	ValidateActiveSession(ctx context.Context, userID, tokenID string, kind security.Kind) (*sessiondomain.Session, error)
	Revoke(ctx context.Context, userID, tokenID string) (int64, error)
	ListActive(ctx context.Context, userID string) ([]*sessiondomain.Session, error)
}

// RefreshManager is the minimal refresh credential manager needed by the auth service.
type RefreshManager interface {
	Generate(ip, device, systemID, sessionID string) (*refreshdomain.RefreshToken, error)
	Persist(ctx context.Context, userID string, cred *refreshdomain.RefreshToken) error
	Rotate(ctx context.Context, presented, ip, device string) (refreshservice.RotateResult, error)
	Revoke(ctx context.Context, token string) (bool, error)
	RevokeAll(ctx context.Context, userID string) (int64, error)
}

// ExchangeManager issues and redeems exchange codes.
type ExchangeManager interface {
	GenerateCode(ctx context.Context, userID, systemID, sessionID, ip, userAgent string) (string, error)
	Redeem(ctx context.Context, code, systemID, secret, ip, userAgent string) (*identitydomain.TokenPair, error)
}

// Config holds token lifetimes and logout behavior.
type Config struct {
	CentralTTL time.Duration
	SystemTTL  time.Duration
	// LogoutRevokesRefresh makes Logout also revoke every refresh credential of the user.
	LogoutRevokesRefresh bool
	// ReuseRevokesAll makes a replayed, already rotated refresh credential revoke every refresh
	// credential of the user. Otherwise the replay is only rejected and audited.
	ReuseRevokesAll bool
}

// Deps are the collaborators of AuthService. Exchange may be nil when the exchange flow is not served.
type Deps struct {
	Users         UserRepo
	Verifier      CredentialVerifier
	Roles         RoleResolver
	Grants        GrantSource
	Systems       SystemRegistry
	// SecretSystems serves the lookups whose system secret is checked. It should bypass any
	// cache in Systems; nil means Systems.
	SecretSystems SystemRegistry
	Ledger        SessionLedger
	Refresh       RefreshManager
	Exchange      ExchangeManager
	Tokens        *security.TokenIssuer
	Audit         audit.AuditLogger
}

// LoginRequest authenticates by document number or email plus password.
type LoginRequest struct {
	Document string
	Email    string
	Password string
	IP       string
	Device   string
}

// SystemLoginRequest is a direct login to one system, authenticated by that system's secret.
type SystemLoginRequest struct {
	Document   string
	Email      string
	Password   string
	SystemCode string
	Secret     string
	Scope      string
	IP         string
	Device     string
}

// RefreshRequest rotates a refresh credential into a fresh token of Kind.
// SystemName is required when Kind is access.
type RefreshRequest struct {
	Token      string
	Kind       security.Kind
	SystemName string
	Scope      string
	IP         string
	Device     string
}

// AuthService composes issuer, ledger, refresh and exchange managers into the login,
// upgrade, refresh, logout and exchange flows.
type AuthService struct {
	users         UserRepo
	verifier      CredentialVerifier
	roles         RoleResolver
	grants        GrantSource
	systems       SystemRegistry
	secretSystems SystemRegistry
	ledger        SessionLedger
	refresh       RefreshManager
	exchange      ExchangeManager
	tokens        *security.TokenIssuer
	audit         audit.AuditLogger
	cfg           Config
	logger        *zap.Logger
	tracer        trace.Tracer
	metrics       *telemetry.AuthMetrics
}

// Option configures an AuthService.
type Option func(*AuthService)

func WithLogger(l *zap.Logger) Option {
	return func(s *AuthService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(s *AuthService) {
		if t != nil {
			s.tracer = t
		}
	}
}

func WithMetrics(m *telemetry.AuthMetrics) Option {
	return func(s *AuthService) { s.metrics = m }
}

// NewAuthService returns an AuthService. When d.Refresh supports a reuse hook, the service
// installs HandleRefreshReuse on it.
func NewAuthService(d Deps, cfg Config, opts ...Option) *AuthService {
	if cfg.CentralTTL <= 0 {
		cfg.CentralTTL = time.Hour
	}
	if cfg.SystemTTL <= 0 {
		cfg.SystemTTL = 15 * time.Minute
	}
	s := &AuthService{
		users:         d.Users,
		verifier:      d.Verifier,
		roles:         d.Roles,
		grants:        d.Grants,
		systems:       d.Systems,
		secretSystems: d.SecretSystems,
		ledger:        d.Ledger,
		refresh:       d.Refresh,
		exchange:      d.Exchange,
		tokens:        d.Tokens,
		audit:         d.Audit,
		cfg:           cfg,
		logger:        zap.NewNop(),
		tracer:        otel.Tracer("sso-identity-provider/identity"),
	}
	if s.secretSystems == nil {
		s.secretSystems = s.systems
	}
	for _, o := range opts {
		o(s)
	}
	if h, ok := d.Refresh.(interface{ SetReuseHook(refreshservice.ReuseHook) }); ok {
		h.SetReuseHook(s.HandleRefreshReuse)
	}
	return s
}

// SetExchange attaches the exchange manager after construction. The manager in turn
// uses the service as its PairIssuer.
func (s *AuthService) SetExchange(e ExchangeManager) { s.exchange = e }

// Login authenticates by document or email and password and returns a central token
// paired with a fresh refresh credential and the systems the user may upgrade to.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (pair *identitydomain.TokenPair, err error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.Login")
	defer func() { s.finish(ctx, span, "login", err) }()

	user, err := s.authenticate(ctx, req.Document, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("user.id", user.ID))
	pair, err = s.issueCentral(ctx, user, "", req.IP, req.Device)
	if err != nil {
		return nil, err
	}
	cred, err := s.refresh.Generate(req.IP, req.Device, "", pair.SessionID)
	if err != nil {
		return nil, err
	}
	if err := s.refresh.Persist(ctx, user.ID, cred); err != nil {
		return nil, err
	}
	pair.RefreshToken = cred.Token
	s.logEvent(ctx, auditdomain.EventLogin, user.ID, map[string]any{"session_id": pair.SessionID})
	return pair, nil
}

// LoginToSystem authenticates the user and the calling system at once and returns a system
// token with its refresh credential. No central session is created.
func (s *AuthService) LoginToSystem(ctx context.Context, req SystemLoginRequest) (pair *identitydomain.TokenPair, err error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.LoginToSystem")
	defer func() { s.finish(ctx, span, "login_system", err) }()

	if strings.TrimSpace(req.SystemCode) == "" {
		return nil, fmt.Errorf("%w: system code is required", ErrValidation)
	}
	sys, err := s.secretSystems.GetByCode(ctx, strings.TrimSpace(req.SystemCode))
	if err != nil {
		return nil, err
	}
	if sys == nil || !sys.Enabled {
		return nil, ErrUnauthorizedSystem
	}
	if !security.SecretEqual(req.Secret, sys.Secret) {
		s.logger.Warn("direct system login secret mismatch", zap.String("system", sys.Code))
		return nil, ErrUnauthorizedSystem
	}
	user, err := s.authenticate(ctx, req.Document, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	pair, err = s.IssueSystemPair(ctx, user, sys, req.Scope, req.IP, req.Device)
	if err != nil {
		return nil, err
	}
	s.logEvent(ctx, auditdomain.EventLoginSystem, user.ID, map[string]any{"system": sys.Code, "session_id": pair.SessionID})
	return pair, nil
}

// UpgradeToSystem trades a live central session for a token scoped to systemName.
// The central refresh credential stays the renewal path, so no refresh token is returned.
func (s *AuthService) UpgradeToSystem(ctx context.Context, userID, centralTokenID, systemName, scope, ip, device string) (pair *identitydomain.TokenPair, err error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.UpgradeToSystem")
	defer func() { s.finish(ctx, span, "upgrade", err) }()

	if strings.TrimSpace(systemName) == "" {
		return nil, fmt.Errorf("%w: system name is required", ErrValidation)
	}
	central, err := s.validateCentral(ctx, userID, centralTokenID)
	if err != nil {
		return nil, err
	}
	user, err := s.activeUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	sys, err := s.systems.GetByName(ctx, strings.TrimSpace(systemName))
	if err != nil {
		return nil, err
	}
	if sys == nil || !sys.Enabled {
		return nil, ErrUnauthorizedSystem
	}
	roles, err := s.rolesFor(ctx, user.ID, sys.ID)
	if err != nil {
		return nil, err
	}
	pair, err = s.issueSystem(ctx, user, sys, roles, scope, ip, device)
	if err != nil {
		return nil, err
	}
	s.logEvent(ctx, auditdomain.EventSessionUpgrade, user.ID, map[string]any{
		"system":             sys.Code,
		"central_session_id": central.ID,
		"session_id":         pair.SessionID,
	})
	return pair, nil
}

// Refresh rotates the presented refresh credential and issues a token of the requested kind.
// Roles and authorized systems are re-read, so role changes since login take effect here.
func (s *AuthService) Refresh(ctx context.Context, req RefreshRequest) (pair *identitydomain.TokenPair, err error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.Refresh")
	defer func() { s.finish(ctx, span, "refresh", err) }()

	kind := req.Kind
	if kind == "" {
		kind = security.KindSession
	}
	if _, ok := security.ParseKind(string(kind)); !ok {
		return nil, fmt.Errorf("%w: unknown token kind %q", ErrValidation, req.Kind)
	}
	if kind == security.KindAccess && strings.TrimSpace(req.SystemName) == "" {
		return nil, fmt.Errorf("%w: system name is required for access tokens", ErrValidation)
	}
	res, err := s.refresh.Rotate(ctx, req.Token, req.IP, req.Device)
	if err != nil {
		if errors.Is(err, refreshservice.ErrInvalidRefreshToken) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}
	// From here the presented credential is spent; failures revoke its successor.
	defer func() {
		if err != nil {
			if _, rerr := s.refresh.Revoke(context.WithoutCancel(ctx), res.Next.Token); rerr != nil {
				s.logger.Warn("revoke refresh successor", zap.Error(rerr))
			}
		}
	}()

	prev := res.Previous
	user, err := s.activeUser(ctx, prev.UserID)
	if err != nil {
		return nil, err
	}
	switch kind {
	case security.KindSession:
		if prev.SystemID != "" {
			return nil, ErrUnauthorizedSystem
		}
		pair, err = s.issueCentral(ctx, user, req.Scope, req.IP, req.Device)
	case security.KindAccess:
		sys, serr := s.systems.GetByName(ctx, strings.TrimSpace(req.SystemName))
		if serr != nil {
			return nil, serr
		}
		if sys == nil || !sys.Enabled || (prev.SystemID != "" && prev.SystemID != sys.ID) {
			return nil, ErrUnauthorizedSystem
		}
		roles, rerr := s.rolesFor(ctx, user.ID, sys.ID)
		if rerr != nil {
			return nil, rerr
		}
		pair, err = s.issueSystem(ctx, user, sys, roles, req.Scope, req.IP, req.Device)
	}
	if err != nil {
		return nil, err
	}
	pair.RefreshToken = res.Next.Token
	s.logEvent(ctx, auditdomain.EventRefresh, user.ID, map[string]any{"kind": kind, "session_id": pair.SessionID})
	return pair, nil
}

// Logout revokes the session of tokenID, or every session of userID when tokenID is empty.
// It returns ErrNoActiveSessions when nothing was revoked.
func (s *AuthService) Logout(ctx context.Context, userID, tokenID string) (n int64, err error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.Logout")
	defer func() { s.finish(ctx, span, "logout", err) }()

	if userID == "" {
		return 0, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	n, err = s.ledger.Revoke(ctx, userID, tokenID)
	if err != nil {
		return 0, err
	}
	s.metrics.RecordRevocations(ctx, n)
	detail := map[string]any{"sessions_revoked": n}
	if s.cfg.LogoutRevokesRefresh {
		revoked, err := s.refresh.RevokeAll(ctx, userID)
		if err != nil {
			return n, err
		}
		detail["refresh_tokens_revoked"] = revoked
	}
	s.logEvent(ctx, auditdomain.EventLogout, userID, detail)
	return n, nil
}

// ListSessions returns the user's live ledger records, newest first.
func (s *AuthService) ListSessions(ctx context.Context, userID string) ([]*sessiondomain.Session, error) {
	return s.ledger.ListActive(ctx, userID)
}

// CreateExchangeCode issues a one-time code letting systemCode redeem the caller's central session.
func (s *AuthService) CreateExchangeCode(ctx context.Context, userID, sessionTokenID, systemCode, ip, userAgent string) (code string, err error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.CreateExchangeCode")
	defer func() { s.finish(ctx, span, "exchange_code", err) }()

	if s.exchange == nil {
		return "", errors.New("auth: exchange manager not configured")
	}
	if strings.TrimSpace(systemCode) == "" {
		return "", fmt.Errorf("%w: system code is required", ErrValidation)
	}
	central, err := s.validateCentral(ctx, userID, sessionTokenID)
	if err != nil {
		return "", err
	}
	user, err := s.activeUser(ctx, userID)
	if err != nil {
		return "", err
	}
	sys, err := s.systems.GetByCode(ctx, strings.TrimSpace(systemCode))
	if err != nil {
		return "", err
	}
	if sys == nil || !sys.Enabled {
		return "", ErrUnauthorizedSystem
	}
	if _, err := s.rolesFor(ctx, user.ID, sys.ID); err != nil {
		return "", err
	}
	code, err = s.exchange.GenerateCode(ctx, user.ID, sys.ID, central.ID, ip, userAgent)
	if err != nil {
		return "", err
	}
	s.logEvent(ctx, auditdomain.EventExchangeCode, user.ID, map[string]any{"system": sys.Code, "session_id": central.ID})
	return code, nil
}

// RedeemExchangeCode redeems code on behalf of systemID, authenticated by secret.
func (s *AuthService) RedeemExchangeCode(ctx context.Context, code, systemID, secret, ip, userAgent string) (pair *identitydomain.TokenPair, err error) {
	ctx, span := s.tracer.Start(ctx, "AuthService.RedeemExchangeCode")
	defer func() { s.finish(ctx, span, "exchange_redeem", err) }()

	if s.exchange == nil {
		return nil, errors.New("auth: exchange manager not configured")
	}
	pair, err = s.exchange.Redeem(ctx, code, systemID, secret, ip, userAgent)
	if err != nil {
		mapped := exchangeError(err)
		if IsAuthError(mapped) {
			s.logger.Info("exchange redeem rejected", zap.String("system_id", systemID), zap.Error(err))
		}
		return nil, mapped
	}
	s.logEvent(ctx, auditdomain.EventExchangeRedeem, pair.UserID, map[string]any{"system_id": systemID, "session_id": pair.SessionID})
	return pair, nil
}

// IssueSystemPair mints a system token and a refresh credential bound to (sys, new session).
// The user must hold at least one role owned by sys.
func (s *AuthService) IssueSystemPair(ctx context.Context, user *userdomain.User, sys *systemdomain.System, scope, ip, device string) (*identitydomain.TokenPair, error) {
	roles, err := s.rolesFor(ctx, user.ID, sys.ID)
	if err != nil {
		return nil, err
	}
	pair, err := s.issueSystem(ctx, user, sys, roles, scope, ip, device)
	if err != nil {
		return nil, err
	}
	cred, err := s.refresh.Generate(ip, device, sys.ID, pair.SessionID)
	if err != nil {
		return nil, err
	}
	if err := s.refresh.Persist(ctx, user.ID, cred); err != nil {
		return nil, err
	}
	pair.RefreshToken = cred.Token
	return pair, nil
}

// HandleRefreshReuse responds to a replayed, already rotated refresh credential by
// auditing it and, when ReuseRevokesAll is set, revoking every refresh credential of its subject.
func (s *AuthService) HandleRefreshReuse(ctx context.Context, stale *refreshdomain.RefreshToken) {
	s.metrics.RecordReuse(ctx)
	var n int64
	if s.cfg.ReuseRevokesAll {
		var err error
		n, err = s.refresh.RevokeAll(ctx, stale.UserID)
		if err != nil {
			s.logger.Error("revoke refresh tokens after reuse", zap.String("user_id", stale.UserID), zap.Error(err))
		}
	}
	s.logEvent(ctx, auditdomain.EventRefreshTokenReuse, stale.UserID, map[string]any{
		"refresh_token_id":       stale.ID,
		"refresh_tokens_revoked": n,
	})
}

// authenticate resolves the user by document (preferred) or email and verifies the password.
// Unknown users and wrong passwords are indistinguishable.
func (s *AuthService) authenticate(ctx context.Context, document, email, password string) (*userdomain.User, error) {
	document = strings.TrimSpace(document)
	email = strings.TrimSpace(strings.ToLower(email))
	if password == "" || (document == "" && email == "") {
		return nil, fmt.Errorf("%w: document or email and password are required", ErrValidation)
	}
	var user *userdomain.User
	var err error
	if document != "" {
		user, err = s.users.GetByDocument(ctx, document)
	} else {
		user, err = s.users.GetByEmail(ctx, email)
	}
	if err != nil {
		return nil, err
	}
	hash := ""
	if user != nil {
		hash = user.PasswordHash
	}
	if err := s.verifier.Verify(ctx, hash, []byte(password)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, ErrInvalidCredentials
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	if !user.Active() {
		return nil, ErrUserDisabled
	}
	return user, nil
}

func (s *AuthService) activeUser(ctx context.Context, userID string) (*userdomain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if !user.Active() {
		return nil, ErrUserDisabled
	}
	return user, nil
}

func (s *AuthService) validateCentral(ctx context.Context, userID, tokenID string) (*sessiondomain.Session, error) {
	sess, err := s.ledger.ValidateActiveSession(ctx, userID, tokenID, security.KindSession)
	if err != nil {
		if errors.Is(err, sessionservice.ErrSessionInvalid) {
			return nil, ErrSessionInvalid
		}
		return nil, err
	}
	return sess, nil
}

// rolesFor returns the user's roles owned by systemID, or ErrUnauthorizedSystem when there are none.
func (s *AuthService) rolesFor(ctx context.Context, userID, systemID string) ([]*roledomain.Role, error) {
	roles, err := s.roles.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	owned := roledomain.ForSystem(roles, systemID)
	if len(owned) == 0 {
		return nil, ErrUnauthorizedSystem
	}
	return owned, nil
}

// authorizedSystems returns the enabled systems owning at least one of the user's roles, in role order.
func (s *AuthService) authorizedSystems(ctx context.Context, userID string) ([]*systemdomain.System, error) {
	roles, err := s.roles.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	var out []*systemdomain.System
	for _, id := range roledomain.SystemIDs(roles) {
		sys, err := s.systems.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if sys != nil && sys.Enabled {
			out = append(out, sys)
		}
	}
	return out, nil
}

func (s *AuthService) issueCentral(ctx context.Context, user *userdomain.User, scope, ip, device string) (*identitydomain.TokenPair, error) {
	systems, err := s.authorizedSystems(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	codes := make([]string, 0, len(systems))
	summaries := make([]systemdomain.Summary, 0, len(systems))
	for _, sys := range systems {
		codes = append(codes, sys.Code)
		summaries = append(summaries, sys.Summary())
	}
	recordID := uuid.New().String()
	issued, err := s.tokens.IssueCentralToken(user.ID, uuid.New().String(), recordID, user.Email, codes, scope, s.cfg.CentralTTL)
	if err != nil {
		return nil, err
	}
	if err := s.record(ctx, recordID, user.ID, issued, ip, device); err != nil {
		return nil, err
	}
	return &identitydomain.TokenPair{
		AccessToken: issued.Token,
		Kind:        issued.Kind,
		ExpiresAt:   issued.ExpiresAt,
		SessionID:   recordID,
		UserID:      user.ID,
		Systems:     summaries,
	}, nil
}

func (s *AuthService) issueSystem(ctx context.Context, user *userdomain.User, sys *systemdomain.System, roles []*roledomain.Role, scope, ip, device string) (*identitydomain.TokenPair, error) {
	perm, err := s.permissionFor(ctx, roles, sys.ID)
	if err != nil {
		return nil, err
	}
	recordID := uuid.New().String()
	issued, err := s.tokens.Issue(security.Subject{
		UserID:          user.ID,
		SessionRecordID: recordID,
		Email:           user.Email,
		DocumentType:    user.DocumentType,
		DocumentNumber:  user.DocumentNumber,
		Username:        user.Username,
		FullName:        user.FullName,
	}, security.System{
		Name:       sys.Name,
		Code:       sys.Code,
		Scope:      scope,
		Roles:      roledomain.Names(roles),
		Permission: perm,
	}, s.cfg.SystemTTL)
	if err != nil {
		return nil, err
	}
	if err := s.record(ctx, recordID, user.ID, issued, ip, device); err != nil {
		return nil, err
	}
	return &identitydomain.TokenPair{
		AccessToken: issued.Token,
		Kind:        issued.Kind,
		ExpiresAt:   issued.ExpiresAt,
		SessionID:   recordID,
		UserID:      user.ID,
	}, nil
}

// permissionFor encodes each role's grants and merges them. It returns "" when no role holds a grant.
func (s *AuthService) permissionFor(ctx context.Context, roles []*roledomain.Role, systemID string) (string, error) {
	if s.grants == nil {
		return "", nil
	}
	grants, err := s.grants.ModuleGrants(ctx, roledomain.IDs(roles), systemID)
	if err != nil {
		return "", err
	}
	if len(grants) == 0 {
		return "", nil
	}
	byRole := make(map[string][]permission.Entry)
	for _, g := range grants {
		byRole[g.RoleID] = append(byRole[g.RoleID], permission.NewEntry(g.BitPosition, g.Level))
	}
	values := make([]*big.Int, 0, len(byRole))
	for _, entries := range byRole {
		values = append(values, permission.Encode(entries))
	}
	return permission.Format(permission.Merge(values...)), nil
}

func (s *AuthService) record(ctx context.Context, recordID, userID string, issued security.Issued, ip, device string) error {
	return s.ledger.Record(ctx, &sessiondomain.Session{
		ID:        recordID,
		UserID:    userID,
		TokenID:   issued.TokenID,
		Kind:      issued.Kind,
		Audience:  issued.Audience,
		Scope:     issued.Scope,
		IssuedAt:  issued.IssuedAt,
		ExpiresAt: issued.ExpiresAt,
		Device:    device,
		IPAddress: ip,
	})
}

func (s *AuthService) logEvent(ctx context.Context, eventType, userID string, detail any) {
	if s.audit == nil {
		return
	}
	s.audit.LogEvent(ctx, eventType, userID, detail)
}

// finish ends span and records the flow outcome.
func (s *AuthService) finish(ctx context.Context, span trace.Span, flow string, err error) {
	result := telemetry.ResultOK
	switch {
	case err == nil:
	case IsAuthError(err) || errors.Is(err, ErrValidation):
		result = telemetry.ResultDenied
		span.SetAttributes(attribute.String("auth.failure", err.Error()))
	default:
		result = telemetry.ResultError
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	s.metrics.Record(ctx, flow, result)
	span.End()
}

package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sso-identity-provider/internal/exchange/domain"
	"sso-identity-provider/internal/exchange/repository"
	identitydomain "sso-identity-provider/internal/identity/domain"
	"sso-identity-provider/internal/security"
	sessiondomain "sso-identity-provider/internal/session/domain"
	sessionservice "sso-identity-provider/internal/session/service"
	systemdomain "sso-identity-provider/internal/system/domain"
	userdomain "sso-identity-provider/internal/user/domain"
)

// DefaultTTL is the exchange code lifetime when none is configured.
const DefaultTTL = 5 * time.Minute

// Redemption failures. Each step of Redeem has its own error so callers can log
// precisely; the HTTP boundary collapses them.
var (
	ErrInvalidCode              = errors.New("exchange code is malformed")
	ErrSystemNotFound           = errors.New("system not found or disabled")
	ErrInvalidSecret            = errors.New("system secret mismatch")
	ErrCodeInvalidUsedOrExpired = errors.New("exchange code not found, already used or expired")
	ErrUserNotFound             = errors.New("user not found")
	ErrUserDisabled             = errors.New("user disabled")
	ErrSessionInvalid           = errors.New("session for exchange code is not active")
)

// SystemRegistry resolves systems by id.
type SystemRegistry interface {
	GetByID(ctx context.Context, id string) (*systemdomain.System, error)
}

// UserRepo resolves users by id.
type UserRepo interface {
	GetByID(ctx context.Context, id string) (*userdomain.User, error)
}

// SessionValidator checks that a ledger record is still live.
type SessionValidator interface {
	ValidateByID(ctx context.Context, sessionRecordID string) (*sessiondomain.Session, error)
}

// PairIssuer mints and records a system token plus refresh credential for u on sys.
type PairIssuer interface {
	IssueSystemPair(ctx context.Context, u *userdomain.User, sys *systemdomain.System, scope, ip, device string) (*identitydomain.TokenPair, error)
}

// Manager issues and redeems exchange codes.
type Manager struct {
	repo     repository.Repository
	systems  SystemRegistry
	users    UserRepo
	sessions SessionValidator
	issuer   PairIssuer
	ttl      time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// NewManager returns a Manager. The PairIssuer may be set later with SetPairIssuer
// when it depends on the Manager itself.
func NewManager(repo repository.Repository, systems SystemRegistry, users UserRepo, sessions SessionValidator, opts ...Option) *Manager {
	m := &Manager{
		repo:     repo,
		systems:  systems,
		users:    users,
		sessions: sessions,
		ttl:      DefaultTTL,
		logger:   zap.NewNop(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Manager) SetPairIssuer(p PairIssuer) { m.issuer = p }

// GenerateCode creates and stores a code for userID's central session sessionID, redeemable by systemID.
func (m *Manager) GenerateCode(ctx context.Context, userID, systemID, sessionID, ip, userAgent string) (string, error) {
	now := m.now()
	c := &domain.Code{
		ID:        uuid.New().String(),
		SystemID:  systemID,
		UserID:    userID,
		SessionID: sessionID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
		Device:    userAgent,
		IPAddress: ip,
	}
	if err := m.repo.Create(ctx, c); err != nil {
		return "", err
	}
	return c.ID, nil
}

// Redeem trades a code for a system token pair. The code is consumed only after
// the system and its secret check out; a wrong secret leaves it redeemable.
func (m *Manager) Redeem(ctx context.Context, code, systemID, secret, ip, userAgent string) (*identitydomain.TokenPair, error) {
	if _, err := uuid.Parse(code); err != nil {
		return nil, ErrInvalidCode
	}
	sys, err := m.systems.GetByID(ctx, systemID)
	if err != nil {
		return nil, err
	}
	if sys == nil || !sys.Enabled {
		return nil, ErrSystemNotFound
	}
	if !security.SecretEqual(secret, sys.Secret) {
		m.logger.Warn("exchange redeem secret mismatch", zap.String("system_id", systemID))
		return nil, ErrInvalidSecret
	}
	c, err := m.repo.Consume(ctx, code, sys.ID, m.now())
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrCodeInvalidUsedOrExpired
	}
	u, err := m.users.GetByID(ctx, c.UserID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrUserNotFound
	}
	if !u.Active() {
		return nil, ErrUserDisabled
	}
	if _, err := m.sessions.ValidateByID(ctx, c.SessionID); err != nil {
		if errors.Is(err, sessionservice.ErrSessionInvalid) {
			return nil, ErrSessionInvalid
		}
		return nil, err
	}
	if m.issuer == nil {
		return nil, errors.New("exchange: pair issuer not configured")
	}
	pair, err := m.issuer.IssueSystemPair(ctx, u, sys, "", ip, userAgent)
	if err != nil {
		return nil, err
	}
	m.logger.Info("exchange code redeemed",
		zap.String("user_id", u.ID), zap.String("system", sys.Code), zap.String("session_id", c.SessionID))
	return pair, nil
}

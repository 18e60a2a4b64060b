package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sso-identity-provider/internal/refresh/domain"
	"sso-identity-provider/internal/refresh/repository"
	"sso-identity-provider/internal/security"
)

// DefaultTTL is the refresh credential lifetime when none is configured.
const DefaultTTL = 30 * 24 * time.Hour

// ErrInvalidRefreshToken covers unknown, revoked and expired credentials alike.
var ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")

// maxChain bounds Chain when stored data is corrupt.
const maxChain = 1000

// ReuseHook is called when a credential that was already rotated is presented again.
// The token passed is the presented (stale) credential.
type ReuseHook func(ctx context.Context, stale *domain.RefreshToken)

// RotateResult is the outcome of a successful rotation. Next carries the raw token.
type RotateResult struct {
	Previous *domain.RefreshToken
	Next     *domain.RefreshToken
}

// Manager issues, rotates and revokes opaque refresh credentials.
type Manager struct {
	repo    repository.Repository
	ttl     time.Duration
	logger  *zap.Logger
	now     func() time.Time
	onReuse ReuseHook
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

// WithReuseHook registers the callback for replayed credentials.
func WithReuseHook(h ReuseHook) Option {
	return func(m *Manager) { m.onReuse = h }
}

// NewManager returns a Manager. ttl <= 0 uses DefaultTTL.
func NewManager(repo repository.Repository, ttl time.Duration, opts ...Option) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &Manager{
		repo:   repo,
		ttl:    ttl,
		logger: zap.NewNop(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// SetReuseHook replaces the reuse callback after construction.
func (m *Manager) SetReuseHook(h ReuseHook) { m.onReuse = h }

// TTL returns the configured credential lifetime.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Generate builds a new credential bound to systemID (empty for central) and sessionID.
// It is not persisted; UserID is set by Persist.
func (m *Manager) Generate(ip, device, systemID, sessionID string) (*domain.RefreshToken, error) {
	raw, err := security.GenerateOpaqueToken(security.OpaqueTokenBytes)
	if err != nil {
		return nil, err
	}
	now := m.now()
	return &domain.RefreshToken{
		ID:        uuid.New().String(),
		Token:     raw,
		TokenHash: security.HashToken(raw),
		SystemID:  systemID,
		SessionID: sessionID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
		Device:    device,
		IPAddress: ip,
	}, nil
}

// Persist stores cred for userID.
func (m *Manager) Persist(ctx context.Context, userID string, cred *domain.RefreshToken) error {
	cred.UserID = userID
	return m.repo.Create(ctx, cred)
}

// Rotate exchanges presented for a fresh credential with the same subject, system and session.
// Exactly one of any number of concurrent rotations of the same token succeeds.
func (m *Manager) Rotate(ctx context.Context, presented, ip, device string) (RotateResult, error) {
	if presented == "" {
		return RotateResult{}, ErrInvalidRefreshToken
	}
	now := m.now()
	old, err := m.repo.GetByHash(ctx, security.HashToken(presented))
	if err != nil {
		return RotateResult{}, err
	}
	if old == nil {
		return RotateResult{}, ErrInvalidRefreshToken
	}
	if !old.UsableAt(now) {
		if old.Rotated() {
			m.reuseDetected(ctx, old)
		}
		return RotateResult{}, ErrInvalidRefreshToken
	}
	next, err := m.Generate(ip, device, old.SystemID, old.SessionID)
	if err != nil {
		return RotateResult{}, err
	}
	next.UserID = old.UserID
	ok, err := m.repo.Rotate(ctx, old.TokenHash, next, now)
	if err != nil {
		return RotateResult{}, err
	}
	if !ok {
		return RotateResult{}, ErrInvalidRefreshToken
	}
	old.Revoked = true
	old.RevokedAt = &now
	old.ReplacedBy = next.TokenHash
	return RotateResult{Previous: old, Next: next}, nil
}

func (m *Manager) reuseDetected(ctx context.Context, stale *domain.RefreshToken) {
	head := stale.TokenHash
	if chain, err := m.chainFrom(ctx, stale.TokenHash); err == nil && len(chain) > 0 {
		head = chain[len(chain)-1].TokenHash
	}
	m.logger.Warn("refresh token reuse detected",
		zap.String("user_id", stale.UserID),
		zap.String("token_id", stale.ID),
		zap.String("chain_head", shortHash(head)))
	if m.onReuse != nil {
		m.onReuse(ctx, stale)
	}
}

// Revoke revokes token. It reports false when the token was unknown or already revoked.
func (m *Manager) Revoke(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	return m.repo.Revoke(ctx, security.HashToken(token), m.now())
}

// RevokeAll revokes every live credential of userID.
func (m *Manager) RevokeAll(ctx context.Context, userID string) (int64, error) {
	n, err := m.repo.RevokeAllByUser(ctx, userID, m.now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.logger.Info("refresh tokens revoked", zap.String("user_id", userID), zap.Int64("count", n))
	}
	return n, nil
}

// IsValid reports whether token exists, is unrevoked and unexpired. It changes nothing.
func (m *Manager) IsValid(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	t, err := m.repo.GetByHash(ctx, security.HashToken(token))
	if err != nil {
		return false, err
	}
	return t.UsableAt(m.now()), nil
}

// Chain returns the rotation chain starting at token and following replaced_by forward.
// It stops at a missing link or a repeated hash.
func (m *Manager) Chain(ctx context.Context, token string) ([]*domain.RefreshToken, error) {
	if token == "" {
		return nil, nil
	}
	return m.chainFrom(ctx, security.HashToken(token))
}

func (m *Manager) chainFrom(ctx context.Context, hash string) ([]*domain.RefreshToken, error) {
	var chain []*domain.RefreshToken
	seen := make(map[string]bool)
	for hash != "" && !seen[hash] && len(chain) < maxChain {
		seen[hash] = true
		t, err := m.repo.GetByHash(ctx, hash)
		if err != nil {
			return chain, err
		}
		if t == nil {
			break
		}
		chain = append(chain, t)
		hash = t.ReplacedBy
	}
	return chain, nil
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

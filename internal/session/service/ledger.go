package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"sso-identity-provider/internal/security"
	"sso-identity-provider/internal/session/domain"
	"sso-identity-provider/internal/session/repository"
)

var (
	ErrDuplicateSession = errors.New("session already recorded for token id")
	ErrSessionInvalid   = errors.New("session not found, revoked or expired")
	ErrNoActiveSessions = errors.New("no active sessions to revoke")
)

// Ledger records issued tokens and answers whether a token's session is still live.
type Ledger struct {
	repo   repository.Repository
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(s *Ledger) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Ledger) {
		if now != nil {
			s.now = now
		}
	}
}

func NewLedger(repo repository.Repository, opts ...Option) *Ledger {
	l := &Ledger{
		repo:   repo,
		logger: zap.NewNop(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Record inserts s. A second record for the same (user, token id) is a caller bug
// and is reported as ErrDuplicateSession.
func (l *Ledger) Record(ctx context.Context, s *domain.Session) error {
	if err := l.repo.Create(ctx, s); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			l.logger.Error("duplicate session record",
				zap.String("user_id", s.UserID), zap.String("token_id", s.TokenID))
			return ErrDuplicateSession
		}
		return err
	}
	return nil
}

// ValidateActiveSession returns the unrevoked, unexpired session for the token or ErrSessionInvalid.
func (l *Ledger) ValidateActiveSession(ctx context.Context, userID, tokenID string, kind security.Kind) (*domain.Session, error) {
	if userID == "" || tokenID == "" {
		return nil, ErrSessionInvalid
	}
	s, err := l.repo.GetActive(ctx, userID, tokenID, kind, l.now())
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, ErrSessionInvalid
	}
	return s, nil
}

// ValidateByID looks a session up by its record id and applies the same liveness rule.
func (l *Ledger) ValidateByID(ctx context.Context, sessionRecordID string) (*domain.Session, error) {
	if sessionRecordID == "" {
		return nil, ErrSessionInvalid
	}
	s, err := l.repo.GetByID(ctx, sessionRecordID)
	if err != nil {
		return nil, err
	}
	if !s.ActiveAt(l.now()) {
		return nil, ErrSessionInvalid
	}
	return s, nil
}

// Revoke revokes one session (tokenID set) or every session of userID (tokenID empty).
// It returns ErrNoActiveSessions when nothing was revoked.
func (l *Ledger) Revoke(ctx context.Context, userID, tokenID string) (int64, error) {
	n, err := l.repo.Revoke(ctx, userID, tokenID, l.now())
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrNoActiveSessions
	}
	l.logger.Info("sessions revoked",
		zap.String("user_id", userID), zap.String("token_id", tokenID), zap.Int64("count", n))
	return n, nil
}

// ListActive returns the user's live sessions, newest first.
func (l *Ledger) ListActive(ctx context.Context, userID string) ([]*domain.Session, error) {
	return l.repo.ListActive(ctx, userID, l.now())
}

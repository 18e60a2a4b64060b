package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"sso-identity-provider/internal/security"
	"sso-identity-provider/internal/session/domain"
)

// MemoryRepository is an in-process Repository with the same uniqueness and
// conditional-update semantics as PostgresRepository. Used by tests.
type MemoryRepository struct {
	mu   sync.Mutex
	byID map[string]*domain.Session
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]*domain.Session)}
}

func (r *MemoryRepository) Create(ctx context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.byID {
		if existing.UserID == s.UserID && existing.TokenID == s.TokenID {
			return fmt.Errorf("%w: user %s token %s", ErrDuplicate, s.UserID, s.TokenID)
		}
	}
	if _, ok := r.byID[s.ID]; ok {
		return fmt.Errorf("%w: id %s", ErrDuplicate, s.ID)
	}
	c := *s
	r.byID[s.ID] = &c
	return nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.byID[id]; ok {
		c := *s
		return &c, nil
	}
	return nil, nil
}

func (r *MemoryRepository) GetActive(ctx context.Context, userID, tokenID string, kind security.Kind, now time.Time) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.byID {
		if s.UserID == userID && s.TokenID == tokenID && s.Kind == kind && s.ActiveAt(now) {
			c := *s
			return &c, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepository) Revoke(ctx context.Context, userID, tokenID string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, s := range r.byID {
		if s.UserID != userID || !s.ActiveAt(at) || (tokenID != "" && s.TokenID != tokenID) {
			continue
		}
		t := at
		s.Revoked = true
		s.RevokedAt = &t
		n++
	}
	return n, nil
}

func (r *MemoryRepository) ListActive(ctx context.Context, userID string, now time.Time) ([]*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Session
	for _, s := range r.byID {
		if s.UserID == userID && s.ActiveAt(now) {
			c := *s
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssuedAt.After(out[j].IssuedAt) })
	return out, nil
}

// All returns a copy of every stored record, for assertions in tests.
func (r *MemoryRepository) All() []*domain.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Session, 0, len(r.byID))
	for _, s := range r.byID {
		c := *s
		out = append(out, &c)
	}
	return out
}

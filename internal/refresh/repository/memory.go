package repository

import (
	"context"
	"sync"
	"time"

	"sso-identity-provider/internal/refresh/domain"
)

// MemoryRepository is an in-process Repository. A single mutex makes Rotate
// behave like the conditional UPDATE: concurrent rotations have one winner.
type MemoryRepository struct {
	mu     sync.Mutex
	byHash map[string]*domain.RefreshToken
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byHash: make(map[string]*domain.RefreshToken)}
}

func (r *MemoryRepository) Create(ctx context.Context, t *domain.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.put(t)
	return nil
}

func (r *MemoryRepository) GetByHash(ctx context.Context, hash string) (*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.byHash[hash]; ok {
		c := *t
		return &c, nil
	}
	return nil, nil
}

func (r *MemoryRepository) Rotate(ctx context.Context, oldHash string, next *domain.RefreshToken, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.byHash[oldHash]
	if !ok || !old.UsableAt(now) {
		return false, nil
	}
	at := now
	old.Revoked = true
	old.RevokedAt = &at
	old.ReplacedBy = next.TokenHash
	r.put(next)
	return true, nil
}

func (r *MemoryRepository) Revoke(ctx context.Context, hash string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byHash[hash]
	if !ok || t.Revoked {
		return false, nil
	}
	ts := at
	t.Revoked = true
	t.RevokedAt = &ts
	return true, nil
}

func (r *MemoryRepository) RevokeAllByUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for _, t := range r.byHash {
		if t.UserID == userID && !t.Revoked {
			ts := at
			t.Revoked = true
			t.RevokedAt = &ts
			n++
		}
	}
	return n, nil
}

// put stores a copy without the raw token. Callers hold mu.
func (r *MemoryRepository) put(t *domain.RefreshToken) {
	c := *t
	c.Token = ""
	r.byHash[c.TokenHash] = &c
}

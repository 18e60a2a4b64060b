package repository

import (
	"context"
	"sync"
	"time"

	"sso-identity-provider/internal/exchange/domain"
)

// MemoryRepository is an in-process Repository with at-most-once Consume.
type MemoryRepository struct {
	mu sync.Mutex
	m  map[string]*domain.Code
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{m: make(map[string]*domain.Code)}
}

func (r *MemoryRepository) Create(ctx context.Context, c *domain.Code) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.m[c.ID] = &cp
	return nil
}

func (r *MemoryRepository) Consume(ctx context.Context, id, systemID string, now time.Time) (*domain.Code, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.m[id]
	if !ok || c.SystemID != systemID || !c.RedeemableAt(now) {
		return nil, nil
	}
	used := now
	c.UsedAt = &used
	cp := *c
	return &cp, nil
}

// Get returns a copy of the stored code or nil, for assertions in tests.
func (r *MemoryRepository) Get(id string) *domain.Code {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.m[id]; ok {
		cp := *c
		return &cp
	}
	return nil
}

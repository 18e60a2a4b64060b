package repository

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"sso-identity-provider/internal/system/domain"
)

// CachedRepository fronts a Repository with a size- and TTL-bounded LRU. Misses are not cached,
// so a newly registered system becomes visible immediately; edits become visible within ttl.
type CachedRepository struct {
	next  Repository
	cache *expirable.LRU[string, *domain.System]
}

// NewCachedRepository wraps next. size <= 0 disables caching.
func NewCachedRepository(next Repository, size int, ttl time.Duration) Repository {
	if size <= 0 {
		return next
	}
	return &CachedRepository{next: next, cache: expirable.NewLRU[string, *domain.System](size, nil, ttl)}
}

func (r *CachedRepository) GetByID(ctx context.Context, id string) (*domain.System, error) {
	return r.get(ctx, "id:"+id, func() (*domain.System, error) { return r.next.GetByID(ctx, id) })
}

func (r *CachedRepository) GetByCode(ctx context.Context, code string) (*domain.System, error) {
	return r.get(ctx, "code:"+code, func() (*domain.System, error) { return r.next.GetByCode(ctx, code) })
}

func (r *CachedRepository) GetByName(ctx context.Context, name string) (*domain.System, error) {
	return r.get(ctx, "name:"+name, func() (*domain.System, error) { return r.next.GetByName(ctx, name) })
}

func (r *CachedRepository) get(ctx context.Context, key string, load func() (*domain.System, error)) (*domain.System, error) {
	if s, ok := r.cache.Get(key); ok {
		c := *s
		return &c, nil
	}
	s, err := load()
	if err != nil || s == nil {
		return s, err
	}
	c := *s
	r.cache.Add(key, &c)
	return s, nil
}

// Package principal resolves bearer tokens to ACL principals.
package principal

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/vortikal/vxsearch/internal/db"
	"github.com/vortikal/vxsearch/internal/domain"
)

// store is the consumer interface for token lookups (ISP).
type store interface {
	LookupToken(ctx context.Context, token string) (domain.Principal, error)
}

type cacheEntry struct {
	principal domain.Principal
	expiresAt time.Time
}

// Resolver maps tokens to principals, caching lookups for a TTL.
type Resolver struct {
	store      store
	ttl        time.Duration
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
	now        func() time.Time

	mu    sync.Mutex
	cache *lru.Cache[[32]byte, *cacheEntry]
}

// New creates a Resolver. A non-positive ttl or size disables caching.
// cacheTotal is a counter vec with label "result" ("hit"/"miss"), passed explicitly.
func New(
	s store,
	size int,
	ttl time.Duration,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) (*Resolver, error) {
	r := &Resolver{
		store:      s,
		ttl:        ttl,
		cacheTotal: cacheTotal,
		logger:     logger,
		now:        time.Now,
	}
	if size > 0 && ttl > 0 {
		c, err := lru.New[[32]byte, *cacheEntry](size)
		if err != nil {
			return nil, fmt.Errorf("create principal cache: %w", err)
		}
		r.cache = c
	}
	return r, nil
}

// Resolve returns the principal for token. An empty token is anonymous;
// an unknown one is rejected as unauthorized.
func (r *Resolver) Resolve(ctx context.Context, token string) (domain.Principal, error) {
	if token == "" {
		return domain.Anonymous(), nil
	}

	key := sha256.Sum256([]byte(token))
	if p, ok := r.cached(key); ok {
		r.incCache("hit")
		return p, nil
	}
	r.incCache("miss")

	p, err := r.store.LookupToken(ctx, token)
	if err != nil {
		if errors.Is(err, db.ErrTokenNotFound) {
			return domain.Principal{}, domain.Unauthorized(err)
		}
		return domain.Principal{}, fmt.Errorf("lookup token: %w", err)
	}

	if r.cache != nil {
		r.mu.Lock()
		r.cache.Add(key, &cacheEntry{principal: p, expiresAt: r.now().Add(r.ttl)})
		r.mu.Unlock()
	}
	r.logger.Debug("Resolved principal", zap.String("id", p.ID), zap.Bool("root", p.Root))
	return p, nil
}

func (r *Resolver) cached(key [32]byte) (domain.Principal, bool) {
	if r.cache == nil {
		return domain.Principal{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.cache.Get(key)
	if !ok {
		return domain.Principal{}, false
	}
	if r.now().After(entry.expiresAt) {
		r.cache.Remove(key)
		return domain.Principal{}, false
	}
	return entry.principal, true
}

func (r *Resolver) incCache(result string) {
	if r.cacheTotal != nil {
		r.cacheTotal.WithLabelValues(result).Inc()
	}
}

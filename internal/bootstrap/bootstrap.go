// Package bootstrap assembles the search engine from configuration. It is
// the composition root shared by the server and the CLI.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/vortikal/vxsearch/internal/config"
	vxbleve "github.com/vortikal/vxsearch/internal/db/bleve"
	dbRedis "github.com/vortikal/vxsearch/internal/db/redis"
	"github.com/vortikal/vxsearch/internal/domain"
	"github.com/vortikal/vxsearch/internal/domain/schema"
	"github.com/vortikal/vxsearch/internal/metrics"
	"github.com/vortikal/vxsearch/internal/repository/principal"
	searchrepo "github.com/vortikal/vxsearch/internal/repository/search"
	searchuc "github.com/vortikal/vxsearch/internal/usecase/search"
)

// Engine holds the wired search components.
type Engine struct {
	Schema   schema.Schema
	Index    *vxbleve.Manager
	Search   *searchuc.Service
	Resolver *principal.Resolver
	// Tokens is the Redis token store, nil for the static driver.
	Tokens *dbRedis.Store
}

// Close releases the index and the token store.
func (e *Engine) Close() error {
	if e.Tokens != nil {
		e.Tokens.Close()
	}
	if err := e.Index.Close(); err != nil {
		return fmt.Errorf("close index: %w", err)
	}
	return nil
}

// New opens the index and wires the search service. Metrics are registered
// on the default prometheus registry.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*Engine, error) {
	metrics.RegisterSearchMetrics()

	sch, err := schema.FromMap(cfg.Schema.Properties)
	if err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}

	idx, err := vxbleve.Open(cfg.Index.Path, sch)
	if err != nil {
		return nil, err
	}
	manager := vxbleve.NewManager(idx, logger.Named("index"))
	e := &Engine{Schema: sch, Index: manager}

	var tokenStore interface {
		LookupToken(ctx context.Context, token string) (domain.Principal, error)
	}
	switch cfg.Auth.Driver {
	case "redis":
		rs, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:     cfg.Redis.Addrs,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
		if err != nil {
			_ = manager.Close()
			return nil, fmt.Errorf("redis token store: %w", err)
		}
		e.Tokens = rs
		if err := rs.WaitForReady(ctx, time.Duration(cfg.Redis.ReadinessTimeout)*time.Second); err != nil {
			_ = e.Close()
			return nil, fmt.Errorf("redis not ready: %w", err)
		}
		tokenStore = rs
	default:
		tokenStore = principal.NewStaticStore(StaticPrincipals(cfg.Auth.Tokens))
	}

	resolver, err := principal.New(
		tokenStore,
		cfg.Auth.CacheSize,
		time.Duration(cfg.Auth.CacheTTLSec)*time.Second,
		metrics.PrincipalCacheTotal,
		logger.Named("principal"),
	)
	if err != nil {
		_ = e.Close()
		return nil, err
	}
	e.Resolver = resolver

	e.Search = searchuc.New(
		manager,
		searchrepo.NewBuilder(sch, resolver),
		searchrepo.NewMapper(sch),
		searchuc.Config{
			MaxHits:               cfg.Search.MaxHits,
			WarnThreshold:         cfg.SearchWarnThreshold(),
			AnonymousMaxStaleness: cfg.AnonymousMaxStaleness(),
		},
		logger.Named("search"),
	)
	return e, nil
}

// StaticPrincipals converts configured tokens to principals.
func StaticPrincipals(tokens map[string]config.TokenConfig) map[string]domain.Principal {
	out := make(map[string]domain.Principal, len(tokens))
	for token, tc := range tokens {
		out[token] = domain.Principal{
			ID:     tc.ID,
			Groups: append([]string(nil), tc.Groups...),
			Root:   tc.Root,
		}
	}
	return out
}

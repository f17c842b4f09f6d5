// Package redis resolves auth tokens stored in Redis hashes.
package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/rueidis"

	"github.com/vortikal/vxsearch/internal/db"
	"github.com/vortikal/vxsearch/internal/domain"
)

// Config holds connection parameters for a Redis store.
type Config struct {
	Addrs     []string
	Username  string
	Password  string
	DB        int
	KeyPrefix string
}

// Store looks up token principals via rueidis.
type Store struct {
	client rueidis.Client
	prefix string
}

// NewStore creates a Redis store via rueidis.
func NewStore(cfg Config) (*Store, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("addrs is required")
	}

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	return &Store{client: client, prefix: cfg.KeyPrefix}, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	cmd := s.client.B().Ping().Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpPing, Err: err}
	}
	return nil
}

// Close shuts down the client.
func (s *Store) Close() {
	s.client.Close()
}

// WaitForReady polls Ping until the store responds or timeout expires.
func (s *Store) WaitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for redis: %w", ctx.Err())
		case <-ticker.C:
			if err := s.Ping(ctx); err == nil {
				return nil
			}
		}
	}
}

// TokenKey returns the hash key holding a token's principal.
func (s *Store) TokenKey(token string) string {
	return s.prefix + "token:" + token
}

// LookupToken reads the principal bound to token. The hash carries "id",
// a comma-separated "groups" list and an optional "root" flag.
func (s *Store) LookupToken(ctx context.Context, token string) (domain.Principal, error) {
	cmd := s.client.B().Hgetall().Key(s.TokenKey(token)).Build()
	m, err := s.client.Do(ctx, cmd).AsStrMap()
	if err != nil {
		return domain.Principal{}, &db.Error{Op: db.OpHGetAll, Err: err}
	}
	if len(m) == 0 || m["id"] == "" {
		return domain.Principal{}, db.ErrTokenNotFound
	}

	p := domain.Principal{ID: m["id"], Root: m["root"] == "1" || m["root"] == "true"}
	for _, g := range strings.Split(m["groups"], ",") {
		if g = strings.TrimSpace(g); g != "" {
			p.Groups = append(p.Groups, g)
		}
	}
	return p, nil
}

package principal

import (
	"context"

	"github.com/vortikal/vxsearch/internal/db"
	"github.com/vortikal/vxsearch/internal/domain"
)

// StaticStore serves principals from a fixed token table, as loaded from config.
type StaticStore struct {
	tokens map[string]domain.Principal
}

// NewStaticStore copies tokens into a new store.
func NewStaticStore(tokens map[string]domain.Principal) *StaticStore {
	m := make(map[string]domain.Principal, len(tokens))
	for k, v := range tokens {
		m[k] = v
	}
	return &StaticStore{tokens: m}
}

// LookupToken returns the principal bound to token.
func (s *StaticStore) LookupToken(_ context.Context, token string) (domain.Principal, error) {
	p, ok := s.tokens[token]
	if !ok {
		return domain.Principal{}, db.ErrTokenNotFound
	}
	return p, nil
}

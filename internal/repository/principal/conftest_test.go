package principal

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/vortikal/vxsearch/internal/domain"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	lookupFn func(ctx context.Context, token string) (domain.Principal, error)
	calls    int
}

func (m *mockStore) LookupToken(ctx context.Context, token string) (domain.Principal, error) {
	m.calls++
	return m.lookupFn(ctx, token)
}

func newTestResolver(t *testing.T, ms *mockStore, ttl time.Duration) (*Resolver, *time.Time) {
	t.Helper()
	r, err := New(ms, 16, ttl, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }
	return r, &now
}

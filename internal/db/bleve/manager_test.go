package bleve

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	index "github.com/blevesearch/bleve_index_api"

	"github.com/vortikal/vxsearch/internal/db"
	"github.com/vortikal/vxsearch/internal/domain/schema"
)

func testSchema(t *testing.T) schema.Schema {
	t.Helper()
	s, err := schema.FromMap(map[string]string{"title": "text", "size": "number", "kind": "string"})
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	return s
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestManager(t *testing.T) (*Manager, *fakeClock) {
	t.Helper()
	idx, err := Open(filepath.Join(t.TempDir(), "idx"), testSchema(t))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := NewManager(idx, nil, WithClock(clock.Now))
	t.Cleanup(func() { _ = m.Close() })
	return m, clock
}

func put(t *testing.T, m *Manager, ids ...string) {
	t.Helper()
	err := m.Update(func(b *bleve.Batch) error {
		for _, id := range ids {
			if err := b.Index(id, map[string]interface{}{
				"uri":      id,
				"title":    "doc " + id,
				"kind":     "file",
				"size":     float64(len(id)),
				"acl_read": []string{"pseudo:all"},
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
}

func docCount(t *testing.T, h db.Handle) uint64 {
	t.Helper()
	n, err := h.Reader().DocCount()
	if err != nil {
		t.Fatalf("doc count: %v", err)
	}
	return n
}

func TestOpen_ReopensExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "idx")
	idx, err := Open(path, testSchema(t))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := idx.Index("/a", map[string]interface{}{"uri": "/a"}); err != nil {
		t.Fatalf("index: %v", err)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	idx, err = Open(path, testSchema(t))
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer idx.Close()
	n, err := idx.DocCount()
	if err != nil || n != 1 {
		t.Errorf("DocCount() = %d, %v; want 1", n, err)
	}
}

func TestNewMapping_FieldTypes(t *testing.T) {
	im, ok := NewMapping(testSchema(t)).(*mapping.IndexMappingImpl)
	if !ok {
		t.Fatal("unexpected mapping type")
	}
	want := map[string]string{
		"title":    "text",
		"size":     "number",
		"kind":     "text",
		"uri":      "text",
		"acl_read": "text",
	}
	for name, typ := range want {
		dm := im.DefaultMapping.Properties[name]
		if dm == nil || len(dm.Fields) != 1 {
			t.Fatalf("no field mapping for %q", name)
		}
		if dm.Fields[0].Type != typ {
			t.Errorf("%s type = %q, want %q", name, dm.Fields[0].Type, typ)
		}
	}
	if im.DefaultMapping.Properties["kind"].Fields[0].Analyzer != "keyword" {
		t.Error("string property should use the keyword analyzer")
	}
	if im.DefaultMapping.Properties["acl_read"].Fields[0].Store {
		t.Error("acl_read should not be stored")
	}
}

func TestAcquire_SeesPriorWrites(t *testing.T) {
	m, _ := newTestManager(t)
	put(t, m, "/a", "/b")

	h, err := m.Acquire(context.Background(), 0)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if n := docCount(t, h); n != 2 {
		t.Errorf("DocCount() = %d, want 2", n)
	}
	if err := m.Release(h); err != nil {
		t.Fatalf("release: %v", err)
	}

	put(t, m, "/c")
	h, err = m.Acquire(context.Background(), 0)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer m.Release(h)
	if n := docCount(t, h); n != 3 {
		t.Errorf("DocCount() after write = %d, want 3", n)
	}
}

func TestAcquire_ReusesFreshSnapshot(t *testing.T) {
	m, _ := newTestManager(t)
	put(t, m, "/a")

	h1, err := m.Acquire(context.Background(), 0)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	h2, err := m.Acquire(context.Background(), 0)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if h1.Reader() != h2.Reader() {
		t.Error("expected both handles to share one reader")
	}
	if err := m.Release(h1); err != nil {
		t.Fatalf("release h1: %v", err)
	}
	if err := m.Release(h2); err != nil {
		t.Fatalf("release h2: %v", err)
	}
}

func TestAcquire_StalenessWindow(t *testing.T) {
	m, clock := newTestManager(t)
	put(t, m, "/a")

	h, err := m.Acquire(context.Background(), 0)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	_ = m.Release(h)

	put(t, m, "/b")
	clock.Advance(time.Second)

	// Within the window the stale snapshot is served.
	h, err = m.Acquire(context.Background(), 5*time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if n := docCount(t, h); n != 1 {
		t.Errorf("stale DocCount() = %d, want 1", n)
	}
	_ = m.Release(h)
	if age := m.DirtyAge(); age != time.Second {
		t.Errorf("DirtyAge() = %v, want 1s", age)
	}

	// Past the window the manager refreshes.
	clock.Advance(10 * time.Second)
	h, err = m.Acquire(context.Background(), 5*time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if n := docCount(t, h); n != 2 {
		t.Errorf("refreshed DocCount() = %d, want 2", n)
	}
	_ = m.Release(h)
	if age := m.DirtyAge(); age != 0 {
		t.Errorf("DirtyAge() after refresh = %v, want 0", age)
	}
}

func TestAcquire_OldHandleSurvivesRefresh(t *testing.T) {
	m, _ := newTestManager(t)
	put(t, m, "/a")

	old, err := m.Acquire(context.Background(), 0)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	put(t, m, "/b")
	fresh, err := m.Acquire(context.Background(), 0)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	if n := docCount(t, old); n != 1 {
		t.Errorf("old DocCount() = %d, want 1", n)
	}
	if n := docCount(t, fresh); n != 2 {
		t.Errorf("fresh DocCount() = %d, want 2", n)
	}
	if err := m.Release(old); err != nil {
		t.Fatalf("release old: %v", err)
	}
	if err := m.Release(fresh); err != nil {
		t.Fatalf("release fresh: %v", err)
	}
}

func TestRelease_Twice(t *testing.T) {
	m, _ := newTestManager(t)
	h, err := m.Acquire(context.Background(), 0)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if err := m.Release(h); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if err := m.Release(h); !errors.Is(err, db.ErrHandleReleased) {
		t.Errorf("second release = %v, want ErrHandleReleased", err)
	}
}

type otherHandle struct{}

func (otherHandle) Reader() index.IndexReader     { return nil }
func (otherHandle) Mapping() mapping.IndexMapping { return nil }
func (otherHandle) RefreshedAt() time.Time        { return time.Time{} }

func TestRelease_Foreign(t *testing.T) {
	m1, _ := newTestManager(t)
	m2, _ := newTestManager(t)

	h, err := m1.Acquire(context.Background(), 0)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer m1.Release(h)

	if err := m2.Release(h); !errors.Is(err, db.ErrForeignHandle) {
		t.Errorf("release on other manager = %v, want ErrForeignHandle", err)
	}
	if err := m1.Release(otherHandle{}); !errors.Is(err, db.ErrForeignHandle) {
		t.Errorf("release of foreign type = %v, want ErrForeignHandle", err)
	}
}

func TestAcquire_Closed(t *testing.T) {
	m, _ := newTestManager(t)
	if err := m.Ping(context.Background()); err != nil {
		t.Fatalf("ping open index: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := m.Acquire(context.Background(), 0); !errors.Is(err, db.ErrIndexClosed) {
		t.Errorf("acquire after close = %v, want ErrIndexClosed", err)
	}
	if err := m.Update(func(*bleve.Batch) error { return nil }); !errors.Is(err, db.ErrIndexClosed) {
		t.Errorf("update after close = %v, want ErrIndexClosed", err)
	}
	if err := m.Ping(context.Background()); !errors.Is(err, db.ErrIndexClosed) {
		t.Errorf("ping after close = %v, want ErrIndexClosed", err)
	}
}

func TestAcquire_CanceledContext(t *testing.T) {
	m, _ := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Acquire(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("acquire = %v, want context.Canceled", err)
	}
}

func TestUpdate_CallbackError(t *testing.T) {
	m, _ := newTestManager(t)
	boom := errors.New("boom")
	if err := m.Update(func(*bleve.Batch) error { return boom }); !errors.Is(err, boom) {
		t.Errorf("update = %v, want boom", err)
	}
	if age := m.DirtyAge(); age != 0 {
		t.Errorf("DirtyAge() after failed update = %v, want 0", age)
	}
}

func TestAcquire_Concurrent(t *testing.T) {
	m, _ := newTestManager(t)
	put(t, m, "/a")

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := m.Acquire(context.Background(), 0)
			if err != nil {
				errs <- err
				return
			}
			if err := m.Release(h); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent acquire/release: %v", err)
	}
}

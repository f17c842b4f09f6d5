package search

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/blevesearch/bleve/v2"
	index "github.com/blevesearch/bleve_index_api"

	"github.com/vortikal/vxsearch/internal/db"
	vxbleve "github.com/vortikal/vxsearch/internal/db/bleve"
	"github.com/vortikal/vxsearch/internal/domain"
	"github.com/vortikal/vxsearch/internal/domain/schema"
	"github.com/vortikal/vxsearch/internal/domain/search/query"
	"github.com/vortikal/vxsearch/internal/domain/search/request"
	"github.com/vortikal/vxsearch/internal/domain/search/result"
	"github.com/vortikal/vxsearch/internal/domain/search/selector"
	"github.com/vortikal/vxsearch/internal/domain/search/sorting"
	searchrepo "github.com/vortikal/vxsearch/internal/repository/search"
)

// mockResolver implements the builder's resolver for tests.
type mockResolver struct {
	tokens map[string]domain.Principal
}

func (m *mockResolver) Resolve(_ context.Context, token string) (domain.Principal, error) {
	if token == "" {
		return domain.Anonymous(), nil
	}
	p, ok := m.tokens[token]
	if !ok {
		return domain.Principal{}, domain.Unauthorized(nil)
	}
	return p, nil
}

var testPrincipals = map[string]domain.Principal{
	"root":  {ID: "admin", Root: true},
	"alice": {ID: "alice", Groups: []string{"staff"}},
}

func testSchema(t testing.TB) schema.Schema {
	t.Helper()
	s, err := schema.FromMap(map[string]string{
		"title": "text",
		"kind":  "string",
		"seq":   "number",
	})
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	return s
}

// docSpec describes one fixture document.
type docSpec struct {
	kind  string
	seq   int
	acl   []string
	title string
}

func uriOf(i int) string { return fmt.Sprintf("/d/%03d", i) }

// fixture is a real index plus the engine collaborators around it.
type fixture struct {
	manager *vxbleve.Manager
	access  *countingAccess
	builder *searchrepo.Builder
	mapper  *searchrepo.Mapper
}

func newFixture(t testing.TB, docs []docSpec) *fixture {
	t.Helper()
	sch := testSchema(t)
	idx, err := vxbleve.Open(filepath.Join(t.TempDir(), "idx"), sch)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	m := vxbleve.NewManager(idx, nil)
	t.Cleanup(func() { _ = m.Close() })

	err = m.Update(func(b *bleve.Batch) error {
		for i, d := range docs {
			acl := d.acl
			if acl == nil {
				acl = []string{domain.PseudoAll}
			}
			title := d.title
			if title == "" {
				title = fmt.Sprintf("document number %d", i)
			}
			if err := b.Index(uriOf(i), map[string]interface{}{
				"uri":      uriOf(i),
				"title":    title,
				"kind":     d.kind,
				"seq":      float64(d.seq),
				"acl_read": acl,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	return &fixture{
		manager: m,
		access:  &countingAccess{inner: m},
		builder: searchrepo.NewBuilder(sch, &mockResolver{tokens: testPrincipals}),
		mapper:  searchrepo.NewMapper(sch),
	}
}

// uniformDocs returns n public "file" documents whose seq runs n..1.
func uniformDocs(n int) []docSpec {
	docs := make([]docSpec, n)
	for i := range docs {
		docs[i] = docSpec{kind: "file", seq: n - i}
	}
	return docs
}

func (f *fixture) service(cfg Config) *Service {
	return New(f.access, f.builder, f.mapper, cfg, nil)
}

// docOrder returns document URIs in internal ID order.
func (f *fixture) docOrder(t testing.TB) []string {
	t.Helper()
	h, err := f.manager.Acquire(context.Background(), 0)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer f.manager.Release(h)

	dr, err := h.Reader().DocIDReaderAll()
	if err != nil {
		t.Fatalf("doc id reader: %v", err)
	}
	defer dr.Close()
	var out []string
	for {
		id, err := dr.Next()
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if id == nil {
			return out
		}
		ext, err := h.Reader().ExternalID(id)
		if err != nil {
			t.Fatalf("external id: %v", err)
		}
		out = append(out, ext)
	}
}

// countingAccess decorates an IndexAccess with call counters and fault
// injection.
type countingAccess struct {
	inner *vxbleve.Manager

	mu         sync.Mutex
	acquires   int
	releases   int
	staleness  []time.Duration
	acquireErr error
	releaseErr error
	fault      *readerFault
}

func (c *countingAccess) Acquire(ctx context.Context, maxStaleness time.Duration) (db.Handle, error) {
	c.mu.Lock()
	c.staleness = append(c.staleness, maxStaleness)
	acquireErr, fault := c.acquireErr, c.fault
	c.mu.Unlock()

	if acquireErr != nil {
		return nil, acquireErr
	}
	h, err := c.inner.Acquire(ctx, maxStaleness)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.acquires++
	c.mu.Unlock()
	if fault != nil {
		return &faultyHandle{Handle: h, reader: &faultyReader{IndexReader: h.Reader(), fault: fault}}, nil
	}
	return h, nil
}

func (c *countingAccess) Release(h db.Handle) error {
	if fh, ok := h.(*faultyHandle); ok {
		h = fh.Handle
	}
	if err := c.inner.Release(h); err != nil {
		return err
	}
	c.mu.Lock()
	c.releases++
	releaseErr := c.releaseErr
	c.mu.Unlock()
	return releaseErr
}

func (c *countingAccess) balanced() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acquires == c.releases
}

func (c *countingAccess) counts() (int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.acquires, c.releases
}

// readerFault controls faultyReader. Document fails once docCalls exceeds
// failDocAfter (when non-negative).
type readerFault struct {
	failDocAfter int
	docErr       error

	docCalls       int
	traversalCalls int
}

type faultyHandle struct {
	db.Handle
	reader index.IndexReader
}

func (h *faultyHandle) Reader() index.IndexReader { return h.reader }

type faultyReader struct {
	index.IndexReader
	fault *readerFault
}

func (r *faultyReader) Document(id string) (index.Document, error) {
	r.fault.docCalls++
	if r.fault.failDocAfter >= 0 && r.fault.docCalls > r.fault.failDocAfter {
		return nil, r.fault.docErr
	}
	return r.IndexReader.Document(id)
}

func (r *faultyReader) FieldDict(field string) (index.FieldDict, error) {
	r.fault.traversalCalls++
	return r.IndexReader.FieldDict(field)
}

func (r *faultyReader) DocIDReaderAll() (index.DocIDReader, error) {
	r.fault.traversalCalls++
	return r.IndexReader.DocIDReaderAll()
}

var errDiskRead = errors.New("disk read failed")

func mustRequest(t testing.TB, q query.Expr, s sorting.Sorting, cursor, limit int) request.Request {
	t.Helper()
	req, err := request.New(q, s, cursor, limit, selector.All())
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	return req
}

func sortBy(t testing.TB, fields ...sorting.Field) sorting.Sorting {
	t.Helper()
	s, err := sorting.New(fields...)
	if err != nil {
		t.Fatalf("sorting: %v", err)
	}
	return s
}

func field(t testing.TB, name string, d sorting.Direction) sorting.Field {
	t.Helper()
	f, err := sorting.NewField(name, d)
	if err != nil {
		t.Fatalf("field: %v", err)
	}
	return f
}

func uris(items []result.PropertySet) []string {
	out := make([]string, len(items))
	for i := range items {
		out[i] = items[i].URI()
	}
	return out
}

// collectAll runs IterateMatching and returns the emitted URIs.
func collectAll(t testing.TB, s *Service, token string, req request.Request) ([]string, error) {
	t.Helper()
	var out []string
	err := s.IterateMatching(context.Background(), token, req, func(ps result.PropertySet) (bool, error) {
		out = append(out, ps.URI())
		return true, nil
	})
	return out, err
}

package search

import (
	"context"
	"path/filepath"
	"sort"
	"testing"

	"github.com/blevesearch/bleve/v2"
	bquery "github.com/blevesearch/bleve/v2/search/query"

	vxbleve "github.com/vortikal/vxsearch/internal/db/bleve"
	"github.com/vortikal/vxsearch/internal/domain"
	"github.com/vortikal/vxsearch/internal/domain/schema"
)

// mockResolver implements the consumer interface for tests.
type mockResolver struct {
	resolveFn func(ctx context.Context, token string) (domain.Principal, error)
}

func (m *mockResolver) Resolve(ctx context.Context, token string) (domain.Principal, error) {
	if m.resolveFn != nil {
		return m.resolveFn(ctx, token)
	}
	return domain.Anonymous(), nil
}

func testSchema(t *testing.T) schema.Schema {
	t.Helper()
	s, err := schema.FromMap(map[string]string{
		"title":     "text",
		"kind":      "string",
		"size":      "number",
		"published": "boolean",
		"tags":      "string",
	})
	if err != nil {
		t.Fatalf("schema: %v", err)
	}
	return s
}

var testDocs = map[string]map[string]interface{}{
	"/docs/a.txt": {
		"uri": "/docs/a.txt", "title": "Quarterly report", "kind": "file",
		"size": 10.0, "published": true, "tags": []string{"finance", "q1"},
		"acl_read": []string{domain.PseudoAll},
	},
	"/docs/b.txt": {
		"uri": "/docs/b.txt", "title": "Meeting notes", "kind": "file",
		"size": 20.0, "published": false, "tags": []string{"internal"},
		"acl_read": []string{domain.UserIdentity("alice")},
	},
	"/docs": {
		"uri": "/docs", "title": "Documents", "kind": "folder",
		"size": 0.0, "published": true,
		"acl_read": []string{domain.GroupIdentity("staff"), domain.PseudoAuthenticated},
	},
}

func newTestIndex(t *testing.T) bleve.Index {
	t.Helper()
	idx, err := vxbleve.Open(filepath.Join(t.TempDir(), "idx"), testSchema(t))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })

	b := idx.NewBatch()
	for id, doc := range testDocs {
		if err := b.Index(id, doc); err != nil {
			t.Fatalf("batch index: %v", err)
		}
	}
	if err := idx.Batch(b); err != nil {
		t.Fatalf("batch: %v", err)
	}
	return idx
}

// matchIDs runs q and returns the sorted matching document IDs.
func matchIDs(t *testing.T, idx bleve.Index, q bquery.Query) []string {
	t.Helper()
	req := bleve.NewSearchRequestOptions(q, 100, 0, false)
	res, err := idx.Search(req)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	ids := make([]string, 0, len(res.Hits))
	for _, h := range res.Hits {
		ids = append(ids, h.ID)
	}
	sort.Strings(ids)
	return ids
}

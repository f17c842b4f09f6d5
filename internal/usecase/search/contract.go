package search

import (
	"context"
	"time"

	bsearch "github.com/blevesearch/bleve/v2/search"
	bquery "github.com/blevesearch/bleve/v2/search/query"
	index "github.com/blevesearch/bleve_index_api"

	"github.com/vortikal/vxsearch/internal/db"
	"github.com/vortikal/vxsearch/internal/domain/search/query"
	"github.com/vortikal/vxsearch/internal/domain/search/request"
	"github.com/vortikal/vxsearch/internal/domain/search/result"
	"github.com/vortikal/vxsearch/internal/domain/search/selector"
	"github.com/vortikal/vxsearch/internal/domain/search/sorting"
)

// IndexAccess leases searcher handles over the index.
type IndexAccess interface {
	Acquire(ctx context.Context, maxStaleness time.Duration) (db.Handle, error)
	Release(h db.Handle) error
}

// QueryBuilder compiles abstract requests into native index structures.
type QueryBuilder interface {
	Compile(q query.Expr) (bquery.Query, error)
	// BuildAuthFilter returns nil when the caller may read everything.
	BuildAuthFilter(ctx context.Context, token string, req request.Request) (bquery.Query, error)
	// BuildIterationFilter returns nil when no document is filtered out.
	BuildIterationFilter(ctx context.Context, token string, req request.Request) (bquery.Query, error)
	// BuildSort returns nil for relevance order.
	BuildSort(s sorting.Sorting) (bsearch.SortOrder, error)
	// BuildIterationSort returns the single ascending field iteration walks,
	// or nil for document order. Other sorts fail with ErrUnsupportedSort.
	BuildIterationSort(s sorting.Sorting) (*bsearch.SortField, error)
}

// DocumentMapper turns stored documents into property sets.
type DocumentMapper interface {
	FieldSelector(sel selector.Select) db.FieldSelector
	ToPropertySet(doc index.Document, fs db.FieldSelector) result.PropertySet
}

// MatchFunc receives each matching document during iteration. Returning
// false stops the iteration; a non-nil error aborts it and is returned to
// the caller as is.
type MatchFunc func(ps result.PropertySet) (bool, error)

package request

import (
	"fmt"
	"math"

	"github.com/vortikal/vxsearch/internal/domain/search/query"
	"github.com/vortikal/vxsearch/internal/domain/search/selector"
	"github.com/vortikal/vxsearch/internal/domain/search/sorting"
)

// Request is a validated search request.
type Request struct {
	query   query.Expr
	sorting sorting.Sorting
	cursor  int
	limit   int
	sel     selector.Select
}

// New validates search parameters. A nil query matches every document.
func New(
	q query.Expr,
	s sorting.Sorting,
	cursor, limit int,
	sel selector.Select,
) (Request, error) {
	if cursor < 0 {
		return Request{}, fmt.Errorf("cursor must be >= 0, got %d", cursor)
	}
	if limit < 0 {
		return Request{}, fmt.Errorf("limit must be >= 0, got %d", limit)
	}
	if q == nil {
		q = query.All()
	}
	return Request{
		query:   q,
		sorting: s,
		cursor:  cursor,
		limit:   limit,
		sel:     sel,
	}, nil
}

// Query returns the abstract query tree.
func (r *Request) Query() query.Expr { return r.query }

// Sorting returns the requested sort keys (empty for relevance order).
func (r *Request) Sorting() sorting.Sorting { return r.sorting }

// Cursor returns the number of leading hits to skip.
func (r *Request) Cursor() int { return r.cursor }

// Limit returns the maximum number of results.
func (r *Request) Limit() int { return r.limit }

// Select returns the properties to materialize.
func (r *Request) Select() selector.Select { return r.sel }

// End returns cursor+limit, the exclusive end of the requested window,
// saturating at math.MaxInt.
func (r *Request) End() int {
	if r.cursor > math.MaxInt-r.limit {
		return math.MaxInt
	}
	return r.cursor + r.limit
}

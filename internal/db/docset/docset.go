// Package docset holds sets of internal document IDs used to filter index
// iteration.
package docset

import (
	"context"
	"encoding/binary"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"
	index "github.com/blevesearch/bleve_index_api"

	"github.com/vortikal/vxsearch/internal/db"
)

// Set is a membership set of internal document IDs. Scorch IDs are 8-byte
// big-endian integers and land in a compressed bitmap; anything else falls
// back to a hash set.
type Set struct {
	bits  *roaring64.Bitmap
	other map[string]struct{}
}

// New returns an empty set.
func New() *Set {
	return &Set{bits: roaring64.New()}
}

// Add inserts id.
func (s *Set) Add(id index.IndexInternalID) {
	if len(id) == 8 {
		s.bits.Add(binary.BigEndian.Uint64(id))
		return
	}
	if s.other == nil {
		s.other = make(map[string]struct{})
	}
	s.other[string(id)] = struct{}{}
}

// Contains reports whether id is in the set.
func (s *Set) Contains(id index.IndexInternalID) bool {
	if len(id) == 8 {
		return s.bits.Contains(binary.BigEndian.Uint64(id))
	}
	_, ok := s.other[string(id)]
	return ok
}

// Len returns the number of IDs in the set.
func (s *Set) Len() int {
	return int(s.bits.GetCardinality()) + len(s.other)
}

// FromQuery collects every document matching q in the handle's view.
func FromQuery(ctx context.Context, h db.Handle, q query.Query) (*Set, error) {
	reader := h.Reader()
	searcher, err := q.Searcher(ctx, reader, h.Mapping(), search.SearcherOptions{Score: "none"})
	if err != nil {
		return nil, err
	}
	defer searcher.Close()

	sctx := &search.SearchContext{
		DocumentMatchPool: search.NewDocumentMatchPool(searcher.DocumentMatchPoolSize(), 0),
		IndexReader:       reader,
	}

	set := New()
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dm, err := searcher.Next(sctx)
		if err != nil {
			return nil, err
		}
		if dm == nil {
			return set, nil
		}
		set.Add(dm.IndexInternalID)
		sctx.DocumentMatchPool.Put(dm)
	}
}

package db

import (
	"context"
	"time"

	index "github.com/blevesearch/bleve_index_api"
	"github.com/blevesearch/bleve/v2/mapping"
)

// Handle is a leased, read-only view of the index. It is valid until it is
// handed back to the IndexAccess that issued it.
type Handle interface {
	Reader() index.IndexReader
	Mapping() mapping.IndexMapping
	// RefreshedAt is when the underlying view was opened.
	RefreshedAt() time.Time
}

// IndexAccess hands out searcher handles and takes them back.
//
// maxStaleness bounds how old a dirty view may be: zero demands a view that
// reflects every write made before the call.
type IndexAccess interface {
	Acquire(ctx context.Context, maxStaleness time.Duration) (Handle, error)
	Release(h Handle) error
}

// FieldSelector restricts which stored fields are decoded from a document.
// A nil selector accepts every field.
type FieldSelector map[string]struct{}

// NewFieldSelector builds a selector accepting names.
func NewFieldSelector(names ...string) FieldSelector {
	fs := make(FieldSelector, len(names))
	for _, n := range names {
		fs[n] = struct{}{}
	}
	return fs
}

// Accept reports whether the named field should be decoded.
func (fs FieldSelector) Accept(name string) bool {
	if fs == nil {
		return true
	}
	_, ok := fs[name]
	return ok
}

package batch

import "github.com/blevesearch/bleve/v2"

// IndexUpdater applies a batch of index mutations.
type IndexUpdater interface {
	Update(fn func(b *bleve.Batch) error) error
}

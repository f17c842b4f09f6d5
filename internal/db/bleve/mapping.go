package bleve

import (
	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/index/scorch"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/vortikal/vxsearch/internal/db"
	"github.com/vortikal/vxsearch/internal/domain/schema"
)

// NewMapping derives the index mapping for a schema. Only schema properties
// are indexed; keyword properties keep their value as a single term.
func NewMapping(s schema.Schema) mapping.IndexMapping {
	im := bleve.NewIndexMapping()

	doc := bleve.NewDocumentStaticMapping()
	for _, p := range s.Properties() {
		var fm *mapping.FieldMapping
		switch p.Type() {
		case schema.Text:
			fm = bleve.NewTextFieldMapping()
			fm.Analyzer = standard.Name
		case schema.Number:
			fm = bleve.NewNumericFieldMapping()
		case schema.Boolean:
			fm = bleve.NewBooleanFieldMapping()
		default:
			fm = bleve.NewKeywordFieldMapping()
		}
		fm.Store = p.Stored()
		fm.IncludeInAll = false
		fm.DocValues = true
		doc.AddFieldMappingsAt(p.Name(), fm)
	}

	im.DefaultMapping = doc
	im.DefaultAnalyzer = standard.Name
	return im
}

// Open opens the index at path, creating it with the schema mapping when it
// does not exist yet.
func Open(path string, s schema.Schema) (bleve.Index, error) {
	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		idx, err = bleve.NewUsing(path, NewMapping(s), scorch.Name, scorch.Name, nil)
	}
	if err != nil {
		return nil, &db.Error{Op: db.OpOpen, Err: err}
	}
	return idx, nil
}

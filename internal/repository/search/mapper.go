package search

import (
	index "github.com/blevesearch/bleve_index_api"

	"github.com/vortikal/vxsearch/internal/db"
	"github.com/vortikal/vxsearch/internal/domain/schema"
	"github.com/vortikal/vxsearch/internal/domain/search/result"
	"github.com/vortikal/vxsearch/internal/domain/search/selector"
)

// Mapper implements usecase/search.DocumentMapper.
type Mapper struct {
	schema schema.Schema
}

// NewMapper creates a document mapper for the schema.
func NewMapper(s schema.Schema) *Mapper {
	return &Mapper{schema: s}
}

// FieldSelector limits decoding to the selected properties. Selecting
// everything returns nil.
func (m *Mapper) FieldSelector(sel selector.Select) db.FieldSelector {
	if sel.IsAll() {
		return nil
	}
	return db.NewFieldSelector(sel.Names()...)
}

// ToPropertySet decodes the stored fields of doc that fs accepts. Fields
// outside the schema are skipped; repeated fields become []interface{}.
func (m *Mapper) ToPropertySet(doc index.Document, fs db.FieldSelector) result.PropertySet {
	props := make(map[string]interface{})
	doc.VisitFields(func(f index.Field) {
		name := f.Name()
		if !fs.Accept(name) {
			return
		}
		p, ok := m.schema.Lookup(name)
		if !ok || !p.Stored() {
			return
		}
		v, ok := decode(p, f)
		if !ok {
			return
		}
		switch cur := props[name].(type) {
		case nil:
			props[name] = v
		case []interface{}:
			props[name] = append(cur, v)
		default:
			props[name] = []interface{}{cur, v}
		}
	})
	return result.NewPropertySet(doc.ID(), props)
}

func decode(p schema.Property, f index.Field) (interface{}, bool) {
	switch p.Type() {
	case schema.Number:
		nf, ok := f.(index.NumericField)
		if !ok {
			return nil, false
		}
		n, err := nf.Number()
		return n, err == nil
	case schema.Boolean:
		bf, ok := f.(index.BooleanField)
		if !ok {
			return nil, false
		}
		b, err := bf.Boolean()
		return b, err == nil
	default:
		tf, ok := f.(index.TextField)
		if !ok {
			return nil, false
		}
		return tf.Text(), true
	}
}

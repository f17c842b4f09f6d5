// Package search compiles abstract queries into bleve queries and decodes
// stored documents into property sets.
package search

import (
	"context"
	"fmt"

	"github.com/blevesearch/bleve/v2"
	bsearch "github.com/blevesearch/bleve/v2/search"
	bquery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/vortikal/vxsearch/internal/domain"
	"github.com/vortikal/vxsearch/internal/domain/schema"
	"github.com/vortikal/vxsearch/internal/domain/search/query"
	"github.com/vortikal/vxsearch/internal/domain/search/request"
	"github.com/vortikal/vxsearch/internal/domain/search/sorting"
)

// resolver is the consumer interface for token resolution (ISP).
type resolver interface {
	Resolve(ctx context.Context, token string) (domain.Principal, error)
}

// Builder implements usecase/search.QueryBuilder over a fixed schema.
type Builder struct {
	schema   schema.Schema
	resolver resolver
}

// NewBuilder creates a query builder.
func NewBuilder(s schema.Schema, r resolver) *Builder {
	return &Builder{schema: s, resolver: r}
}

// Compile translates an abstract query into a bleve query.
func (b *Builder) Compile(q query.Expr) (bquery.Query, error) {
	if q == nil {
		return bleve.NewMatchAllQuery(), nil
	}
	return b.compile(q)
}

// BuildAuthFilter returns the read-permission filter for the caller, or nil
// when the caller is unrestricted.
func (b *Builder) BuildAuthFilter(ctx context.Context, token string, _ request.Request) (bquery.Query, error) {
	p, err := b.resolver.Resolve(ctx, token)
	if err != nil {
		return nil, err
	}
	if p.Root {
		return nil, nil
	}

	ids := p.Identities()
	terms := make([]bquery.Query, 0, len(ids))
	for _, id := range ids {
		tq := bleve.NewTermQuery(id)
		tq.SetField(schema.ACLRead)
		terms = append(terms, tq)
	}
	return bleve.NewDisjunctionQuery(terms...), nil
}

// BuildIterationFilter combines the request query with the auth filter.
// A nil result means every document is allowed.
func (b *Builder) BuildIterationFilter(ctx context.Context, token string, req request.Request) (bquery.Query, error) {
	auth, err := b.BuildAuthFilter(ctx, token, req)
	if err != nil {
		return nil, err
	}

	var parts []bquery.Query
	if !query.IsAll(req.Query()) {
		q, err := b.Compile(req.Query())
		if err != nil {
			return nil, err
		}
		parts = append(parts, q)
	}
	if auth != nil {
		parts = append(parts, auth)
	}

	switch len(parts) {
	case 0:
		return nil, nil
	case 1:
		return parts[0], nil
	default:
		return bleve.NewConjunctionQuery(parts...), nil
	}
}

// BuildSort translates a sorting into a bleve sort order. An empty sorting
// yields nil, meaning relevance order.
func (b *Builder) BuildSort(s sorting.Sorting) (bsearch.SortOrder, error) {
	if s.IsEmpty() {
		return nil, nil
	}
	order := make(bsearch.SortOrder, 0, s.Len()+1)
	for _, f := range s.Fields() {
		p, ok := b.schema.Lookup(f.Property())
		if !ok {
			return nil, domain.InvalidQuery("unknown sort property %q", f.Property())
		}
		sf := &bsearch.SortField{
			Field:   p.Name(),
			Desc:    f.Descending(),
			Type:    bsearch.SortFieldAsString,
			Mode:    bsearch.SortFieldDefault,
			Missing: bsearch.SortFieldMissingLast,
		}
		if p.Type() == schema.Number {
			sf.Type = bsearch.SortFieldAsNumber
		}
		order = append(order, sf)
	}
	// Ties fall back to internal document order.
	order = append(order, &bsearch.SortDocID{})
	return order, nil
}

// BuildIterationSort resolves the sort field for match iteration. Iteration
// walks the field's terms, so only one ascending key over a single-term
// property is accepted.
func (b *Builder) BuildIterationSort(s sorting.Sorting) (*bsearch.SortField, error) {
	if s.IsEmpty() {
		return nil, nil
	}
	if s.Len() > 1 {
		return nil, domain.UnsupportedSort("iteration supports a single sort field")
	}
	f := s.Fields()[0]
	if f.Descending() {
		return nil, domain.UnsupportedSort("iteration supports ascending order only")
	}
	p, ok := b.schema.Lookup(f.Property())
	if !ok {
		return nil, domain.InvalidQuery("unknown sort property %q", f.Property())
	}
	if p.Type() == schema.Text {
		return nil, domain.UnsupportedSort(fmt.Sprintf("text property %q cannot order iteration", p.Name()))
	}
	order, err := b.BuildSort(s)
	if err != nil {
		return nil, err
	}
	return order[0].(*bsearch.SortField), nil
}

func (b *Builder) compile(e query.Expr) (bquery.Query, error) {
	switch e := e.(type) {
	case query.AllExpr:
		return bleve.NewMatchAllQuery(), nil
	case query.AndExpr:
		if len(e.Exprs) == 0 {
			return bleve.NewMatchAllQuery(), nil
		}
		qs, err := b.compileAll(e.Exprs)
		if err != nil {
			return nil, err
		}
		return bleve.NewConjunctionQuery(qs...), nil
	case query.OrExpr:
		if len(e.Exprs) == 0 {
			return bleve.NewMatchNoneQuery(), nil
		}
		qs, err := b.compileAll(e.Exprs)
		if err != nil {
			return nil, err
		}
		return bleve.NewDisjunctionQuery(qs...), nil
	case query.NotExpr:
		inner, err := b.Compile(e.Inner)
		if err != nil {
			return nil, err
		}
		bq := bleve.NewBooleanQuery()
		bq.AddMust(bleve.NewMatchAllQuery())
		bq.AddMustNot(inner)
		return bq, nil
	case query.EqExpr:
		return b.compileEq(e)
	case query.RangeExpr:
		return b.compileRange(e)
	case query.PrefixExpr:
		p, err := b.property(e.Property)
		if err != nil {
			return nil, err
		}
		if p.Type() != schema.String && p.Type() != schema.Text {
			return nil, domain.InvalidQuery("prefix on %s property %q", p.Type(), p.Name())
		}
		pq := bleve.NewPrefixQuery(e.Prefix)
		pq.SetField(p.Name())
		return pq, nil
	case query.MatchExpr:
		p, err := b.property(e.Property)
		if err != nil {
			return nil, err
		}
		switch p.Type() {
		case schema.Text:
			mq := bleve.NewMatchQuery(e.Text)
			mq.SetField(p.Name())
			return mq, nil
		case schema.String:
			tq := bleve.NewTermQuery(e.Text)
			tq.SetField(p.Name())
			return tq, nil
		}
		return nil, domain.InvalidQuery("match on %s property %q", p.Type(), p.Name())
	}
	return nil, domain.InvalidQuery("unsupported query node %T", e)
}

func (b *Builder) compileAll(exprs []query.Expr) ([]bquery.Query, error) {
	out := make([]bquery.Query, 0, len(exprs))
	for _, sub := range exprs {
		q, err := b.Compile(sub)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

func (b *Builder) compileEq(e query.EqExpr) (bquery.Query, error) {
	p, err := b.property(e.Property)
	if err != nil {
		return nil, err
	}
	switch p.Type() {
	case schema.String:
		s, ok := e.Value.(string)
		if !ok {
			return nil, mismatch(p, e.Value)
		}
		tq := bleve.NewTermQuery(s)
		tq.SetField(p.Name())
		return tq, nil
	case schema.Text:
		s, ok := e.Value.(string)
		if !ok {
			return nil, mismatch(p, e.Value)
		}
		pq := bleve.NewMatchPhraseQuery(s)
		pq.SetField(p.Name())
		return pq, nil
	case schema.Number:
		f, ok := toFloat(e.Value)
		if !ok {
			return nil, mismatch(p, e.Value)
		}
		incl := true
		nq := bleve.NewNumericRangeInclusiveQuery(&f, &f, &incl, &incl)
		nq.SetField(p.Name())
		return nq, nil
	case schema.Boolean:
		v, ok := e.Value.(bool)
		if !ok {
			return nil, mismatch(p, e.Value)
		}
		bq := bleve.NewBoolFieldQuery(v)
		bq.SetField(p.Name())
		return bq, nil
	}
	return nil, domain.InvalidQuery("unsupported property type %s", p.Type())
}

func (b *Builder) compileRange(e query.RangeExpr) (bquery.Query, error) {
	p, err := b.property(e.Property)
	if err != nil {
		return nil, err
	}
	if e.Min == nil && e.Max == nil {
		return nil, domain.InvalidQuery("range on %q has no bounds", p.Name())
	}
	minIncl, maxIncl := e.MinInclusive, e.MaxInclusive

	switch p.Type() {
	case schema.Number:
		var lo, hi *float64
		if e.Min != nil {
			f, ok := toFloat(e.Min)
			if !ok {
				return nil, mismatch(p, e.Min)
			}
			lo = &f
		}
		if e.Max != nil {
			f, ok := toFloat(e.Max)
			if !ok {
				return nil, mismatch(p, e.Max)
			}
			hi = &f
		}
		nq := bleve.NewNumericRangeInclusiveQuery(lo, hi, &minIncl, &maxIncl)
		nq.SetField(p.Name())
		return nq, nil
	case schema.String:
		var lo, hi string
		if e.Min != nil {
			s, ok := e.Min.(string)
			if !ok {
				return nil, mismatch(p, e.Min)
			}
			lo = s
		}
		if e.Max != nil {
			s, ok := e.Max.(string)
			if !ok {
				return nil, mismatch(p, e.Max)
			}
			hi = s
		}
		tq := bleve.NewTermRangeInclusiveQuery(lo, hi, &minIncl, &maxIncl)
		tq.SetField(p.Name())
		return tq, nil
	}
	return nil, domain.InvalidQuery("range on %s property %q", p.Type(), p.Name())
}

func (b *Builder) property(name string) (schema.Property, error) {
	p, ok := b.schema.Lookup(name)
	if !ok {
		return schema.Property{}, domain.InvalidQuery("unknown property %q", name)
	}
	if name == schema.ACLRead {
		return schema.Property{}, domain.InvalidQuery("property %q is not queryable", name)
	}
	return p, nil
}

func mismatch(p schema.Property, v interface{}) error {
	return domain.InvalidQuery("value %v (%T) does not fit %s property %q", v, v, p.Type(), p.Name())
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}


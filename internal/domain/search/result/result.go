package result

import "sort"

// PropertySet is the materialized, queryable form of one indexed document.
type PropertySet struct {
	uri   string
	props map[string]interface{}
}

// NewPropertySet creates a property set. props is owned by the set afterwards.
func NewPropertySet(uri string, props map[string]interface{}) PropertySet {
	if props == nil {
		props = map[string]interface{}{}
	}
	return PropertySet{uri: uri, props: props}
}

// URI returns the resource URI (the index document ID).
func (p *PropertySet) URI() string { return p.uri }

// Get returns a property value. Multi-valued properties are []interface{}.
func (p *PropertySet) Get(name string) (interface{}, bool) {
	v, ok := p.props[name]
	return v, ok
}

// String returns a property as a string when it holds one.
func (p *PropertySet) String(name string) (string, bool) {
	s, ok := p.props[name].(string)
	return s, ok
}

// Number returns a numeric property.
func (p *PropertySet) Number(name string) (float64, bool) {
	f, ok := p.props[name].(float64)
	return f, ok
}

// Names returns the property names in sorted order.
func (p *PropertySet) Names() []string {
	out := make([]string, 0, len(p.props))
	for n := range p.props {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of properties.
func (p *PropertySet) Len() int { return len(p.props) }

// Properties returns a copy of the property map.
func (p *PropertySet) Properties() map[string]interface{} {
	out := make(map[string]interface{}, len(p.props))
	for k, v := range p.props {
		out[k] = v
	}
	return out
}

// Page is one window of a ranked result list.
type Page struct {
	items []PropertySet
	total int
}

// NewPage creates a result page. total is the true match count and must be
// at least len(items).
func NewPage(items []PropertySet, total int) Page {
	if total < len(items) {
		total = len(items)
	}
	return Page{items: items, total: total}
}

// Items returns the materialized results in rank order.
func (p *Page) Items() []PropertySet { return p.items }

// Total returns the number of matching documents, which may exceed Len.
func (p *Page) Total() int { return p.total }

// Len returns the number of materialized results.
func (p *Page) Len() int { return len(p.items) }

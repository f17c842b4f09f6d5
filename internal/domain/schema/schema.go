// Package schema describes the indexed properties of repository resources.
package schema

import (
	"fmt"
	"sort"
)

// Type is the indexing type of a property.
type Type string

// Property type constants.
const (
	// String is an exact-match keyword property.
	String Type = "string"
	// Text is an analyzed full-text property.
	Text    Type = "text"
	Number  Type = "number"
	Boolean Type = "boolean"
)

// System properties present on every indexed resource.
const (
	URI     = "uri"
	ACLRead = "acl_read"
)

// IsValid reports whether t is a known type.
func (t Type) IsValid() bool {
	switch t {
	case String, Text, Number, Boolean:
		return true
	}
	return false
}

// Property is an immutable value object describing an indexed property.
type Property struct {
	name     string
	propType Type
}

// NewProperty validates and creates a Property.
func NewProperty(name string, t Type) (Property, error) {
	if name == "" {
		return Property{}, fmt.Errorf("property name is required")
	}
	if len(name) > 64 {
		return Property{}, fmt.Errorf("property name %q too long (max 64)", name)
	}
	if name == URI || name == ACLRead {
		return Property{}, fmt.Errorf("property name %q is reserved", name)
	}
	if !t.IsValid() {
		return Property{}, fmt.Errorf("invalid property type %q for %q", t, name)
	}
	return Property{name: name, propType: t}, nil
}

// Name returns the property name.
func (p Property) Name() string { return p.name }

// Type returns the property's indexing type.
func (p Property) Type() Type { return p.propType }

// Stored reports whether the property value is kept for materialization.
func (p Property) Stored() bool { return p.name != ACLRead }

// Schema is the set of indexed properties, including the system ones.
type Schema struct {
	props map[string]Property
}

// New builds a schema from user properties. URI and ACLRead are added
// automatically.
func New(props ...Property) (Schema, error) {
	m := make(map[string]Property, len(props)+2)
	m[URI] = Property{name: URI, propType: String}
	m[ACLRead] = Property{name: ACLRead, propType: String}
	for _, p := range props {
		if p.name == "" {
			return Schema{}, fmt.Errorf("property name is required")
		}
		if _, dup := m[p.name]; dup {
			return Schema{}, fmt.Errorf("duplicate property %q", p.name)
		}
		m[p.name] = p
	}
	return Schema{props: m}, nil
}

// FromMap builds a schema from a name -> type map, as loaded from config.
func FromMap(types map[string]string) (Schema, error) {
	names := make([]string, 0, len(types))
	for n := range types {
		names = append(names, n)
	}
	sort.Strings(names)

	props := make([]Property, 0, len(names))
	for _, n := range names {
		p, err := NewProperty(n, Type(types[n]))
		if err != nil {
			return Schema{}, err
		}
		props = append(props, p)
	}
	return New(props...)
}

// Lookup returns the property definition for name.
func (s Schema) Lookup(name string) (Property, bool) {
	p, ok := s.props[name]
	return p, ok
}

// Properties returns every property sorted by name.
func (s Schema) Properties() []Property {
	out := make([]Property, 0, len(s.props))
	for _, p := range s.props {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

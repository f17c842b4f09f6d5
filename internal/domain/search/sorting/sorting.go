package sorting

import "fmt"

// Direction is a sort direction.
type Direction string

const (
	// Asc sorts ascending.
	Asc Direction = "asc"
	// Desc sorts descending.
	Desc Direction = "desc"
)

// IsValid reports whether d is a known direction.
func (d Direction) IsValid() bool {
	return d == Asc || d == Desc
}

// Field is a single sort key.
type Field struct {
	property  string
	direction Direction
}

// NewField creates a sort key. An empty direction means ascending.
func NewField(property string, d Direction) (Field, error) {
	if property == "" {
		return Field{}, fmt.Errorf("sort property is required")
	}
	if d == "" {
		d = Asc
	}
	if !d.IsValid() {
		return Field{}, fmt.Errorf("invalid sort direction %q", d)
	}
	return Field{property: property, direction: d}, nil
}

// Property returns the sorted property name.
func (f Field) Property() string { return f.property }

// Direction returns the sort direction.
func (f Field) Direction() Direction { return f.direction }

// Descending reports whether the key sorts descending.
func (f Field) Descending() bool { return f.direction == Desc }

// Sorting is an ordered list of sort keys. The zero value means relevance order.
type Sorting struct {
	fields []Field
}

// New validates and creates a Sorting. Duplicate properties are rejected.
func New(fields ...Field) (Sorting, error) {
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if f.property == "" {
			return Sorting{}, fmt.Errorf("sort property is required")
		}
		if _, dup := seen[f.property]; dup {
			return Sorting{}, fmt.Errorf("duplicate sort property %q", f.property)
		}
		seen[f.property] = struct{}{}
	}
	return Sorting{fields: append([]Field(nil), fields...)}, nil
}

// MustNew is New for statically known sort keys. It panics on invalid input.
func MustNew(fields ...Field) Sorting {
	s, err := New(fields...)
	if err != nil {
		panic(err)
	}
	return s
}

// By is shorthand for a single-key sorting.
func By(property string, d Direction) (Sorting, error) {
	f, err := NewField(property, d)
	if err != nil {
		return Sorting{}, err
	}
	return New(f)
}

// Fields returns the sort keys in priority order.
func (s Sorting) Fields() []Field { return s.fields }

// IsEmpty reports whether no sort keys are set.
func (s Sorting) IsEmpty() bool { return len(s.fields) == 0 }

// Len returns the number of sort keys.
func (s Sorting) Len() int { return len(s.fields) }

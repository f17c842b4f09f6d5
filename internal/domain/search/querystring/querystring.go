// Package querystring parses search requests from URL query parameters.
package querystring

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/vortikal/vxsearch/internal/domain/schema"
	"github.com/vortikal/vxsearch/internal/domain/search/query"
	"github.com/vortikal/vxsearch/internal/domain/search/request"
	"github.com/vortikal/vxsearch/internal/domain/search/selector"
	"github.com/vortikal/vxsearch/internal/domain/search/sorting"
)

// Limits bounds the limit parameter.
type Limits struct {
	Default int
	Max     int
}

// comparison operators, longest first so ">=" wins over ">".
var comparisons = []string{">=", "<=", ">", "<", "~", ":"}

// ParseRequest builds a request from URL parameters:
//
//	q=<cond>      repeated, ANDed; cond is [-]name(:|~|>|>=|<|<=)value,
//	              a ":" value ending in "*" is a prefix match
//	sort=name[:asc|:desc],...
//	cursor=N  limit=N  fields=a,b
func ParseRequest(v url.Values, sch schema.Schema, limits Limits) (request.Request, error) {
	var conds []query.Expr
	for _, raw := range v["q"] {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		e, err := ParseCondition(raw, sch)
		if err != nil {
			return request.Request{}, err
		}
		conds = append(conds, e)
	}
	var q query.Expr
	switch len(conds) {
	case 0:
		q = query.All()
	case 1:
		q = conds[0]
	default:
		q = query.And(conds...)
	}

	s, err := ParseSort(v.Get("sort"))
	if err != nil {
		return request.Request{}, err
	}

	cursor, err := intParam(v, "cursor", 0)
	if err != nil {
		return request.Request{}, err
	}
	limit, err := intParam(v, "limit", limits.Default)
	if err != nil {
		return request.Request{}, err
	}
	if limits.Max > 0 && limit > limits.Max {
		return request.Request{}, fmt.Errorf("limit must be <= %d, got %d", limits.Max, limit)
	}

	sel := selector.All()
	if f := v.Get("fields"); f != "" {
		sel = selector.Of(splitList(f)...)
	}

	return request.New(q, s, cursor, limit, sel)
}

// ParseCondition parses one [-]name(:|~|>|>=|<|<=)value condition. Values
// are converted to the property's schema type where possible.
func ParseCondition(raw string, sch schema.Schema) (query.Expr, error) {
	negate := strings.HasPrefix(raw, "-")
	raw = strings.TrimPrefix(raw, "-")

	idx, op := -1, ""
	for _, c := range comparisons {
		if i := strings.Index(raw, c); i > 0 && (idx < 0 || i < idx || (i == idx && len(c) > len(op))) {
			idx, op = i, c
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("condition %q: expected name:value", raw)
	}
	name, value := raw[:idx], raw[idx+len(op):]
	if value == "" {
		return nil, fmt.Errorf("condition %q: empty value", raw)
	}

	var e query.Expr
	switch op {
	case ":":
		if strings.HasSuffix(value, "*") && len(value) > 1 {
			e = query.Prefix(name, strings.TrimSuffix(value, "*"))
		} else {
			e = query.Eq(name, typedValue(sch, name, value))
		}
	case "~":
		e = query.Match(name, value)
	case ">":
		e = query.Gt(name, typedValue(sch, name, value))
	case ">=":
		e = query.Gte(name, typedValue(sch, name, value))
	case "<":
		e = query.Lt(name, typedValue(sch, name, value))
	case "<=":
		e = query.Lte(name, typedValue(sch, name, value))
	}
	if negate {
		e = query.Not(e)
	}
	return e, nil
}

// typedValue converts value to the Go type of the named property. Values
// that do not parse are passed through as strings and rejected downstream.
func typedValue(sch schema.Schema, name, value string) interface{} {
	p, ok := sch.Lookup(name)
	if !ok {
		return value
	}
	switch p.Type() {
	case schema.Number:
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	case schema.Boolean:
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return value
}

// ParseSort parses a comma separated name[:asc|:desc] list.
func ParseSort(raw string) (sorting.Sorting, error) {
	if raw == "" {
		return sorting.Sorting{}, nil
	}
	var fields []sorting.Field
	for _, item := range splitList(raw) {
		name, dir, _ := strings.Cut(item, ":")
		f, err := sorting.NewField(name, sorting.Direction(strings.ToLower(dir)))
		if err != nil {
			return sorting.Sorting{}, err
		}
		fields = append(fields, f)
	}
	return sorting.New(fields...)
}

func intParam(v url.Values, name string, def int) (int, error) {
	raw := v.Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", name, raw)
	}
	return n, nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

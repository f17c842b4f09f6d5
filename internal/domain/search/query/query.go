// Package query holds the abstract query tree executed by the search engine.
//
// Trees are immutable once built. The engine never inspects them; the query
// builder compiles them into native index queries.
package query

// Expr is a node of the query tree.
type Expr interface {
	// expr is a marker method restricting Expr to this package's nodes.
	expr()
}

type baseExpr struct{}

func (baseExpr) expr() {}

// AllExpr matches every document.
type AllExpr struct {
	baseExpr
}

// All returns a match-all expression.
func All() Expr { return AllExpr{} }

// AndExpr matches documents matching every child.
type AndExpr struct {
	baseExpr
	Exprs []Expr
}

// And combines expressions with AND logic.
func And(exprs ...Expr) Expr {
	return AndExpr{Exprs: append([]Expr(nil), exprs...)}
}

// OrExpr matches documents matching at least one child.
type OrExpr struct {
	baseExpr
	Exprs []Expr
}

// Or combines expressions with OR logic.
func Or(exprs ...Expr) Expr {
	return OrExpr{Exprs: append([]Expr(nil), exprs...)}
}

// NotExpr matches documents not matching Inner.
type NotExpr struct {
	baseExpr
	Inner Expr
}

// Not negates an expression.
func Not(inner Expr) Expr { return NotExpr{Inner: inner} }

// EqExpr matches documents whose property equals Value.
// Value is a string, a number or a bool.
type EqExpr struct {
	baseExpr
	Property string
	Value    interface{}
}

// Eq creates an equality expression.
func Eq(property string, value interface{}) Expr {
	return EqExpr{Property: property, Value: value}
}

// Ne creates a not-equal expression.
func Ne(property string, value interface{}) Expr {
	return Not(Eq(property, value))
}

// RangeExpr matches documents whose property lies between Min and Max.
// A nil bound is open.
type RangeExpr struct {
	baseExpr
	Property     string
	Min          interface{}
	Max          interface{}
	MinInclusive bool
	MaxInclusive bool
}

// Range creates an inclusive range expression.
func Range(property string, min, max interface{}) Expr {
	return RangeExpr{Property: property, Min: min, Max: max, MinInclusive: true, MaxInclusive: true}
}

// Gt creates a greater-than expression.
func Gt(property string, value interface{}) Expr {
	return RangeExpr{Property: property, Min: value}
}

// Gte creates a greater-than-or-equal expression.
func Gte(property string, value interface{}) Expr {
	return RangeExpr{Property: property, Min: value, MinInclusive: true}
}

// Lt creates a less-than expression.
func Lt(property string, value interface{}) Expr {
	return RangeExpr{Property: property, Max: value}
}

// Lte creates a less-than-or-equal expression.
func Lte(property string, value interface{}) Expr {
	return RangeExpr{Property: property, Max: value, MaxInclusive: true}
}

// PrefixExpr matches keyword properties starting with Prefix.
type PrefixExpr struct {
	baseExpr
	Property string
	Prefix   string
}

// Prefix creates a prefix expression.
func Prefix(property, prefix string) Expr {
	return PrefixExpr{Property: property, Prefix: prefix}
}

// MatchExpr is an analyzed full-text match on a text property.
type MatchExpr struct {
	baseExpr
	Property string
	Text     string
}

// Match creates a full-text match expression.
func Match(property, text string) Expr {
	return MatchExpr{Property: property, Text: text}
}

// IsAll reports whether e matches every document.
func IsAll(e Expr) bool {
	switch e := e.(type) {
	case nil:
		return true
	case AllExpr:
		return true
	case AndExpr:
		for _, c := range e.Exprs {
			if !IsAll(c) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

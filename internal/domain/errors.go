package domain

import (
	"github.com/cockroachdb/errors"
)

// ErrorKind classifies failures surfaced by the search engine.
type ErrorKind int

const (
	// KindQueryExecution covers index I/O failures during acquisition,
	// compilation, execution or materialization.
	KindQueryExecution ErrorKind = iota + 1
	// KindUnsupportedSort signals a sort that iteration cannot honor.
	KindUnsupportedSort
	// KindUnauthorized signals an unknown or rejected auth token.
	KindUnauthorized
	// KindInvalidQuery signals a query referencing unknown properties or
	// comparing a property with a value of the wrong type.
	KindInvalidQuery
)

// String implements fmt.Stringer.
func (k ErrorKind) String() string {
	switch k {
	case KindQueryExecution:
		return "query execution"
	case KindUnsupportedSort:
		return "unsupported sort"
	case KindUnauthorized:
		return "unauthorized"
	case KindInvalidQuery:
		return "invalid query"
	default:
		return "unknown"
	}
}

var (
	// ErrQueryExecution signals an index failure while running a query.
	ErrQueryExecution = errors.New("query execution failed")
	// ErrUnsupportedSort signals a sort specification iteration cannot satisfy.
	ErrUnsupportedSort = errors.New("unsupported sort")
	// ErrUnauthorized signals an unknown auth token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidQuery signals a malformed query tree.
	ErrInvalidQuery = errors.New("invalid query")
)

// ErrInvalidResource signals a resource rejected at indexing time.
var ErrInvalidResource = errors.New("invalid resource")

func (k ErrorKind) sentinel() error {
	switch k {
	case KindQueryExecution:
		return ErrQueryExecution
	case KindUnsupportedSort:
		return ErrUnsupportedSort
	case KindUnauthorized:
		return ErrUnauthorized
	case KindInvalidQuery:
		return ErrInvalidQuery
	default:
		return nil
	}
}

// Error is a classified engine failure. It matches the sentinel of its kind
// with errors.Is and unwraps to the underlying cause.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// QueryExecution wraps an index failure. Errors that are already classified
// are returned unchanged.
func QueryExecution(op string, err error) error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return err
	}
	return &Error{Kind: KindQueryExecution, Op: op, Err: err}
}

// UnsupportedSort builds an unsupported-sort error with the given reason.
func UnsupportedSort(reason string) error {
	return &Error{Kind: KindUnsupportedSort, Err: errors.New(reason)}
}

// Unauthorized builds an unauthorized error for the given cause.
func Unauthorized(err error) error {
	return &Error{Kind: KindUnauthorized, Err: err}
}

// InvalidQuery builds an invalid-query error.
func InvalidQuery(format string, args ...interface{}) error {
	return &Error{Kind: KindInvalidQuery, Err: errors.Newf(format, args...)}
}

// KindOf returns the kind of a classified error, or zero.
func KindOf(err error) ErrorKind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return 0
}

// WithSecondary attaches a secondary failure to primary without changing
// what primary matches. A nil primary yields nil.
func WithSecondary(primary, secondary error) error {
	if primary == nil || secondary == nil {
		return primary
	}
	return errors.WithSecondaryError(primary, secondary)
}

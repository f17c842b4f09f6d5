package db

import "errors"

// Sentinel errors for index and store operations.
var (
	ErrIndexClosed    = errors.New("db: index closed")
	ErrHandleReleased = errors.New("db: handle already released")
	ErrForeignHandle  = errors.New("db: handle not issued by this index")
	ErrTokenNotFound  = errors.New("db: token not found")
)

// Op constants name index and store operations for error context.
const (
	OpOpen        = "OPEN"
	OpReader      = "READER"
	OpReaderClose = "READER.CLOSE"
	OpBatch       = "BATCH"
	OpHGetAll     = "HGETALL"
	OpPing        = "PING"
)

// Error wraps an underlying error with the operation name for diagnostics.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

package model

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures by how far they propagate.
type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"
	KindSession        ErrorKind = "session"
	KindRecord         ErrorKind = "record"
	KindMedia          ErrorKind = "media"
	KindInfrastructure ErrorKind = "infrastructure"
	KindPermission     ErrorKind = "permission"
	KindConflict       ErrorKind = "conflict"
)

// Sentinel errors surfaced to callers of the pipeline operations.
var (
	ErrNoProductsFound  = errors.New("no products found")
	ErrInvalidFormat    = errors.New("invalid import format")
	ErrSessionNotFound  = errors.New("session not found or expired")
	ErrPermissionDenied = errors.New("permission denied")
	ErrConflict         = errors.New("record already exists")
	ErrNotFound         = errors.New("not found")
)

// Error is a classified pipeline error.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a classified error. A nil err yields nil.
func E(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Ef builds a classified error from a format string.
func Ef(kind ErrorKind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first classified error in err's chain.
// Unclassified errors are reported as infrastructure failures.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return KindSession
	case errors.Is(err, ErrPermissionDenied):
		return KindPermission
	case errors.Is(err, ErrNoProductsFound), errors.Is(err, ErrInvalidFormat):
		return KindValidation
	case errors.Is(err, ErrConflict):
		return KindConflict
	}
	return KindInfrastructure
}

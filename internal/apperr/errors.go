package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for callers that need to decide between retrying,
// surfacing a business reason, or paging an operator.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindForbidden
	KindConflict
	KindDeadline
	KindDependency
	KindContention
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindDeadline:
		return "deadline"
	case KindDependency:
		return "dependency"
	case KindContention:
		return "contention"
	default:
		return "internal"
	}
}

// Error carries a Kind and a stable machine-readable code next to the wrapped cause.
type Error struct {
	Kind Kind
	Code string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Code
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a sentinel-friendly error: errors.Is works on the returned value itself.
func New(kind Kind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Err: errors.New(msg)}
}

// Wrap annotates err with kind and code, keeping it reachable for errors.Is.
func Wrap(kind Kind, code string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Code: code, Err: err}
}

func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Code: "VALIDATION", Err: fmt.Errorf("validation: "+format, args...)}
}

// KindOf returns the kind of the outermost classified error in the chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the code of the outermost classified error, or "INTERNAL".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "INTERNAL"
}

// README: Error taxonomy shared by the dispatch modules and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// KindStore is the zero value: anything not classified is an opaque store failure.
	KindStore Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindUnavailable
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindUnavailable:
		return "resource_unavailable"
	case KindTimeout:
		return "timeout"
	default:
		return "store"
	}
}

// Error is a classified sentinel. Compare with errors.Is against the
// package-level values; wrap with fmt.Errorf("%w: ...") to add detail.
type Error struct {
	Kind Kind
	msg  string
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, msg: msg}
}

func (e *Error) Error() string { return e.msg }

var (
	ErrBadRequest         = New(KindValidation, "bad request")
	ErrTripNotFound       = New(KindNotFound, "trip not found")
	ErrDriverNotFound     = New(KindNotFound, "driver not found")
	ErrDriverNotAvailable = New(KindConflict, "driver not available")
	ErrTripNotPending     = New(KindConflict, "trip not pending")
	ErrInvalidTransition  = New(KindConflict, "invalid state transition")
	ErrTripChanged        = New(KindConflict, "trip changed concurrently")
	ErrNoDriversAvailable = New(KindUnavailable, "no drivers available")
	ErrLockTimeout        = New(KindTimeout, "lock wait timeout")
)

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStore
}

func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, fmt.Sprintf(format, args...))
}

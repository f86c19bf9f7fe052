package auth

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error kinds. Every failure returned by Service wraps exactly one of them.
var (
	ErrNotFound              = errors.New("auth: not found")
	ErrAlreadyExists         = errors.New("auth: already exists")
	ErrInvalid               = errors.New("auth: invalid")
	ErrForbidden             = errors.New("auth: forbidden")
	ErrDependencyUnavailable = errors.New("auth: dependency unavailable")
	ErrFatal                 = errors.New("auth: fatal")
	ErrUnauthenticated       = errors.New("auth: unauthenticated")
)

// ErrMalformedToken is returned when a token fails signature verification or cannot be decoded.
var ErrMalformedToken = fmt.Errorf("%w: malformed token", ErrInvalid)

// Error is a domain failure carrying a unique identifier and a message safe to show to clients.
type Error struct {
	ID      string
	Kind    error
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Cause != nil {
		out = append(out, e.Cause)
	}
	return out
}

func newError(kind error, cause error, format string, args ...any) *Error {
	return &Error{
		ID:      uuid.NewString(),
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

func notFoundf(format string, args ...any) error {
	return newError(ErrNotFound, nil, format, args...)
}

func invalidf(format string, args ...any) error {
	return newError(ErrInvalid, nil, format, args...)
}

// AsError returns the domain error carried by err, if any.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf reports which error kind err belongs to, or nil for unclassified failures.
func KindOf(err error) error {
	for _, kind := range []error{ErrNotFound, ErrAlreadyExists, ErrInvalid, ErrForbidden, ErrDependencyUnavailable, ErrFatal, ErrUnauthenticated} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

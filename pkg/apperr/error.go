package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies an error by how the caller is expected to react to it.
type Kind string

const (
	KindAuthentication         Kind = "authentication"
	KindForbidden              Kind = "forbidden"
	KindValidation             Kind = "validation"
	KindNotFound               Kind = "not_found"
	KindServer                 Kind = "server"
	KindNetwork                Kind = "network"
	KindTransitionPrecondition Kind = "transition_precondition"
	KindUnknown                Kind = "unknown"
)

// Error is the normalized error surfaced by every storefront component.
// It carries the {message, status, details} triple returned to callers.
type Error struct {
	// Kind is the taxonomy bucket.
	Kind Kind

	// Status is the HTTP status, or 0 when no response was received.
	Status int

	// Message is a short human readable description.
	Message string

	// Details holds field-level validation messages keyed by field name.
	Details map[string][]string

	// Reasons lists client-side gate failures for TransitionPrecondition errors.
	Reasons []string

	// Op names the operation that failed (e.g. "auth.login").
	Op string

	// Wrapped is the underlying error, if any.
	Wrapped error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if len(e.Reasons) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Reasons, "; "))
	}
	return b.String()
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Wrapped
}

// Is reports whether target is an *Error of the same kind with no status, or
// the same kind and status. This lets callers write errors.Is(err, apperr.ErrAuthentication).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Status == 0 || t.Status == e.Status
}

// Retryable reports whether repeating the same request may succeed.
func (e *Error) Retryable() bool {
	return e.Kind == KindServer || e.Kind == KindNetwork
}

// Fatal reports whether the error ends the authenticated session.
func (e *Error) Fatal() bool {
	return e.Kind == KindAuthentication
}

// WithOp records the failing operation.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// WithDetails attaches field-level messages.
func (e *Error) WithDetails(details map[string][]string) *Error {
	e.Details = details
	return e
}

// Wrap wraps another error.
func (e *Error) Wrap(err error) *Error {
	e.Wrapped = err
	return e
}

// Sentinels for errors.Is comparisons by kind.
var (
	ErrAuthentication         = &Error{Kind: KindAuthentication}
	ErrForbidden              = &Error{Kind: KindForbidden}
	ErrValidation             = &Error{Kind: KindValidation}
	ErrNotFound               = &Error{Kind: KindNotFound}
	ErrServer                 = &Error{Kind: KindServer}
	ErrNetwork                = &Error{Kind: KindNetwork}
	ErrTransitionPrecondition = &Error{Kind: KindTransitionPrecondition}
)

// New creates an Error of the given kind using the registered default message.
func New(kind Kind) *Error {
	return &Error{
		Kind:    kind,
		Message: defaultMessage(kind),
	}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
	}
}

// KindForStatus maps an HTTP status code to a Kind.
func KindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized:
		return KindAuthentication
	case status == http.StatusForbidden:
		return KindForbidden
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity, status == http.StatusConflict:
		return KindValidation
	case status == http.StatusNotFound:
		return KindNotFound
	case status >= 500:
		return KindServer
	default:
		return KindUnknown
	}
}

// FromStatus builds an Error from a backend response. An empty message falls
// back to the kind's registered default.
func FromStatus(status int, message string, details map[string][]string) *Error {
	kind := KindForStatus(status)
	if message == "" {
		message = defaultMessage(kind)
	}
	return &Error{
		Kind:    kind,
		Status:  status,
		Message: message,
		Details: details,
	}
}

// Network wraps a transport failure where no response was received.
func Network(err error) *Error {
	return New(KindNetwork).Wrap(err)
}

// Precondition builds a TransitionPrecondition error from gate reasons.
func Precondition(reasons ...string) *Error {
	e := New(KindTransitionPrecondition)
	e.Reasons = append([]string(nil), reasons...)
	return e
}

// From returns err as an *Error, wrapping unknown errors with KindUnknown.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return New(KindUnknown).Wrap(err)
}

// KindOf returns the Kind of err, or KindUnknown for foreign errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsRetryable reports whether err is a retryable *Error.
func IsRetryable(err error) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Retryable()
	}
	return false
}

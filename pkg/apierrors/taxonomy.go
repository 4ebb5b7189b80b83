// Package apierrors defines the stable error taxonomy shared by every
// provider adapter, the router, and the HTTP handlers. Adapters translate
// provider-native failures into a Kind; the router inspects the Kind (never
// the raw HTTP status) to decide retry vs. fallback vs. fail.
package apierrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one entry in the exhaustive, stable-named error taxonomy.
type Kind string

const (
	BadRequest           Kind = "BadRequest"
	AuthenticationError  Kind = "AuthenticationError"
	PermissionDenied     Kind = "PermissionDenied"
	NotFound             Kind = "NotFound"
	RequestTooLarge      Kind = "RequestTooLarge"
	RateLimited          Kind = "RateLimited"
	BudgetExceeded       Kind = "BudgetExceeded"
	ContextWindowExceeded Kind = "ContextWindowExceeded"
	ContentFiltered      Kind = "ContentFiltered"
	Timeout              Kind = "Timeout"
	UpstreamError        Kind = "UpstreamError"
	StreamAborted        Kind = "StreamAborted"
	InternalError        Kind = "InternalError"

	// NoAvailableDeployment is raised by the router when every deployment in
	// a model-group is cooled down or failing health checks; distinct from
	// NotFound (unknown model-group) per spec §4.5.
	NoAvailableDeployment Kind = "NoAvailableDeployment"

	// UnknownProvider / UnknownModel / MissingCredential are raised during
	// provider registry resolution (spec §4.1).
	UnknownProvider   Kind = "UnknownProvider"
	UnknownModel      Kind = "UnknownModel"
	MissingCredential Kind = "MissingCredential"
)

// httpStatus is the default HTTP status code for each Kind, per spec §7.
var httpStatus = map[Kind]int{
	BadRequest:            http.StatusBadRequest,
	AuthenticationError:   http.StatusUnauthorized,
	PermissionDenied:      http.StatusForbidden,
	NotFound:              http.StatusNotFound,
	RequestTooLarge:       http.StatusRequestEntityTooLarge,
	RateLimited:           http.StatusTooManyRequests,
	BudgetExceeded:        http.StatusTooManyRequests,
	ContextWindowExceeded: http.StatusBadRequest,
	ContentFiltered:       http.StatusBadRequest,
	Timeout:               http.StatusGatewayTimeout,
	UpstreamError:         http.StatusBadGateway,
	StreamAborted:         http.StatusBadGateway,
	InternalError:         http.StatusInternalServerError,
	NoAvailableDeployment: http.StatusServiceUnavailable,
	UnknownProvider:       http.StatusNotFound,
	UnknownModel:          http.StatusNotFound,
	MissingCredential:     http.StatusUnauthorized,
}

// retriable marks which Kinds the router may retry the same deployment for,
// per spec §4.5 ("For transient errors, retry the same deployment...").
var retriable = map[Kind]bool{
	RateLimited:   true,
	Timeout:       true,
	UpstreamError: true,
	StreamAborted: true, // only pre-first-byte; enforced by the router, not here
}

// Error is the gateway's normalized error type. Param identifies the
// offending request field when applicable (e.g. "messages[2].tool_call_id").
type Error struct {
	Kind    Kind
	Message string
	Param   string
	Code    string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// HTTPStatus returns the wire status code for this error's Kind.
func (e *Error) HTTPStatus() int {
	if s, ok := httpStatus[e.Kind]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// Retriable reports whether the router may retry the same deployment.
func (e *Error) Retriable() bool {
	return retriable[e.Kind]
}

// New builds a Error with the given Kind and formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a Kind to an underlying error.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// As extracts *Error from err, the way ratelimit.GetRateLimitResult does for
// RateLimitError in the teacher package this is grounded on.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err, defaulting to InternalError for anything
// that was never classified — gateway bugs are never silently retried.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return InternalError
}

// WireBody is the `{error:{...}}` envelope returned to clients (spec §7).
type WireBody struct {
	Error WireError `json:"error"`
}

type WireError struct {
	Message string `json:"message"`
	Type    Kind   `json:"type"`
	Param   string `json:"param,omitempty"`
	Code    string `json:"code,omitempty"`
}

// ToWire renders err as the client-visible envelope, classifying unknown
// errors as InternalError rather than leaking internal detail.
func ToWire(err error) WireBody {
	if e, ok := As(err); ok {
		return WireBody{Error: WireError{Message: e.Message, Type: e.Kind, Param: e.Param, Code: e.Code}}
	}
	return WireBody{Error: WireError{Message: "internal error", Type: InternalError}}
}

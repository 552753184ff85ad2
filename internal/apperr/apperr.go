package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the category of a pipeline failure. A Kind is itself an error so
// callers can match with errors.Is(err, apperr.RateLimited).
type Kind string

const (
	InvalidInput Kind = "invalid_input"

	ExtractionTimeout  Kind = "extraction_timeout"
	ExtractionUpstream Kind = "extraction_upstream"
	ExtractionInvalid  Kind = "extraction_invalid"

	InvalidCredentials  Kind = "invalid_credentials"
	RateLimited         Kind = "rate_limited"
	UpstreamUnavailable Kind = "upstream_unavailable"
	Unreachable         Kind = "unreachable"
	MalformedResponse   Kind = "malformed_response"
	RequestRejected     Kind = "request_rejected"

	SecretDecode Kind = "secret_decode"

	Internal Kind = "internal"
)

func (k Kind) Error() string { return string(k) }

// Error is a classified failure carrying the operation that produced it.
type Error struct {
	Kind    Kind
	Op      string
	Status  int // upstream HTTP status, when there was one
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches both the Kind sentinel and another *Error of the same Kind.
func (e *Error) Is(target error) bool {
	switch t := target.(type) {
	case Kind:
		return e.Kind == t
	case *Error:
		return e.Kind == t.Kind
	}
	return false
}

// New builds a classified error.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap classifies cause under kind.
func Wrap(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Cause: cause}
}

// KindOf returns the Kind of err, or Internal if err is not classified.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return Internal
}

// Retryable reports whether re-asking might succeed without user action.
func Retryable(err error) bool {
	switch KindOf(err) {
	case RateLimited, UpstreamUnavailable, Unreachable, ExtractionTimeout, ExtractionUpstream:
		return true
	default:
		return false
	}
}

// HTTPStatus maps a Kind to the status the HTTP surface answers with.
func HTTPStatus(kind Kind) int {
	switch kind {
	case InvalidInput, RequestRejected:
		return http.StatusBadRequest
	case InvalidCredentials, SecretDecode:
		return http.StatusUnauthorized
	case RateLimited:
		return http.StatusTooManyRequests
	case ExtractionTimeout:
		return http.StatusGatewayTimeout
	case ExtractionUpstream, ExtractionInvalid, UpstreamUnavailable, MalformedResponse:
		return http.StatusBadGateway
	case Unreachable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

package carrier

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind classifies a carrier integration failure. Handlers map kinds onto
// HTTP status codes; kinds also decide whether a retry can ever help.
type Kind string

const (
	// KindValidation indicates missing or malformed request fields.
	KindValidation Kind = "validation"

	// KindNotConfigured indicates the carrier credentials are absent.
	// Detected before any network I/O; retrying cannot help.
	KindNotConfigured Kind = "not_configured"

	// KindUnauthenticated indicates the carrier rejected our credentials
	// (401/403). Never retried automatically.
	KindUnauthenticated Kind = "unauthenticated"

	// KindInvalidRequest indicates the carrier rejected the payload (400).
	KindInvalidRequest Kind = "invalid_request"

	// KindRemote indicates a carrier-side business failure (other non-2xx).
	// The raw remote body is carried for diagnosis.
	KindRemote Kind = "remote_error"

	// KindUnreachable indicates no response was received at all. Transient;
	// retry policy belongs to the caller, not this layer.
	KindUnreachable Kind = "unreachable"

	// KindNotFound indicates the referenced order or shipment does not exist.
	KindNotFound Kind = "not_found"
)

// Error is the uniform error shape exposed by the carrier integration.
type Error struct {
	Kind    Kind
	Message string
	Status  int             // HTTP status of the remote response, if any
	Remote  json.RawMessage // raw carrier error body, if any
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("carrier %s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("carrier %s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches two carrier errors by Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// NewError creates a new carrier error of the given kind.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Errorf creates a new carrier error with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithCause attaches an underlying cause.
func (e *Error) WithCause(err error) *Error {
	e.Cause = err
	return e
}

// WithStatus attaches the remote HTTP status code.
func (e *Error) WithStatus(status int) *Error {
	e.Status = status
	return e
}

// WithRemote attaches the raw remote error body.
func (e *Error) WithRemote(body []byte) *Error {
	e.Remote = json.RawMessage(body)
	return e
}

// IsKind reports whether err is a carrier error of the given kind.
func IsKind(err error, kind Kind) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind == kind
	}
	return false
}

// Retryable reports whether a retry of the same call could succeed.
// Only transport-level failures qualify; credential and payload problems
// are permanent until an operator intervenes.
func Retryable(err error) bool {
	return IsKind(err, KindUnreachable)
}

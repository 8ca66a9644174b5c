package domain

import (
	"errors"
	"fmt"
)

// AuthError reports an authorization or token refresh failure. It is fatal
// to the current run but never corrupts already-committed state.
type AuthError struct {
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %v", e.Message, e.Err)
	}
	return "auth: " + e.Message
}

func (e *AuthError) Unwrap() error { return e.Err }

// TransportErrorKind distinguishes timeouts from HTTP-level failures.
type TransportErrorKind string

const (
	TransportTimeout TransportErrorKind = "timeout"
	TransportHTTP    TransportErrorKind = "http"
)

// TransportError is a per-call failure from the remote API.
type TransportError struct {
	Kind       TransportErrorKind
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	switch e.Kind {
	case TransportTimeout:
		return "transport: request timeout"
	default:
		if e.Body != "" {
			return fmt.Sprintf("transport: HTTP %d: %s", e.StatusCode, e.Body)
		}
		return fmt.Sprintf("transport: HTTP %d", e.StatusCode)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsNotFound reports whether err is a remote 404.
func IsNotFound(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.StatusCode == 404
}

// ValidationError reports a local pre-flight check failure attributable to
// a single record. Always non-retryable.
type ValidationError struct {
	EntityID string
	Message  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.EntityID, e.Message)
}

// ConflictError reports that a match was found but the update decision
// could not establish precedence. Recorded, not retried.
type ConflictError struct {
	EntityID string
	Message  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict: %s: %s", e.EntityID, e.Message)
}

package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// Kind classifies a failed backend call.
type Kind int

const (
	// KindUnknown is the zero value, returned for errors this package did not produce.
	KindUnknown Kind = iota
	// KindNetwork covers transport failures (connection refused, DNS, reset).
	KindNetwork
	// KindTimeout covers requests that exceeded their deadline.
	KindTimeout
	// KindUnauthenticated means the credential was rejected and could not be refreshed.
	KindUnauthenticated
	// KindUnauthorized means the caller is authenticated but lacks permission.
	KindUnauthorized
	// KindAPIFailure is a structured 4xx/5xx failure carried in the response envelope.
	KindAPIFailure
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindUnauthorized:
		return "unauthorized"
	case KindAPIFailure:
		return "api_failure"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by backend clients.
type Error struct {
	Kind    Kind
	Status  int // original HTTP status, 0 for transport errors
	Message string
	cause   error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Status != 0:
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.Status, e.Message)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.cause != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.cause)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.cause }

// KindOf extracts the Kind from an error chain.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindUnknown
}

// NewTransportError classifies a failed round-trip into timeout vs network failure.
func NewTransportError(err error) *Error {
	if isTimeout(err) {
		return &Error{Kind: KindTimeout, cause: err}
	}
	return &Error{Kind: KindNetwork, cause: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// NewUnauthenticated reports a credential rejection carrying the original status.
func NewUnauthenticated(status int, message string, cause error) *Error {
	return &Error{Kind: KindUnauthenticated, Status: status, Message: message, cause: cause}
}

// NewUnauthorized reports an authenticated-but-forbidden outcome.
func NewUnauthorized(message string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

// NewFailure reports a structured server-side failure.
func NewFailure(status int, message string) *Error {
	return &Error{Kind: KindAPIFailure, Status: status, Message: message}
}

// IsAuthStatus reports whether a status code indicates an invalid or expired credential.
func IsAuthStatus(status int) bool {
	return status == 401 || status == 403
}

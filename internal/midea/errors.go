package midea

import (
	"errors"
	"fmt"
)

// Kind is the category of a library error. The category decides how callers
// react: network errors are retried, protocol errors need a fresh handshake,
// authentication and cloud errors are terminal.
type Kind int

const (
	// KindNetwork indicates a socket-level failure (timeout, refused,
	// unreachable). Retryable.
	KindNetwork Kind = iota
	// KindProtocol indicates a malformed frame or signature mismatch.
	// Not retryable without re-establishing the session.
	KindProtocol
	// KindAuthentication indicates a handshake or session-key failure.
	KindAuthentication
	// KindUnsupported indicates an appliance type or protocol version this
	// library does not implement.
	KindUnsupported
	// KindValidation indicates an out-of-range property value.
	KindValidation
	// KindCloud indicates a terminal cloud API error.
	KindCloud
	// KindCloudRequest indicates a cloud transport failure after retries.
	KindCloudRequest
	// KindRetryLater indicates the cloud asked to back off.
	KindRetryLater
)

// String returns a human-readable name for the error kind.
func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network error"
	case KindProtocol:
		return "protocol error"
	case KindAuthentication:
		return "authentication error"
	case KindUnsupported:
		return "unsupported"
	case KindValidation:
		return "validation error"
	case KindCloud:
		return "cloud error"
	case KindCloudRequest:
		return "cloud request error"
	case KindRetryLater:
		return "retry later"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Error is the error type returned by every package in this module.
type Error struct {
	Kind    Kind
	Message string
	// Code carries the numeric cloud API error code when Kind is KindCloud,
	// KindAuthentication (cloud variant) or KindRetryLater.
	Code int
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Code != 0 && e.Err != nil:
		return fmt.Sprintf("%s: %s (%d, caused by: %v)", e.Kind, e.Message, e.Code, e.Err)
	case e.Code != 0:
		return fmt.Sprintf("%s: %s (%d)", e.Kind, e.Message, e.Code)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a retryable socket-level error.
func NewNetworkError(message string, err error) *Error {
	return &Error{Kind: KindNetwork, Message: message, Err: err}
}

// NewProtocolError creates a frame/payload format error.
func NewProtocolError(message string) *Error {
	return &Error{Kind: KindProtocol, Message: message}
}

// NewAuthenticationError creates a handshake or credential error.
func NewAuthenticationError(message string) *Error {
	return &Error{Kind: KindAuthentication, Message: message}
}

// NewCloudAuthenticationError creates an authentication error raised by the
// cloud API, carrying its numeric code.
func NewCloudAuthenticationError(code int, message string) *Error {
	return &Error{Kind: KindAuthentication, Message: message, Code: code}
}

// NewUnsupportedError creates an error for appliance types or protocol
// versions the library does not handle.
func NewUnsupportedError(message string) *Error {
	return &Error{Kind: KindUnsupported, Message: message}
}

// NewValidationError creates a property range error.
func NewValidationError(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// NewCloudError creates a terminal cloud API error.
func NewCloudError(code int, message string) *Error {
	return &Error{Kind: KindCloud, Message: message, Code: code}
}

// NewCloudRequestError creates a cloud transport error.
func NewCloudRequestError(message string, err error) *Error {
	return &Error{Kind: KindCloudRequest, Message: message, Err: err}
}

// NewRetryLaterError creates a cloud throttling error.
func NewRetryLaterError(code int, message string) *Error {
	return &Error{Kind: KindRetryLater, Message: message, Code: code}
}

func isKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// IsNetworkError reports whether err is a socket-level error.
func IsNetworkError(err error) bool { return isKind(err, KindNetwork) }

// IsProtocolError reports whether err is a frame format error.
func IsProtocolError(err error) bool { return isKind(err, KindProtocol) }

// IsAuthenticationError reports whether err is an authentication failure.
func IsAuthenticationError(err error) bool { return isKind(err, KindAuthentication) }

// IsUnsupportedError reports whether err marks an unsupported appliance or
// protocol version.
func IsUnsupportedError(err error) bool { return isKind(err, KindUnsupported) }

// IsValidationError reports whether err is a property range error.
func IsValidationError(err error) bool { return isKind(err, KindValidation) }

// IsRetryable reports whether the operation that produced err may be retried
// without re-establishing the session.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindNetwork || e.Kind == KindRetryLater
	}
	return false
}

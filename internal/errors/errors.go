// Package errors provides typed errors with machine-readable categories and
// codes, plus a registry of the error definitions used across ham-client.
package errors

import (
	"errors"
	"fmt"
)

// ErrorType is the category of an error for machine-readable classification.
type ErrorType int

const (
	// ErrorTypeUnknown is the default type for unclassified errors.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeValidation covers invalid arguments and field type parameters.
	ErrorTypeValidation
	// ErrorTypeParsing covers malformed JSON, YAML and event frames.
	ErrorTypeParsing
	// ErrorTypeInternal covers unexpected failures.
	ErrorTypeInternal
	// ErrorTypeNetwork covers refused, dropped and failed connections.
	ErrorTypeNetwork
	// ErrorTypeTimeout covers deadline expiry.
	ErrorTypeTimeout
	// ErrorTypeNotFound covers unknown entities and untracked fields.
	ErrorTypeNotFound
	// ErrorTypeAuth covers missing or rejected credentials.
	ErrorTypeAuth
	// ErrorTypeAPI covers requests rejected by the backend.
	ErrorTypeAPI
	// ErrorTypeCanceled covers context cancellation.
	ErrorTypeCanceled
	// ErrorTypeSubscription covers event channel subscription errors.
	ErrorTypeSubscription
)

var typeNames = map[ErrorType]string{
	ErrorTypeUnknown:      "unknown",
	ErrorTypeValidation:   "validation",
	ErrorTypeParsing:      "parsing",
	ErrorTypeInternal:     "internal",
	ErrorTypeNetwork:      "network",
	ErrorTypeTimeout:      "timeout",
	ErrorTypeNotFound:     "not_found",
	ErrorTypeAuth:         "auth",
	ErrorTypeAPI:          "api",
	ErrorTypeCanceled:     "canceled",
	ErrorTypeSubscription: "subscription",
}

// String returns the string representation of the error type.
func (t ErrorType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Error is a typed error with additional context.
type Error struct {
	// Type is the category of the error.
	Type ErrorType
	// Code is an optional machine-readable code (e.g., "field_type_rejected").
	Code string
	// Message is the human-readable message.
	Message string
	// Path locates the error, e.g. "sensor.outdoor/temperature".
	Path string
	// Cause is the underlying error, if any.
	Cause error
	// Details carries extra context such as the HTTP status.
	Details map[string]any
}

// Error implements the error interface.
func (e *Error) Error() string {
	var prefix string
	if e.Code != "" {
		prefix = fmt.Sprintf("[%s] ", e.Code)
	}
	if e.Path != "" {
		if e.Cause != nil {
			return fmt.Sprintf("%s%s: %s: %v", prefix, e.Path, e.Message, e.Cause)
		}
		return fmt.Sprintf("%s%s: %s", prefix, e.Path, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s%s: %v", prefix, e.Message, e.Cause)
	}
	return prefix + e.Message
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error with the same Type, and the same Code when both
// carry one.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	if e.Type != t.Type {
		return false
	}
	if e.Code != "" && t.Code != "" {
		return e.Code == t.Code
	}
	return true
}

// WithDetails returns a copy of the error with details merged in.
func (e *Error) WithDetails(details map[string]any) *Error {
	n := *e
	n.Details = make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		n.Details[k] = v
	}
	for k, v := range details {
		n.Details[k] = v
	}
	return &n
}

// WithCause returns a copy of the error with the given cause.
func (e *Error) WithCause(cause error) *Error {
	n := *e
	n.Cause = cause
	return &n
}

// WithPath returns a copy of the error with the given path.
func (e *Error) WithPath(path string) *Error {
	n := *e
	n.Path = path
	return &n
}

// WithMessagef returns a copy of the error with a formatted message.
func (e *Error) WithMessagef(format string, args ...any) *Error {
	n := *e
	n.Message = fmt.Sprintf(format, args...)
	return &n
}

// New creates an Error with the given type and message.
func New(errType ErrorType, message string) *Error {
	return &Error{Type: errType, Message: message, Details: make(map[string]any)}
}

// Newf creates an Error with a formatted message.
func Newf(errType ErrorType, format string, args ...any) *Error {
	return New(errType, fmt.Sprintf(format, args...))
}

// Wrap wraps cause in a typed Error.
func Wrap(errType ErrorType, cause error, message string) *Error {
	return &Error{Type: errType, Message: message, Cause: cause, Details: make(map[string]any)}
}

// Wrapf wraps cause in a typed Error with a formatted message.
func Wrapf(errType ErrorType, cause error, format string, args ...any) *Error {
	return Wrap(errType, cause, fmt.Sprintf(format, args...))
}

// GetType extracts the ErrorType, or ErrorTypeUnknown for foreign errors.
func GetType(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// GetCode extracts the error code, or "" for foreign errors.
func GetCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// GetDetails extracts the details map, or nil for foreign errors.
func GetDetails(err error) map[string]any {
	var e *Error
	if errors.As(err, &e) {
		return e.Details
	}
	return nil
}

// IsType reports whether err is an *Error of the given type.
func IsType(err error, errType ErrorType) bool {
	return GetType(err) == errType
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool { return IsType(err, ErrorTypeValidation) }

// IsParsing reports whether err is a parsing error.
func IsParsing(err error) bool { return IsType(err, ErrorTypeParsing) }

// IsNetwork reports whether err is a network error.
func IsNetwork(err error) bool { return IsType(err, ErrorTypeNetwork) }

// IsTimeout reports whether err is a timeout error.
func IsTimeout(err error) bool { return IsType(err, ErrorTypeTimeout) }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return IsType(err, ErrorTypeNotFound) }

// IsAuth reports whether err is an authentication error.
func IsAuth(err error) bool { return IsType(err, ErrorTypeAuth) }

// IsAPI reports whether err is a backend rejection.
func IsAPI(err error) bool { return IsType(err, ErrorTypeAPI) }

// IsCanceled reports whether err is a cancellation error.
func IsCanceled(err error) bool { return IsType(err, ErrorTypeCanceled) }

// IsSubscription reports whether err is a subscription error.
func IsSubscription(err error) bool { return IsType(err, ErrorTypeSubscription) }

// As, Is and Join re-export the standard helpers so callers need one import.
var (
	As   = errors.As
	Is   = errors.Is
	Join = errors.Join
)

package realtime

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a category of real-time failure. Codes travel to
// clients inside ERROR frames and never crash the process.
type ErrorCode string

const (
	CodeAuthentication  ErrorCode = "AUTHENTICATION_ERROR"
	CodeAuthorization   ErrorCode = "AUTHORIZATION_ERROR"
	CodeNotSubscribed   ErrorCode = "NOT_SUBSCRIBED"
	CodeInvalidMode     ErrorCode = "INVALID_MODE"
	CodeNotFound        ErrorCode = "NOT_FOUND"
	CodeStaleConnection ErrorCode = "STALE_CONNECTION"
)

// Error is a typed real-time error carrying a wire code.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewError builds a typed error with the given code.
func NewError(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// ErrNotFound reports an unknown entity id, which indicates a client desync.
func ErrNotFound(kind, id string) *Error {
	return NewError(CodeNotFound, "%s %s not found", kind, id)
}

// ErrNotSubscribed reports an action referencing a session the caller
// has not joined.
func ErrNotSubscribed(sessionID string) *Error {
	return NewError(CodeNotSubscribed, "not subscribed to session %s", sessionID)
}

// AsError extracts a typed *Error from err, wrapping unknown errors under
// the given fallback code.
func AsError(err error, fallback ErrorCode) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Code: fallback, Message: err.Error()}
}

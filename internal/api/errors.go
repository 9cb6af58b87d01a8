package api

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated is returned before any network I/O when no
	// credential is stored.
	ErrUnauthenticated = errors.New("no authentication token available")
	// ErrAuthRequired means the server rejected the credential with 401.
	// The sign-in navigation has already been triggered when it is returned.
	ErrAuthRequired = errors.New("authentication required")
	// ErrNoSession means the session lookup succeeded but carried no session.
	ErrNoSession = errors.New("no active session")
	// ErrUserIDRequired guards every task operation.
	ErrUserIDRequired = errors.New("user id is required")
	// ErrInvalidResponse is returned when an auth response lacks a user or token.
	ErrInvalidResponse = errors.New("invalid response from server")
)

// userMessages is the text shown for each sentinel.
var userMessages = []struct {
	err     error
	message string
}{
	{ErrUnauthenticated, "No authentication token available"},
	{ErrAuthRequired, "Authentication required"},
	{ErrUserIDRequired, "User ID is required"},
	{ErrInvalidResponse, "Invalid response from server"},
}

// StatusError is any non-2xx response other than 401.
type StatusError struct {
	StatusCode int
	StatusText string
	// Message is the server's {message} or {detail}, when it sent one.
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error: %d %s", e.StatusCode, e.StatusText)
}

// AuthError is a failed signup or login. Message is safe to show to the user.
type AuthError struct {
	StatusCode int
	Message    string
}

func (e *AuthError) Error() string {
	return e.Message
}

// Message extracts user-facing text from err, falling back when err carries
// none of its own.
func Message(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var authErr *AuthError
	if errors.As(err, &authErr) && authErr.Message != "" {
		return authErr.Message
	}
	for _, m := range userMessages {
		if errors.Is(err, m.err) {
			return m.message
		}
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if statusErr.Message != "" {
			return statusErr.Message
		}
		return statusErr.Error()
	}
	if fallback != "" {
		return fallback
	}
	return err.Error()
}

// Package apperrors defines the error taxonomy shared across the
// document index, session and chat subsystems, and maps it onto HTTP
// status codes at the API boundary.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors. Wrap these with fmt.Errorf("...: %w", ErrX) to add
// context while keeping errors.Is working.
var (
	// ErrNotFound indicates a requested document, session or token does
	// not exist.
	ErrNotFound = errors.New("not found")

	// ErrPathEscape indicates a relative path resolves outside its
	// document root.
	ErrPathEscape = errors.New("path escapes document root")

	// ErrAlreadyExists indicates a create operation collided with an
	// existing entry (username, directory).
	ErrAlreadyExists = errors.New("already exists")

	// ErrUnauthorized indicates missing or invalid credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrExclusiveLoginDenied indicates a login attempt for a username
	// that already holds an active exclusive session.
	ErrExclusiveLoginDenied = errors.New("user already has an active session")

	// ErrUpstreamError indicates a downstream dependency (embeddings
	// service, knowledge base, chat completions API, preview service)
	// failed or returned an unexpected response.
	ErrUpstreamError = errors.New("upstream service error")

	// ErrToolArgInvalid indicates a tool call's arguments failed
	// schema or semantic validation.
	ErrToolArgInvalid = errors.New("invalid tool arguments")

	// ErrCancelled indicates a context was cancelled mid-operation.
	ErrCancelled = errors.New("operation cancelled")
)

// HTTPStatus maps an error to the HTTP status code the API layer
// should respond with. It walks the error chain with errors.Is, so
// wrapped sentinel errors resolve correctly. Unrecognized errors map
// to 500.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrPathEscape):
		return http.StatusBadRequest
	case errors.Is(err, ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrExclusiveLoginDenied):
		return http.StatusConflict
	case errors.Is(err, ErrToolArgInvalid):
		return http.StatusBadRequest
	case errors.Is(err, ErrCancelled):
		return http.StatusRequestTimeout
	case errors.Is(err, ErrUpstreamError):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// NotFoundf wraps ErrNotFound with a formatted message.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}

// PathEscapef wraps ErrPathEscape with a formatted message.
func PathEscapef(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrPathEscape)...)
}

// AlreadyExistsf wraps ErrAlreadyExists with a formatted message.
func AlreadyExistsf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrAlreadyExists)...)
}

// Unauthorizedf wraps ErrUnauthorized with a formatted message.
func Unauthorizedf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrUnauthorized)...)
}

// UpstreamErrorf wraps ErrUpstreamError with a formatted message.
func UpstreamErrorf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrUpstreamError)...)
}

// ToolArgInvalidf wraps ErrToolArgInvalid with a formatted message.
func ToolArgInvalidf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrToolArgInvalid)...)
}

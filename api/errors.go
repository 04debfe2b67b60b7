package api

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Sentinel errors for each terminal request classification. Callers match
// them with errors.Is; the structured detail travels on *Error.
var (
	// ErrUnauthorized covers bad credentials and a 401 on an already-retried
	// request.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden means the caller is authenticated but not allowed.
	ErrForbidden = errors.New("forbidden")
	ErrNotFound  = errors.New("not found")
	// ErrServer covers any 5xx response. There is no automatic retry:
	// repeating a mutating call without idempotency keys is unsafe.
	ErrServer = errors.New("server error")
	// ErrNetwork means no response was received at all.
	ErrNetwork = errors.New("network error")
	// ErrValidation carries a field rejection echoed from the backend, or a
	// client-side check that failed before any network call.
	ErrValidation = errors.New("validation failed")
	// ErrSessionExpired is the refresh-exhausted case: the session has been
	// torn down and the user must log in again. Kept distinct from
	// ErrUnauthorized so consumers can redirect instead of showing an inline
	// message.
	ErrSessionExpired = errors.New("session expired")
)

// Error is a classified request failure. Kind is one of the sentinel errors
// above and is reachable through errors.Is; Status is the HTTP status code
// when a response was received, zero otherwise.
type Error struct {
	Kind    error
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Kind
}

// Message returns the backend's human-readable message from err, or fallback
// when err carries none.
func Message(err error, fallback string) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return fallback
}

// serverMessage pulls the human-readable message out of an error body. The
// backend is inconsistent about the field name, so all observed variants are
// checked.
func serverMessage(body []byte) string {
	var parsed struct {
		Message string `json:"message"`
		Detail  string `json:"detail"`
		Err     string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return ""
	}
	switch {
	case parsed.Message != "":
		return parsed.Message
	case parsed.Detail != "":
		return parsed.Detail
	default:
		return parsed.Err
	}
}

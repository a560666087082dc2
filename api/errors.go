package api

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed dispatch so callers can pick a recovery
// path: auth failures route to re-login, everything else rolls back
// optimistic state and is shown to the user.
type ErrorKind string

const (
	KindAuth       ErrorKind = "auth"
	KindValidation ErrorKind = "validation"
	KindServer     ErrorKind = "server"
	KindNetwork    ErrorKind = "network"
)

var (
	ErrNoCredential   = errors.New("no access credential")
	ErrSessionExpired = errors.New("session expired")
)

// Error is the typed failure returned by Client.Dispatch. Status is zero
// for transport-level failures that never produced a response.
type Error struct {
	Kind    ErrorKind
	Status  int
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s error (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Kind returns the classification of err, or an empty kind for errors that
// did not originate in the gateway.
func Kind(err error) ErrorKind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return ""
}

// IsAuthError reports whether err is a credential failure, including the
// immediate no-credential rejection that never reaches the network.
func IsAuthError(err error) bool {
	return Kind(err) == KindAuth || errors.Is(err, ErrNoCredential)
}

func authError(status int, message string, cause error) *Error {
	return &Error{Kind: KindAuth, Status: status, Message: message, cause: cause}
}

func networkError(message string, cause error) *Error {
	return &Error{Kind: KindNetwork, Message: message, cause: cause}
}

// classifyStatus maps a non-2xx response to the error taxonomy. 401 is
// handled by the refresh path before this is reached.
func classifyStatus(status int, message string) *Error {
	kind := KindServer
	if status >= 400 && status < 500 {
		kind = KindValidation
	}
	if status == 401 {
		kind = KindAuth
	}
	if message == "" {
		message = fmt.Sprintf("request failed with status %d", status)
	}
	return &Error{Kind: kind, Status: status, Message: message}
}

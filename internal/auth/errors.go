package auth

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials covers rejected logins and rejected refresh
	// tokens (HTTP 400/401/403).
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNetwork wraps transport-level failures. Callers decide whether
	// to retry; this package never does.
	ErrNetwork = errors.New("network error")
	// ErrDecodeFailure means the endpoint answered 200 with a body we
	// could not interpret.
	ErrDecodeFailure = errors.New("response decode failed")
)

// ServerError is any unexpected non-200 status from the auth endpoints.
type ServerError struct {
	Status int
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("auth server error: status %d", e.Status)
}

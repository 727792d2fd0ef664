package caldav

import (
	"errors"
	"fmt"
	"net/url"
)

// AuthError is a 401/403 from the calendar server. Fatal for the run and
// never retried within it.
type AuthError struct {
	Status int
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication rejected by calendar server (HTTP %d)", e.Status)
}

// NotFoundError is a missing calendar or event resource.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found on calendar server: %s", e.Path)
}

// TransientError is a timeout, connection failure, or 5xx; the run's retry
// policy may retry it.
type TransientError struct {
	Status int
	Err    error
}

func (e *TransientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transient calendar server error: %v", e.Err)
	}
	return fmt.Sprintf("transient calendar server error (HTTP %d)", e.Status)
}

func (e *TransientError) Unwrap() error { return e.Err }

// ProtocolError is a malformed or unexpected server response. Not retried.
type ProtocolError struct {
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("calendar protocol error: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// IsTransient reports whether err is retryable within a sync run.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// classify maps an error from the WebDAV layer onto the client taxonomy.
// Typed errors injected by the auth transport pass through; transport-level
// failures (DNS, refused connections, timeouts) are transient; anything the
// server answered but we could not interpret is a protocol error.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr
	}
	var nfErr *NotFoundError
	if errors.As(err, &nfErr) {
		return nfErr
	}
	var trErr *TransientError
	if errors.As(err, &trErr) {
		return trErr
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &TransientError{Err: err}
	}
	return &ProtocolError{Err: err}
}

package provider

import (
	"errors"
	"fmt"
)

// ErrDataUnavailable reports that the provider holds no data for the
// requested window once clamped to its bounds.
var ErrDataUnavailable = errors.New("provider has no data for window")

// AuthenticationError means the credentials were rejected or have expired.
// Callers should stop and ask for reconfiguration instead of retrying.
type AuthenticationError struct {
	Op  string
	Err error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed during %s: %v", e.Op, e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// CommunicationError is a transient transport or provider failure.
type CommunicationError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *CommunicationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s failed (HTTP %d): %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *CommunicationError) Unwrap() error { return e.Err }

func IsAuthentication(err error) bool {
	var authErr *AuthenticationError
	return errors.As(err, &authErr)
}

func IsCommunication(err error) bool {
	var commErr *CommunicationError
	return errors.As(err, &commErr)
}

// Classify maps an HTTP status to the provider error taxonomy. It returns
// nil for 2xx statuses.
func Classify(op string, status int, body string) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == 401 || status == 403:
		return &AuthenticationError{Op: op, Err: errors.New(body)}
	default:
		return &CommunicationError{Op: op, StatusCode: status, Err: errors.New(body)}
	}
}

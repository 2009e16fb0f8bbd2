package gmail

import "fmt"

// AuthError reports an invalid, expired, or consumed credential. It
// is not retryable without a fresh authorization code.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return fmt.Sprintf("gmail auth: %v", e.Err) }
func (e *AuthError) Unwrap() error { return e.Err }

// TransientError reports a rate limit, timeout, or network failure.
// Callers may retry with backoff.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("gmail transient: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// NotFoundError reports a message that no longer exists, typically
// deleted between search and fetch.
type NotFoundError struct {
	Err error
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("gmail not found: %v", e.Err) }
func (e *NotFoundError) Unwrap() error { return e.Err }

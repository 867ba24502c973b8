package core

import "errors"

// transientError marks an error as a transient provider condition that may
// succeed on retry (rate limiting, overload, upstream 5xx).
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }

func (e *transientError) Unwrap() error { return e.err }

// Transient wraps err to mark it retryable. A nil err returns nil.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether any error in err's chain was marked Transient.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

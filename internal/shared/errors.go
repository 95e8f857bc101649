package shared

import "errors"

// Error kinds. Domain packages wrap these so transports can map them without
// knowing every concrete error.
var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks input rejected before any write happened.
	ErrValidation = errors.New("validation failed")
	// ErrConflict marks a request that clashes with current state.
	ErrConflict = errors.New("conflict")
)

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }

// ValidationError builds an error that matches ErrValidation.
func ValidationError(msg string) error {
	return &kindError{kind: ErrValidation, msg: msg}
}

// NotFoundError builds an error that matches ErrNotFound.
func NotFoundError(msg string) error {
	return &kindError{kind: ErrNotFound, msg: msg}
}

// ConflictError builds an error that matches ErrConflict.
func ConflictError(msg string) error {
	return &kindError{kind: ErrConflict, msg: msg}
}

// IsClientError reports whether err was caused by the request rather than by
// the server.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) || errors.Is(err, ErrIdempotencyConflict)
}

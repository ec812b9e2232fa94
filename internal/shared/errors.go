package shared

import "errors"

// Error kinds shared across modules. Domain sentinels wrap one of these so the
// HTTP layer can map them without importing every package.
var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates a business rule rejected the request in the current state.
	ErrConflict = errors.New("conflict")
	// ErrDuplicate indicates a uniqueness violation.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrForbidden indicates the caller lacks access.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthorized indicates a missing or invalid identity.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrTemporary marks a failure the client may retry unchanged.
	ErrTemporary = errors.New("temporarily unavailable")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// CodedError exposes a stable machine readable code next to the message.
type CodedError interface {
	error
	ErrorCode() string
}

// Wrap returns an error carrying msg that matches kind with errors.Is.
func Wrap(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }

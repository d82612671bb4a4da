package domain

import "errors"

// Request errors. Handlers map ErrRateLimitExceeded to 429 and every other
// error to 400 carrying its message.
var (
	ErrAuth              = errors.New("unauthorized")
	ErrTenantNotFound    = errors.New("tenant not found")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrBackend           = errors.New("backend error")
)

// Specific failures, each wrapping one of the categories above.
var (
	ErrMissingAuthorization = wrap(ErrAuth, "missing authorization header")
	ErrInvalidCredential    = wrap(ErrAuth, "invalid or expired credential")
	ErrNoTenantAssociation  = wrap(ErrTenantNotFound, "no tenant associated with user")
)

type categorized struct {
	category error
	msg      string
}

func wrap(category error, msg string) error {
	return &categorized{category: category, msg: msg}
}

func (e *categorized) Error() string { return e.msg }

func (e *categorized) Unwrap() error { return e.category }

// BackendError reports a failed call to the identity service or the store.
// The message names the operation only; the cause stays available to
// errors.Is/As and to logs.
type BackendError struct {
	Op  string
	Err error
}

// NewBackendError wraps err as a failure of op.
func NewBackendError(op string, err error) error {
	return &BackendError{Op: op, Err: err}
}

func (e *BackendError) Error() string {
	return "backend error: " + e.Op + " failed"
}

func (e *BackendError) Unwrap() []error {
	return []error{ErrBackend, e.Err}
}

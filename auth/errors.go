package auth

import "errors"

var (
	// ErrConfig indicates the service cannot start, e.g. no credential record
	// exists and no initial password was supplied.
	ErrConfig = errors.New("configuration error")
	// ErrValidation indicates malformed input rejected before any write.
	ErrValidation = errors.New("invalid input")
	// ErrInvalidPassword is the only error a failed login reports.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrClosed is returned by writes issued after Close.
	ErrClosed = errors.New("auth service closed")

	// errNoWrite aborts a mutation without saving and without error.
	errNoWrite = errors.New("no write")
)

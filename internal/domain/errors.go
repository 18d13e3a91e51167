package domain

import "errors"

var (
	// ErrUnauthorized means no authenticated sender is attached to the
	// connection. Rejected before any side effect.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrStoreUnavailable means message persistence failed because of a
	// storage I/O problem. The dispatch that hit it is aborted; retrying
	// is up to the transport layer.
	ErrStoreUnavailable = errors.New("message store unavailable")

	// ErrInvalidInput covers empty or malformed caller input.
	ErrInvalidInput = errors.New("invalid input")

	ErrUserNotFound       = errors.New("user not found")
	ErrUsernameExists     = errors.New("username already exists")
	ErrEmailExists        = errors.New("email already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

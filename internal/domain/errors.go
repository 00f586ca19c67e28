package domain

import "errors"

var (
	// ErrAuth marks an invalid or expired session token.
	ErrAuth = errors.New("unauthorized")
	// ErrForbidden marks an authenticated user without project access.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound marks a vanished project, task or user.
	ErrNotFound = errors.New("not found")
	// ErrTransport marks a delivery failure to a single recipient.
	ErrTransport = errors.New("transport error")
	// ErrInvalidChange marks a change notification that cannot be relayed.
	ErrInvalidChange = errors.New("invalid change event")
)

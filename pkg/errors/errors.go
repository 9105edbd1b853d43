package errors

import "errors"

var (
	// ErrNotFound is returned by store lookups that match no row.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when an insert violates a unique constraint.
	ErrDuplicate = errors.New("duplicate record")

	// ErrNotConfigured is returned by the mailer when it has no API key or
	// sender address.
	ErrNotConfigured = errors.New("email service is not configured")
)

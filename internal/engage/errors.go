package engage

import (
	"errors"
	"fmt"
)

// Sentinel errors for the engagement engine. Handlers translate these
// to HTTP statuses; everything here is recoverable at the request
// boundary.
var (
	// ErrUnauthenticated means no user identity was supplied.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrForbidden means the identity exists but the action is not
	// allowed (wrong owner, banned user, or the target disallows it).
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound means the target id does not resolve.
	ErrNotFound = errors.New("not found")

	// ErrValidation means the input itself is malformed.
	ErrValidation = errors.New("invalid input")

	// ErrConflict should not normally surface: the store's unique
	// constraint prevents double reactions by construction, and a
	// constraint violation during insert is retried once before this
	// is returned.
	ErrConflict = errors.New("conflict")
)

func forbiddenf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrForbidden)...)
}

func notFoundf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
}

func validationf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrValidation)...)
}

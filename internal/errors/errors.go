// Package errors defines the error kinds shared by every casevault component.
// Domain packages wrap a kind with their own sentinel (crypto.ErrKeyNotFound
// wraps ErrNotFound) and handlers translate the kind into a response.
package errors

import (
	"errors"
	"fmt"
)

// Error kinds.
var (
	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a clash with current state (duplicate version,
	// rotation inside the grace period, concurrent ledger append).
	ErrConflict = errors.New("conflict")

	// ErrInvalidInput indicates the input data is invalid or fails validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates the request lacks valid authentication credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the caller may not touch the resource.
	ErrForbidden = errors.New("forbidden")

	// ErrUnavailable indicates a dependency is temporarily unavailable.
	// Callers may retry with backoff.
	ErrUnavailable = errors.New("unavailable")

	// ErrLocked indicates the resource is locked and requires operator
	// intervention (disabled KMS key, ledger flagged for tampering).
	ErrLocked = errors.New("locked")
)

// kinds is ordered by precedence: an error wrapping several kinds reports the first.
var kinds = []struct {
	err  error
	code string
}{
	{ErrLocked, "locked"},
	{ErrUnavailable, "unavailable"},
	{ErrNotFound, "not_found"},
	{ErrConflict, "conflict"},
	{ErrInvalidInput, "invalid_input"},
	{ErrUnauthorized, "unauthorized"},
	{ErrForbidden, "forbidden"},
}

// Kind returns the error kind err wraps, or nil when it wraps none.
func Kind(err error) error {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.err
		}
	}
	return nil
}

// Code returns the stable machine-readable code of err's kind,
// "internal_error" when it has none.
func Code(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.code
		}
	}
	return "internal_error"
}

// Retryable reports whether err is transient and the call may be repeated.
func Retryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// Wrap adds message as context to err, keeping err in the chain.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf is Wrap with a formatted message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Join returns an error that wraps the given errors, discarding nils.
func Join(errs ...error) error {
	return errors.Join(errs...)
}

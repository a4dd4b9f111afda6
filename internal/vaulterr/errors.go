// Package vaulterr defines the error taxonomy shared by every CodeOps-Vault
// component, per the error handling design in the project specification.
package vaulterr

import (
	"errors"
	"fmt"
)

// Sentinel errors. Components wrap one of these with fmt.Errorf("%w: ...", ...)
// so callers can classify an error with errors.Is while still getting a
// specific, human-readable message.
var (
	// ErrNotFound indicates a named entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput indicates a business-rule violation.
	ErrInvalidInput = errors.New("invalid input")
	// ErrForbidden indicates the authorization layer denied the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrIntegrityFailure indicates a cryptographic tag mismatch or corrupt envelope.
	ErrIntegrityFailure = errors.New("integrity failure")
	// ErrSealed indicates the seal gate refused the operation.
	ErrSealed = errors.New("sealed")
	// ErrNotImplemented indicates a reserved, unimplemented strategy.
	ErrNotImplemented = errors.New("not implemented")
	// ErrInternal indicates an uncategorised failure; never shown verbatim to callers.
	ErrInternal = errors.New("internal error")
)

// NotFound wraps ErrNotFound with a caller-safe message.
func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// InvalidInput wraps ErrInvalidInput with a caller-safe message.
func InvalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Forbidden wraps ErrForbidden with a caller-safe message.
func Forbidden(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrForbidden, fmt.Sprintf(format, args...))
}

// IntegrityFailure wraps ErrIntegrityFailure with a caller-safe message.
func IntegrityFailure(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrIntegrityFailure, fmt.Sprintf(format, args...))
}

// Sealed wraps ErrSealed with a caller-safe message.
func Sealed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSealed, fmt.Sprintf(format, args...))
}

// NotImplemented wraps ErrNotImplemented with a caller-safe message.
func NotImplemented(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotImplemented, fmt.Sprintf(format, args...))
}

// Internal wraps ErrInternal. The wrapped detail is for server-side logs only;
// callers should be shown a generic message instead of err.Error().
func Internal(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInternal, fmt.Sprintf(format, args...))
}

// Kind classifies err against the taxonomy, defaulting to ErrInternal.
func Kind(err error) error {
	for _, sentinel := range []error{
		ErrNotFound, ErrInvalidInput, ErrForbidden,
		ErrIntegrityFailure, ErrSealed, ErrNotImplemented,
	} {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return ErrInternal
}

// SafeMessage returns a message fit to cross the process boundary: the error's
// own message for business errors, a generic string for internal ones.
func SafeMessage(err error) string {
	if Kind(err) == ErrInternal {
		return "an internal error occurred"
	}
	return err.Error()
}

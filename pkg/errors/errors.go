package errors

import (
	"errors"
	"fmt"
)

// Domain errors - these map to specific HTTP responses
var (
	// Input errors
	ErrInvalidArgument = errors.New("invalid argument")

	// Store errors
	ErrNotFound            = errors.New("not found")
	ErrRevisionConflict    = errors.New("revision conflict")
	ErrConcurrencyConflict = errors.New("concurrency conflict: retries exhausted")
	ErrStore               = errors.New("store error")

	// Push errors
	ErrInvalidToken = errors.New("invalid device token")
	ErrTransient    = errors.New("transient push error")

	// Access errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// General errors
	ErrInternal = errors.New("internal error")
)

// ValidationError represents a missing or malformed request field.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Unwrap makes every ValidationError match ErrInvalidArgument.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidArgument
}

// Is wraps errors.Is for convenience.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Mark tags err with a sentinel so callers can classify it with Is while
// the original cause stays in the chain.
func Mark(err, sentinel error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %w", sentinel, err)
}

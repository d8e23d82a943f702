// Package apperr holds the error taxonomy shared by the planner core.
// Components wrap these sentinels with fmt.Errorf("...: %w", ...) and callers
// branch on them with errors.Is.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrGenerationUnavailable means both LLM providers failed for a request.
	ErrGenerationUnavailable = errors.New("generation unavailable")
	// ErrExtractionFailed means the LLM response did not match the extraction schema.
	ErrExtractionFailed = errors.New("extraction failed")
	// ErrContextStore covers embedding and vector backend failures.
	ErrContextStore = errors.New("context store error")
	// ErrPersistence wraps failures of the relational store.
	ErrPersistence = errors.New("persistence error")
	// ErrValidation marks malformed caller input. It is returned before any external call.
	ErrValidation = errors.New("validation error")
	// ErrNotFound is returned when a record does not exist for the acting owner.
	ErrNotFound = errors.New("not found")
)

// Validation builds an ErrValidation with a formatted reason.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Persistence wraps err as ErrPersistence keeping the operation name.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

// Degraded reports whether err belongs to the recoverable-degraded class:
// callers are expected to fall back instead of failing the user operation.
func Degraded(err error) bool {
	return errors.Is(err, ErrGenerationUnavailable) || errors.Is(err, ErrContextStore)
}

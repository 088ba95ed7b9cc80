package models

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input rejected before the pipeline runs
	ErrValidation = errors.New("validation failed")
	// ErrNotFound is returned when a job or record does not exist
	ErrNotFound = errors.New("not found")
	// ErrDimensionMismatch is returned when a vector length differs from the index dimensionality
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrNoRetrievalCapability is returned when no similarity capability is left on a backend
	ErrNoRetrievalCapability = errors.New("no retrieval capability available")
	// ErrCapabilityUnavailable is reported by a backend that does not support an operation
	ErrCapabilityUnavailable = errors.New("capability unavailable")
)

// ValidationError describes a single invalid input field
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// RetrievalError wraps a failure of the embedding or index capability
type RetrievalError struct {
	Op  string
	Err error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieval %s: %v", e.Op, e.Err)
}

func (e *RetrievalError) Unwrap() error { return e.Err }

// GenerationError wraps a provider failure during one generation attempt
type GenerationError struct {
	Attempt int
	Err     error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation attempt %d: %v", e.Attempt, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

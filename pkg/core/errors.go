// Package core provides the memory store facade that ties the vector index,
// metadata index, fusion, forgetting, and retrieval engines together.
package core

import (
	"errors"
	"fmt"
)

// Predefined errors for common failure scenarios.
var (
	// ErrNotFound indicates that a requested memory was not found.
	ErrNotFound = errors.New("memory not found")

	// ErrInvalidConfig indicates that the provided configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNoProvider indicates that no usable provider is configured at all.
	// This is the fatal configuration class: operations abort rather than
	// degrade.
	ErrNoProvider = errors.New("no usable provider configured")

	// ErrProvider indicates a recoverable provider failure (embedding,
	// extraction, or planning). The affected pipeline stage degrades.
	ErrProvider = errors.New("provider operation failed")

	// ErrDataIntegrity indicates a dimension mismatch or malformed snapshot.
	// The offending record or slice is skipped and logged; batches continue.
	ErrDataIntegrity = errors.New("data integrity violation")

	// ErrClosed indicates the store has been shut down.
	ErrClosed = errors.New("store is closed")
)

// StoreError wraps errors with operation context.
//
// Example:
//
//	err := &StoreError{
//	    Op:  "Build",
//	    Err: ErrNoProvider,
//	}
//	// Error() returns: "engram: Build: no usable provider configured"
type StoreError struct {
	// Op is the name of the operation that failed.
	Op string

	// Err is the underlying error.
	Err error
}

// Error returns a formatted error message.
//
// The format is: "engram: <Op>: <Err>"
func (e *StoreError) Error() string {
	return fmt.Sprintf("engram: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for error unwrapping.
//
// This allows using errors.Is() and errors.As() with StoreError.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError wrapping the given error.
//
// If err is nil, returns nil. This allows safe error wrapping:
//
//	if err != nil {
//	    return NewStoreError("Build", err)
//	}
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

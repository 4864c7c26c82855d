package core

import (
	"errors"
	"fmt"
)

// Common errors
var (
	// ErrNotInitialized is returned when an operation runs before Initialize
	ErrNotInitialized = errors.New("store is not initialized")

	// ErrEmptyText is returned when adding a volume with no text
	ErrEmptyText = errors.New("text must not be empty")

	// ErrEmptyEmbedding is returned when adding a volume with no embedding
	ErrEmptyEmbedding = errors.New("embedding must not be empty")

	// ErrCorruption is returned when persisted data cannot be decoded
	ErrCorruption = errors.New("corrupt data")

	// ErrSerialization is returned when data cannot be encoded for persistence
	ErrSerialization = errors.New("serialization failed")
)

// DuplicateError is returned by Add when duplicate behavior is set to error
// and the new embedding matches an existing volume.
type DuplicateError struct {
	Similarity float64
}

// Error implements the error interface
func (e *DuplicateError) Error() string {
	return fmt.Sprintf("duplicate volume (similarity %.4f)", e.Similarity)
}

// StoreError wraps errors with operation context
type StoreError struct {
	Op  string // Operation name
	Err error  // Underlying error
}

// Error implements the error interface
func (e *StoreError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("volumestore: %v", e.Err)
	}
	return fmt.Sprintf("volumestore: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is checks if the error matches the target
func (e *StoreError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// wrapError wraps an error with operation context
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Err: err}
}

// corruption builds a corruption error with detail text.
func corruption(detail string) error {
	return fmt.Errorf("%w: %s", ErrCorruption, detail)
}

// ErrorCode maps an error to the short machine code carried in the JSON-RPC
// error data object.
func ErrorCode(err error) string {
	var dup *DuplicateError
	switch {
	case errors.Is(err, ErrNotInitialized):
		return "STACKS_NOT_LOADED"
	case errors.Is(err, ErrEmptyText):
		return "EMPTY_TEXT"
	case errors.Is(err, ErrEmptyEmbedding):
		return "EMPTY_EMBEDDING"
	case errors.As(err, &dup):
		return "DUPLICATE"
	case errors.Is(err, ErrCorruption):
		return "CORRUPTION"
	case errors.Is(err, ErrSerialization):
		return "SERIALIZATION"
	default:
		return "IO_ERROR"
	}
}

package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound marks a negative lookup: the report is absent or no longer pending.
var ErrNotFound = errors.New("resource not found")

// ValidationError lists submission fields that were missing or blank.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.Fields, ", ")
}

// StorageError wraps a persistence failure for a named operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// DeliveryError is returned once the retry budget for a push is exhausted.
// Err is the failure reason of the last attempt.
type DeliveryError struct {
	Recipient string
	Attempts  int
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %s failed after %d attempt(s): %v", e.Recipient, e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

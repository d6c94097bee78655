package store

import (
	"errors"
	"fmt"
)

// PersistenceError is any I/O or decode failure at the store boundary.
type PersistenceError struct {
	Path    string
	Message string
	Err     error
}

func (e *PersistenceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Path, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// RunNotFoundError indicates a run whose run.json is missing.
type RunNotFoundError struct {
	RunID string
}

func (e *RunNotFoundError) Error() string {
	return fmt.Sprintf("run %s not found", e.RunID)
}

// IsRunNotFound returns true if err is (or wraps) a RunNotFoundError.
func IsRunNotFound(err error) bool {
	var notFound *RunNotFoundError
	return errors.As(err, &notFound)
}

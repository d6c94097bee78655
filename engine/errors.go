package engine

import (
	"errors"
	"fmt"
)

// ProgramExecutionError covers driver failures, spawn result decode
// failures, and unhandled program errors.
type ProgramExecutionError struct {
	RunID   string
	Message string
}

func (e *ProgramExecutionError) Error() string {
	return fmt.Sprintf("run %s: program execution failed: %s", e.RunID, e.Message)
}

// WaitTimeoutError indicates Wait elapsed before a run terminal appeared.
type WaitTimeoutError struct {
	RunID         string
	TimeoutMillis int64
}

func (e *WaitTimeoutError) Error() string {
	return fmt.Sprintf("run %s: wait timed out after %dms", e.RunID, e.TimeoutMillis)
}

// IsWaitTimeout returns true if err is (or wraps) a WaitTimeoutError.
func IsWaitTimeout(err error) bool {
	var timeout *WaitTimeoutError
	return errors.As(err, &timeout)
}

// asErr is errors.As with type inference.
func asErr[T error](err error, target *T) bool {
	return errors.As(err, target)
}

// prettyCause renders an error for event payloads and protocol responses.
func prettyCause(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

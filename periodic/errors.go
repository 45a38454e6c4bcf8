package periodic

import (
	"errors"
	"fmt"
)

// PanicError is the fault captured from a panic in Runnable.RunOnce.
type PanicError struct {
	// Value is the value passed to panic.
	Value any

	// Stack is the stack trace of the worker thread, at the time of recovery.
	Stack []byte
}

var (
	// ErrGoexit is the fault captured when Runnable.RunOnce calls
	// runtime.Goexit.
	ErrGoexit = errors.New(`periodic: runnable called runtime.Goexit`)
)

func (e *PanicError) Error() string {
	return fmt.Sprintf(`periodic: runnable panicked: %v`, e.Value)
}

// Unwrap returns Value, if it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

package runner

import (
	"errors"
	"fmt"
)

var (
	ErrNotStarted     = errors.New("runner: no run session has been started")
	ErrAlreadyStarted = errors.New("runner: run session already started")
	ErrFinished       = errors.New("runner: run session has finished")
	ErrNilContext     = errors.New("runner: nil context")
	ErrNilDocument    = errors.New("runner: nil model document")
)

// LoadError is returned by Wait when the model could not be loaded.
type LoadError struct {
	Wrapped error
}

func (e *LoadError) Error() string { return "model load failed: " + e.Wrapped.Error() }

func (e *LoadError) Unwrap() error { return e.Wrapped }

// StepError is returned by Wait when the engine failed while stepping.
type StepError struct {
	Index   int
	Wrapped error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("engine step failed at index %d: %v", e.Index, e.Wrapped)
}

func (e *StepError) Unwrap() error { return e.Wrapped }

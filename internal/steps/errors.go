package steps

import (
	"errors"
	"fmt"
)

var (
	// ErrUndefinedStep is returned when no binding matches a phrase.
	ErrUndefinedStep = errors.New("undefined step")
	// ErrNoExpectation is returned when a comparison runs before setup.
	ErrNoExpectation = errors.New("expected response not loaded")
	// ErrNoResponse is returned when an assertion runs before the request step.
	ErrNoResponse = errors.New("no response recorded")
)

// AssertionError reports a mismatch between expected and actual values.
type AssertionError struct {
	Field    string
	Expected any
	Actual   any
	Diff     string
}

func (e *AssertionError) Error() string {
	if e.Diff != "" {
		return fmt.Sprintf("%s mismatch (-expected +actual):\n%s", e.Field, e.Diff)
	}
	return fmt.Sprintf("%s mismatch: expected %v, actual %v", e.Field, e.Expected, e.Actual)
}

// StepError wraps the failure of one scenario step.
type StepError struct {
	Phrase string
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q: %v", e.Phrase, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

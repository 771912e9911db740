package annotate

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyInput is returned for empty or whitespace-only text. No
	// inference is attempted.
	ErrEmptyInput = errors.New("please enter some text for NER")

	ErrInferenceFailed = errors.New("inference failed")
)

// InferenceError wraps a failure of the inference capability.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("%s: %v", ErrInferenceFailed, e.Err)
}

func (e *InferenceError) Unwrap() error { return e.Err }

func (e *InferenceError) Is(target error) bool { return target == ErrInferenceFailed }

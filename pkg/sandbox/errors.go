package sandbox

import (
	"errors"
	"fmt"
	"strings"
)

// ErrBootstrap is matched by every *BootstrapError.
var ErrBootstrap = errors.New("interpreter bootstrap failed")

// BootstrapError reports that the interpreter could not be loaded.
// It is terminal: the Manager hands the same error to every later caller.
type BootstrapError struct {
	Err error
}

func (e *BootstrapError) Error() string {
	return fmt.Sprintf("%s: %v", ErrBootstrap, e.Err)
}

func (e *BootstrapError) Unwrap() error {
	return e.Err
}

// Is lets callers use errors.Is(err, ErrBootstrap).
func (e *BootstrapError) Is(target error) bool {
	return target == ErrBootstrap
}

// PythonError is an exception raised inside the interpreter.
type PythonError struct {
	// Name is the exception class, e.g. "NameError".
	Name string `json:"name"`
	// Value is str() of the exception.
	Value string `json:"value"`
	// Traceback is the formatted traceback, ending with "Name: Value".
	Traceback string `json:"traceback,omitempty"`
}

// Error renders the exception the way the kernel reports it: a
// "PythonError: " marker followed by the traceback.
func (e *PythonError) Error() string {
	tb := strings.TrimRight(e.Traceback, "\n")
	if tb == "" {
		tb = e.Summary()
	}
	return "PythonError: " + tb
}

// Summary returns the last line of the traceback, "Name: Value".
func (e *PythonError) Summary() string {
	if e.Value == "" {
		return e.Name
	}
	return e.Name + ": " + e.Value
}

package runner

import (
	"errors"
	"regexp"
	"strings"

	"github.com/mariozechner/coderunner/pkg/sandbox"
)

// Sentinel errors for error classification.
var (
	// ErrEvaluation indicates that the submitted code raised or could not
	// be evaluated.
	ErrEvaluation = errors.New("evaluation error")

	// ErrEmptyInput indicates that there was no code to run.
	ErrEmptyInput = errors.New("no code to run")

	// ErrTimeout indicates that evaluation exceeded the configured timeout.
	ErrTimeout = errors.New("execution timed out")
)

// EvaluationError wraps a failure raised while evaluating a code block.
type EvaluationError struct {
	Err error
}

func (e *EvaluationError) Error() string {
	return e.Err.Error()
}

func (e *EvaluationError) Unwrap() error {
	return e.Err
}

// Is reports whether this error matches the target.
// EvaluationError matches ErrEvaluation to allow sentinel-style error checking.
func (e *EvaluationError) Is(target error) bool {
	return target == ErrEvaluation
}

const pythonErrorMarker = "PythonError: "

// exceptionPattern finds "SomeError:"-style exception names, e.g. the last
// line of a traceback.
var exceptionPattern = regexp.MustCompile(`\b[A-Za-z_][A-Za-z0-9_.]*(?:Error|Exception|Warning|Interrupt|Exit|Iteration)(?::|$)`)

// Message extracts the part of err worth showing to a user.
//
// A *sandbox.PythonError yields "Name: Value". A message carrying the
// "PythonError: " marker is stripped of the marker and the traceback,
// keeping the final exception line. Anything else is returned verbatim.
func Message(err error) string {
	var pyErr *sandbox.PythonError
	if errors.As(err, &pyErr) {
		return pyErr.Summary()
	}

	msg := err.Error()
	i := strings.Index(msg, pythonErrorMarker)
	if i < 0 {
		return msg
	}
	payload := strings.TrimSpace(msg[i+len(pythonErrorMarker):])
	if locs := exceptionPattern.FindAllStringIndex(payload, -1); len(locs) > 0 {
		last := locs[len(locs)-1]
		return strings.TrimSpace(firstLine(payload[last[0]:]))
	}
	return firstLine(payload)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

package runner

import "strings"

// Fixed user-facing messages.
const (
	LoadingMessage    = "Loading Python environment (this may take a moment)..."
	EmptyInputMessage = "⚠️ No code to run"
	NoOutputMessage   = "✅ Code executed successfully (no output)"
	ErrorPrefix       = "❌ Error: "
	WarningPrefix     = "⚠️ "
)

// Result is what a run renders into its output sink.
type Result struct {
	Text    string `json:"text"`
	IsError bool   `json:"is_error"`
}

// Classify turns captured output into a Result. Stderr is appended after
// stdout and marks the result as an error.
func Classify(stdout, stderr string) Result {
	var sb strings.Builder
	sb.WriteString(stdout)
	if stderr != "" {
		if stdout != "" {
			sb.WriteString("\n")
		}
		sb.WriteString(WarningPrefix)
		sb.WriteString(stderr)
	}
	if sb.Len() == 0 {
		return Result{Text: NoOutputMessage}
	}
	return Result{Text: sb.String(), IsError: stderr != ""}
}

// ErrorResult renders err for the user.
func ErrorResult(err error) Result {
	return Result{Text: ErrorPrefix + Message(err), IsError: true}
}

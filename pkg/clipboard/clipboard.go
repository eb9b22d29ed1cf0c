// Package clipboard copies text to the system clipboard, falling back to
// an OSC52 terminal escape sequence when no clipboard tool is available.
package clipboard

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	sysclip "github.com/atotto/clipboard"
	"github.com/aymanbagabas/go-osc52/v2"
)

// Outcome is the result of a copy request.
type Outcome int

const (
	Succeeded Outcome = iota
	Failed
	NoContent
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case NoContent:
		return "no content"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// ParseOutcome is the inverse of Outcome.String.
func ParseOutcome(s string) (Outcome, error) {
	for _, o := range []Outcome{Succeeded, Failed, NoContent} {
		if o.String() == s {
			return o, nil
		}
	}
	return 0, fmt.Errorf("unknown copy outcome %q", s)
}

// Writer puts text on a clipboard.
type Writer interface {
	WriteText(text string) error
}

// WriterFunc adapts a function to Writer.
type WriterFunc func(text string) error

func (f WriterFunc) WriteText(text string) error { return f(text) }

// Copier tries a primary Writer and then a fallback.
type Copier struct {
	primary  Writer
	fallback Writer
}

// New returns a Copier. fallback may be nil.
func New(primary, fallback Writer) *Copier {
	return &Copier{primary: primary, fallback: fallback}
}

// NewSystem returns a Copier that uses the OS clipboard and falls back to
// OSC52 written to term.
func NewSystem(term io.Writer) *Copier {
	return New(System{}, NewOSC52(term))
}

// Copy copies the trimmed text. Blank text is reported as NoContent
// without touching either clipboard.
func (c *Copier) Copy(ctx context.Context, text string) Outcome {
	text = strings.TrimSpace(text)
	if text == "" {
		slog.Warn("No text to copy")
		return NoContent
	}
	if err := ctx.Err(); err != nil {
		slog.Error("Copy cancelled", "error", err)
		return Failed
	}

	err := c.primary.WriteText(text)
	if err == nil {
		return Succeeded
	}
	slog.Error("Failed to copy text", "error", err)

	if c.fallback == nil {
		return Failed
	}
	if err := c.fallback.WriteText(text); err != nil {
		slog.Error("Fallback copy also failed", "error", err)
		return Failed
	}
	return Succeeded
}

// System writes to the OS clipboard (pbcopy, xclip, xsel, wl-copy, clip.exe).
type System struct{}

func (System) WriteText(text string) error {
	if sysclip.Unsupported {
		return fmt.Errorf("system clipboard unavailable")
	}
	return sysclip.WriteAll(text)
}

// OSC52 asks the terminal to set its clipboard via an OSC52 escape sequence.
type OSC52 struct {
	Out io.Writer
	// Screen wraps the sequence for GNU screen.
	Screen bool
	// Tmux wraps the sequence in a tmux passthrough.
	Tmux bool
}

// NewOSC52 returns an OSC52 writer for out, detecting tmux and screen
// from the environment.
func NewOSC52(out io.Writer) *OSC52 {
	term := strings.ToLower(os.Getenv("TERM"))
	return &OSC52{
		Out:    out,
		Tmux:   os.Getenv("TMUX") != "",
		Screen: strings.Contains(term, "screen"),
	}
}

func (o *OSC52) WriteText(text string) error {
	if o.Out == nil {
		return fmt.Errorf("no terminal to write to")
	}
	seq := osc52.New(text)
	switch {
	case o.Tmux:
		seq = seq.Tmux()
	case o.Screen:
		seq = seq.Screen()
	}
	_, err := seq.WriteTo(o.Out)
	return err
}

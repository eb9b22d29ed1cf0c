// Package capturetest provides an in-memory interpreter for tests of code
// built on package capture.
//
// The Runtime understands the commands rendered by Dialect plus a tiny
// line-oriented language for user code:
//
//	print <text>    writes "<text>\n" to stdout
//	warn <text>     writes "<text>" to stderr
//	raise <N>: <V>  raises a *sandbox.PythonError{Name: N, Value: V}
//	fail <text>     returns a plain error with message <text>
//	loop            blocks, ignoring ctx, until Interrupt is called
//
// Any other line is accepted and does nothing.
package capturetest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/mariozechner/coderunner/pkg/capture"
	"github.com/mariozechner/coderunner/pkg/sandbox"
)

// Dialect is the capture.Dialect understood by Runtime.
type Dialect struct{}

func (Dialect) Redirect(id string) string { return "capture.redirect " + id }
func (Dialect) Restore(id string) string  { return "capture.restore " + id }
func (Dialect) Read(id string, s capture.Stream) string {
	return "capture.read " + s.String() + " " + id
}
func (Dialect) Discard(id string) string { return "capture.discard " + id }

type saved struct {
	stdout, stderr io.Writer
	outBuf, errBuf *strings.Builder
}

// Runtime is a fake sandbox.Runtime with global, swappable output streams.
type Runtime struct {
	mu sync.Mutex

	// Console receives output written while no capture is active.
	Console strings.Builder

	stdout, stderr io.Writer
	sessions       map[string]*saved
	user           []string
	active         int
	maxActive      int

	// FailOn makes Exec or Eval return an error for any command with this prefix.
	FailOn string
	// Hook, if set, runs before each user-code Exec.
	Hook func(code string)

	interrupts  chan struct{}
	interrupted int
	inUser      bool
}

// New returns a Runtime whose streams both point at Console.
func New() *Runtime {
	r := &Runtime{sessions: map[string]*saved{}, interrupts: make(chan struct{}, 1)}
	r.stdout = &r.Console
	r.stderr = &r.Console
	return r
}

var (
	_ sandbox.Runtime     = (*Runtime)(nil)
	_ sandbox.Interrupter = (*Runtime)(nil)
)

// Interrupt stops the user code being executed. It is dropped while no
// user code is in progress.
func (r *Runtime) Interrupt(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.interrupted++
	if r.inUser {
		select {
		case r.interrupts <- struct{}{}:
		default:
		}
	}
	return nil
}

// Interrupts returns how many times Interrupt was called.
func (r *Runtime) Interrupts() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.interrupted
}

// Streams returns the current stdout and stderr targets.
func (r *Runtime) Streams() (stdout, stderr io.Writer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stdout, r.stderr
}

// UserExecs returns the user code (non-protocol commands) passed to Exec.
func (r *Runtime) UserExecs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.user...)
}

// Active returns the number of sessions currently redirected.
func (r *Runtime) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// MaxActive returns the highest number of simultaneously redirected sessions.
func (r *Runtime) MaxActive() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.maxActive
}

// Leftover returns the number of sessions whose buffers were never discarded.
func (r *Runtime) Leftover() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Runtime) Close() error { return nil }

func (r *Runtime) Exec(ctx context.Context, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.FailOn != "" && strings.HasPrefix(code, r.FailOn) {
		return fmt.Errorf("exec failed: %s", code)
	}

	if cmd, id, ok := protocol(code); ok {
		r.mu.Lock()
		defer r.mu.Unlock()
		switch cmd {
		case "redirect":
			s := &saved{stdout: r.stdout, stderr: r.stderr, outBuf: &strings.Builder{}, errBuf: &strings.Builder{}}
			r.sessions[id] = s
			r.stdout, r.stderr = s.outBuf, s.errBuf
			r.active++
			if r.active > r.maxActive {
				r.maxActive = r.active
			}
		case "restore":
			s, ok := r.sessions[id]
			if !ok {
				return fmt.Errorf("NameError: unknown capture %s", id)
			}
			r.stdout, r.stderr = s.stdout, s.stderr
			r.active--
		case "discard":
			delete(r.sessions, id)
		default:
			return fmt.Errorf("SyntaxError: %s", code)
		}
		return nil
	}

	r.mu.Lock()
	r.inUser = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.inUser = false
		select {
		case <-r.interrupts:
		default:
		}
		r.mu.Unlock()
	}()

	if r.Hook != nil {
		r.Hook(code)
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	if strings.TrimSpace(code) == "loop" {
		r.mu.Lock()
		r.user = append(r.user, code)
		r.mu.Unlock()
		<-r.interrupts
		return &sandbox.PythonError{Name: "KeyboardInterrupt", Traceback: "Traceback (most recent call last):\nKeyboardInterrupt\n"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.user = append(r.user, code)
	for _, line := range strings.Split(code, "\n") {
		verb, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
		switch verb {
		case "print":
			io.WriteString(r.stdout, arg+"\n")
		case "warn":
			io.WriteString(r.stderr, arg)
		case "raise":
			name, value, _ := strings.Cut(arg, ": ")
			return &sandbox.PythonError{
				Name:      name,
				Value:     value,
				Traceback: "Traceback (most recent call last):\n  File \"<cell>\", line 1, in <module>\n" + arg + "\n",
			}
		case "fail":
			return errors.New(arg)
		}
	}
	return nil
}

func (r *Runtime) Eval(ctx context.Context, expr string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if r.FailOn != "" && strings.HasPrefix(expr, r.FailOn) {
		return "", fmt.Errorf("eval failed: %s", expr)
	}
	rest, ok := strings.CutPrefix(expr, "capture.read ")
	if !ok {
		return "", fmt.Errorf("SyntaxError: %s", expr)
	}
	stream, id, _ := strings.Cut(rest, " ")

	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return "", fmt.Errorf("NameError: unknown capture %s", id)
	}
	if stream == capture.Stderr.String() {
		return s.errBuf.String(), nil
	}
	return s.outBuf.String(), nil
}

func protocol(code string) (cmd, id string, ok bool) {
	rest, ok := strings.CutPrefix(code, "capture.")
	if !ok {
		return "", "", false
	}
	cmd, id, _ = strings.Cut(rest, " ")
	return cmd, id, true
}

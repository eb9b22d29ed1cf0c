// Package runner drives one run of a code block: it waits for the
// interpreter, intercepts special commands, captures output around the
// evaluation, classifies the outcome and renders it.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mariozechner/coderunner/pkg/capture"
	"github.com/mariozechner/coderunner/pkg/sandbox"
)

// Lifecycle gives access to the shared interpreter.
type Lifecycle interface {
	Ready() bool
	EnsureReady(ctx context.Context) (sandbox.Runtime, error)
}

// Sink is the output region a run writes to.
type Sink interface {
	// Reset makes the region visible and clears error styling.
	Reset()
	// Status shows an interim message while the run waits.
	Status(text string)
	// Render shows the final result. It is called exactly once per run.
	Render(res Result)
}

// Control is the button that triggered a run.
type Control interface {
	// Begin shows the busy state.
	Begin()
	// Reset returns to the idle state.
	Reset()
}

// Request is one run of a code block.
type Request struct {
	ID      string
	Source  string
	Sink    Sink
	Control Control
}

// NewRequest creates a Request with a fresh ID.
func NewRequest(source string, sink Sink, control Control) Request {
	return Request{
		ID:      uuid.New().String(),
		Source:  source,
		Sink:    sink,
		Control: control,
	}
}

// Options tune a Runner.
type Options struct {
	// Intercepts are consulted in order before evaluation.
	// Defaults to DefaultIntercepts(PythonVersion).
	Intercepts []Intercept
	// PythonVersion is shown by the version intercept. Defaults to "3.11.2".
	PythonVersion string
	// Timeout bounds a single evaluation. Zero means no timeout. A runtime
	// that is a sandbox.Interrupter is interrupted when it expires.
	Timeout time.Duration
}

// interruptTimeout bounds a single interrupt request.
const interruptTimeout = 5 * time.Second

// Runner coordinates runs against a shared interpreter.
type Runner struct {
	lifecycle  Lifecycle
	capturer   *capture.Capturer
	intercepts []Intercept
	timeout    time.Duration
}

// New creates a Runner.
func New(lifecycle Lifecycle, capturer *capture.Capturer, opts Options) *Runner {
	if opts.PythonVersion == "" {
		opts.PythonVersion = "3.11.2"
	}
	if opts.Intercepts == nil {
		opts.Intercepts = DefaultIntercepts(opts.PythonVersion)
	}
	return &Runner{
		lifecycle:  lifecycle,
		capturer:   capturer,
		intercepts: opts.Intercepts,
		timeout:    opts.Timeout,
	}
}

// Run executes req and returns what it rendered. Every failure is rendered
// into req.Sink; none is returned. req.Control is reset to idle on every path.
func (r *Runner) Run(ctx context.Context, req Request) (res Result) {
	log := slog.With("requestID", req.ID)

	req.Control.Begin()
	defer req.Control.Reset()

	rendered := false
	defer func() {
		if p := recover(); p != nil {
			log.Error("Run panicked", "panic", p)
			res = ErrorResult(fmt.Errorf("internal error: %v", p))
			if !rendered {
				safeRender(req.Sink, res, log)
			}
		}
	}()

	req.Sink.Reset()

	res = r.execute(ctx, req, log)
	rendered = true
	req.Sink.Render(res)
	return res
}

// safeRender renders res and swallows a panic from the sink.
func safeRender(sink Sink, res Result, log *slog.Logger) {
	defer func() {
		if p := recover(); p != nil {
			log.Error("Rendering error result panicked", "panic", p)
		}
	}()
	sink.Render(res)
}

func (r *Runner) execute(ctx context.Context, req Request, log *slog.Logger) Result {
	if !r.lifecycle.Ready() {
		req.Sink.Status(LoadingMessage)
	}
	rt, err := r.lifecycle.EnsureReady(ctx)
	if err != nil {
		log.Error("Interpreter not available", "error", err)
		return ErrorResult(err)
	}

	source := strings.TrimSpace(req.Source)
	if source == "" {
		log.Warn("Run requested without code", "error", ErrEmptyInput)
		return Result{Text: EmptyInputMessage, IsError: true}
	}

	if i, ok := Lookup(r.intercepts, source); ok {
		log.Info("Intercepted special command", "intercept", i.Name)
		return Result{Text: i.Response}
	}

	evalCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		evalCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := time.Now()
	out, err := capture.Run(evalCtx, r.capturer, rt, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, r.exec(ctx, rt, source, log)
	})
	duration := time.Since(start)

	if err != nil {
		if r.timeout > 0 && errors.Is(evalCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %v", ErrTimeout, r.timeout)
		}
		err = &EvaluationError{Err: err}
		log.Error("Code execution error", "error", err, "duration", duration)
		return ErrorResult(err)
	}

	log.Info("Code executed", "duration", duration, "stdout", len(out.Stdout), "stderr", len(out.Stderr))
	return Classify(out.Stdout, out.Stderr)
}

// exec runs source and interrupts rt if ctx ends while it runs.
func (r *Runner) exec(ctx context.Context, rt sandbox.Runtime, source string, log *slog.Logger) error {
	var once sync.Once
	interrupt := func() {
		once.Do(func() { r.interrupt(ctx, rt, log) })
	}
	stop := context.AfterFunc(ctx, interrupt)

	err := rt.Exec(ctx, source)
	if ctx.Err() != nil {
		interrupt()
	} else {
		stop()
	}
	return err
}

func (r *Runner) interrupt(ctx context.Context, rt sandbox.Runtime, log *slog.Logger) {
	in, ok := rt.(sandbox.Interrupter)
	if !ok {
		log.Warn("Runtime cannot be interrupted; code may still be running")
		return
	}
	cause := context.Cause(ctx)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), interruptTimeout)
	defer cancel()
	if err := in.Interrupt(ctx); err != nil {
		log.Error("Failed to interrupt running code", "error", err)
		return
	}
	log.Info("Interrupted running code", "cause", cause)
}

package capture_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mariozechner/coderunner/pkg/capture"
	"github.com/mariozechner/coderunner/pkg/capture/capturetest"
	"github.com/mariozechner/coderunner/pkg/sandbox"
)

func exec(rt capture.Runtime, code string) func(ctx context.Context) (struct{}, error) {
	return func(ctx context.Context) (struct{}, error) {
		return struct{}{}, rt.Exec(ctx, code)
	}
}

func TestRun_CapturesBothStreams(t *testing.T) {
	rt := capturetest.New()
	c := capture.New(capturetest.Dialect{})

	out, err := capture.Run(context.Background(), c, rt, exec(rt, "print hi\nwarn careful"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Stdout != "hi\n" {
		t.Errorf("Stdout = %q, want %q", out.Stdout, "hi\n")
	}
	if out.Stderr != "careful" {
		t.Errorf("Stderr = %q, want %q", out.Stderr, "careful")
	}
	if rt.Console.Len() != 0 {
		t.Errorf("output leaked to console: %q", rt.Console.String())
	}
	if rt.Leftover() != 0 {
		t.Errorf("capture buffers were not discarded")
	}
}

func TestRun_ReturnsResult(t *testing.T) {
	rt := capturetest.New()
	c := capture.New(capturetest.Dialect{})

	out, err := capture.Run(context.Background(), c, rt, func(ctx context.Context) (int, error) {
		return 7, rt.Exec(ctx, "print seven")
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.Result != 7 {
		t.Errorf("Result = %d, want 7", out.Result)
	}
}

func TestRun_StreamSymmetry(t *testing.T) {
	tests := []struct {
		name string
		eval func(rt *capturetest.Runtime) func(context.Context) (struct{}, error)
	}{
		{
			name: "success",
			eval: func(rt *capturetest.Runtime) func(context.Context) (struct{}, error) { return exec(rt, "print ok") },
		},
		{
			name: "raise",
			eval: func(rt *capturetest.Runtime) func(context.Context) (struct{}, error) {
				return exec(rt, "print partial\nraise ValueError: bad")
			},
		},
		{
			name: "plain error",
			eval: func(rt *capturetest.Runtime) func(context.Context) (struct{}, error) { return exec(rt, "fail transport") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := capturetest.New()
			c := capture.New(capturetest.Dialect{})
			beforeOut, beforeErr := rt.Streams()

			capture.Run(context.Background(), c, rt, tt.eval(rt))

			afterOut, afterErr := rt.Streams()
			if afterOut != beforeOut || afterErr != beforeErr {
				t.Errorf("streams not restored")
			}
			if rt.Active() != 0 {
				t.Errorf("Active() = %d after Run", rt.Active())
			}
		})
	}
}

func TestRun_PropagatesEvaluationError(t *testing.T) {
	rt := capturetest.New()
	c := capture.New(capturetest.Dialect{})

	_, err := capture.Run(context.Background(), c, rt, exec(rt, "raise NameError: x"))
	var pyErr *sandbox.PythonError
	if !errors.As(err, &pyErr) {
		t.Fatalf("expected *sandbox.PythonError, got %v", err)
	}
	if pyErr.Summary() != "NameError: x" {
		t.Errorf("Summary() = %q", pyErr.Summary())
	}
}

func TestRun_RestoresOnPanic(t *testing.T) {
	rt := capturetest.New()
	c := capture.New(capturetest.Dialect{})
	beforeOut, _ := rt.Streams()

	func() {
		defer func() {
			if recover() == nil {
				t.Errorf("expected panic to propagate")
			}
		}()
		capture.Run(context.Background(), c, rt, func(ctx context.Context) (struct{}, error) {
			panic("evaluate exploded")
		})
	}()

	if afterOut, _ := rt.Streams(); afterOut != beforeOut {
		t.Errorf("streams not restored after panic")
	}
	// The gate must have been released.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Acquire(ctx); err != nil {
		t.Fatalf("gate still held after panic: %v", err)
	}
	c.Release()
}

func TestRun_RestoresAfterCancellation(t *testing.T) {
	rt := capturetest.New()
	c := capture.New(capturetest.Dialect{})
	beforeOut, _ := rt.Streams()

	ctx, cancel := context.WithCancel(context.Background())
	_, err := capture.Run(ctx, c, rt, func(ctx context.Context) (struct{}, error) {
		cancel()
		return struct{}{}, ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if afterOut, _ := rt.Streams(); afterOut != beforeOut {
		t.Errorf("streams not restored after cancellation")
	}
}

func TestRun_RedirectFailureSkipsEvaluate(t *testing.T) {
	rt := capturetest.New()
	rt.FailOn = "capture.redirect"
	c := capture.New(capturetest.Dialect{})

	called := false
	_, err := capture.Run(context.Background(), c, rt, func(ctx context.Context) (struct{}, error) {
		called = true
		return struct{}{}, nil
	})
	if err == nil || !strings.Contains(err.Error(), "redirecting output") {
		t.Fatalf("expected redirect error, got %v", err)
	}
	if called {
		t.Errorf("evaluate ran although redirection failed")
	}
}

func TestRun_RestoreFailure(t *testing.T) {
	rt := capturetest.New()
	rt.FailOn = "capture.restore"
	c := capture.New(capturetest.Dialect{})

	_, err := capture.Run(context.Background(), c, rt, exec(rt, "print hi"))
	if err == nil || !strings.Contains(err.Error(), "restoring output") {
		t.Fatalf("expected restore error, got %v", err)
	}
}

func TestRun_SerializesSessions(t *testing.T) {
	rt := capturetest.New()
	c := capture.New(capturetest.Dialect{})

	const n = 8
	var wg sync.WaitGroup
	outs := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := capture.Run(context.Background(), c, rt, func(ctx context.Context) (struct{}, error) {
				time.Sleep(5 * time.Millisecond)
				return struct{}{}, rt.Exec(ctx, "print run")
			})
			if err != nil {
				t.Errorf("Run %d: %v", i, err)
				return
			}
			outs[i] = out.Stdout
		}(i)
	}
	wg.Wait()

	if got := rt.MaxActive(); got != 1 {
		t.Errorf("MaxActive() = %d, want 1", got)
	}
	for i, out := range outs {
		if out != "run\n" {
			t.Errorf("Run %d captured %q, want %q", i, out, "run\n")
		}
	}
}

func TestCapturer_AcquireHonorsContext(t *testing.T) {
	c := capture.New(capturetest.Dialect{})
	if err := c.Acquire(context.Background()); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer c.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := c.Acquire(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected DeadlineExceeded, got %v", err)
	}
}

func TestPythonDialect(t *testing.T) {
	d := capture.Python{}
	id := "abc123"

	redirect := d.Redirect(id)
	for _, want := range []string{
		"import sys as _cr_sys",
		"_cr_capture_abc123 = (_cr_sys.stdout, _cr_sys.stderr, _cr_io.StringIO(), _cr_io.StringIO())",
		"_cr_sys.stdout, _cr_sys.stderr = _cr_capture_abc123[2], _cr_capture_abc123[3]",
	} {
		if !strings.Contains(redirect, want) {
			t.Errorf("Redirect missing %q:\n%s", want, redirect)
		}
	}
	if got := d.Restore(id); !strings.Contains(got, "_cr_sys.stdout, _cr_sys.stderr = _cr_capture_abc123[0], _cr_capture_abc123[1]") {
		t.Errorf("Restore = %q", got)
	}
	if got, want := d.Read(id, capture.Stdout), "_cr_capture_abc123[2].getvalue()"; got != want {
		t.Errorf("Read(stdout) = %q, want %q", got, want)
	}
	if got, want := d.Read(id, capture.Stderr), "_cr_capture_abc123[3].getvalue()"; got != want {
		t.Errorf("Read(stderr) = %q, want %q", got, want)
	}
	if got, want := d.Discard(id), "del _cr_capture_abc123\n"; got != want {
		t.Errorf("Discard = %q, want %q", got, want)
	}
}

// Package capture redirects the interpreter's stdout and stderr into
// buffers for the duration of one evaluation.
//
// The interpreter's streams are global, so a Capturer admits one session
// at a time; callers queue on a single-slot gate until the slot frees up or
// their context ends.
package capture

import (
	"context"
	"fmt"
	"log/slog"
)

// Output is what one captured evaluation produced.
type Output[T any] struct {
	Stdout string
	Stderr string
	Result T
}

// Capturer serializes capture sessions against one interpreter.
type Capturer struct {
	dialect Dialect
	gate    chan struct{}
}

// New returns a Capturer speaking dialect d.
func New(d Dialect) *Capturer {
	return &Capturer{
		dialect: d,
		gate:    make(chan struct{}, 1),
	}
}

// Acquire blocks until no other session is active or ctx is done.
func (c *Capturer) Acquire(ctx context.Context) error {
	select {
	case c.gate <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees the slot taken by Acquire.
func (c *Capturer) Release() {
	<-c.gate
}

// Run redirects rt's streams, calls evaluate, restores the streams and
// then reads back stdout followed by stderr.
//
// Restoration happens exactly once whether evaluate returns normally,
// returns an error or panics, and it is not subject to ctx cancellation.
// An error from evaluate is returned as is and no output is read.
func Run[T any](ctx context.Context, c *Capturer, rt Runtime, evaluate func(ctx context.Context) (T, error)) (Output[T], error) {
	var out Output[T]

	if err := c.Acquire(ctx); err != nil {
		return out, err
	}
	defer c.Release()

	sess, err := Begin(ctx, rt, c.dialect)
	if err != nil {
		return out, fmt.Errorf("redirecting output: %w", err)
	}

	cleanupCtx := context.WithoutCancel(ctx)
	defer func() {
		if err := sess.Discard(cleanupCtx); err != nil {
			slog.Warn("Failed to discard capture buffers", "session", sess.ID(), "error", err)
		}
	}()

	var (
		result     T
		evalErr    error
		restoreErr error
	)
	func() {
		defer func() {
			restoreErr = sess.Restore(cleanupCtx)
		}()
		result, evalErr = evaluate(ctx)
	}()

	if restoreErr != nil {
		slog.Error("Failed to restore output streams", "session", sess.ID(), "error", restoreErr)
	}
	if evalErr != nil {
		return out, evalErr
	}
	if restoreErr != nil {
		return out, fmt.Errorf("restoring output: %w", restoreErr)
	}

	out.Result = result
	if out.Stdout, err = sess.Read(cleanupCtx, Stdout); err != nil {
		return out, err
	}
	if out.Stderr, err = sess.Read(cleanupCtx, Stderr); err != nil {
		return out, err
	}
	return out, nil
}

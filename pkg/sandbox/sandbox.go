package sandbox

import "context"

// Runtime is the embedded Python interpreter that code blocks run in.
// A Runtime keeps global state between calls: variables defined by one
// Exec are visible to the next, and so are sys.stdout and sys.stderr.
type Runtime interface {
	// Exec runs a block of statements. A Python exception raised by the
	// block is returned as a *PythonError.
	Exec(ctx context.Context, code string) error

	// Eval evaluates a single expression and returns str() of its value.
	Eval(ctx context.Context, expr string) (string, error)

	// Close releases the interpreter (e.g. removes its container).
	Close() error
}

// Loader performs the expensive one-time bootstrap of a Runtime.
type Loader func(ctx context.Context) (Runtime, error)

// Interrupter is implemented by runtimes that can abort the code they are
// running. The interrupted Exec returns a KeyboardInterrupt *PythonError.
// Interrupting an idle runtime has no effect.
type Interrupter interface {
	Interrupt(ctx context.Context) error
}

package capture

import "fmt"

// Stream names one of the interpreter's two output streams.
type Stream int

const (
	Stdout Stream = iota
	Stderr
)

func (s Stream) String() string {
	if s == Stderr {
		return "stderr"
	}
	return "stdout"
}

// Dialect renders the interpreter snippets a Session sends. Every snippet
// is keyed by the session id so that two sessions never share buffers.
type Dialect interface {
	// Redirect saves the current streams and points them at fresh buffers.
	Redirect(id string) string
	// Restore puts the saved streams back.
	Restore(id string) string
	// Read is an expression evaluating to the buffered text of s.
	Read(id string, s Stream) string
	// Discard forgets the saved streams and buffers.
	Discard(id string) string
}

// Python is the Dialect for a CPython interpreter.
type Python struct{}

func (Python) Redirect(id string) string {
	return fmt.Sprintf(`import sys as _cr_sys, io as _cr_io
%[1]s = (_cr_sys.stdout, _cr_sys.stderr, _cr_io.StringIO(), _cr_io.StringIO())
_cr_sys.stdout, _cr_sys.stderr = %[1]s[2], %[1]s[3]
`, name(id))
}

func (Python) Restore(id string) string {
	return fmt.Sprintf(`import sys as _cr_sys
_cr_sys.stdout, _cr_sys.stderr = %[1]s[0], %[1]s[1]
`, name(id))
}

func (Python) Read(id string, s Stream) string {
	slot := 2
	if s == Stderr {
		slot = 3
	}
	return fmt.Sprintf("%s[%d].getvalue()", name(id), slot)
}

func (Python) Discard(id string) string {
	return fmt.Sprintf("del %s\n", name(id))
}

func name(id string) string {
	return "_cr_capture_" + id
}

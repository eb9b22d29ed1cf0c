package capture

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Runtime is the part of the interpreter a Session needs.
type Runtime interface {
	Exec(ctx context.Context, code string) error
	Eval(ctx context.Context, expr string) (string, error)
}

// Session is one redirection of the interpreter's output streams.
// It is created by Begin and must be restored by its owner.
type Session struct {
	id       string
	rt       Runtime
	dialect  Dialect
	restored bool
}

// Begin redirects rt's streams into fresh session-local buffers.
func Begin(ctx context.Context, rt Runtime, d Dialect) (*Session, error) {
	s := &Session{
		id:      strings.ReplaceAll(uuid.New().String(), "-", ""),
		rt:      rt,
		dialect: d,
	}
	if err := rt.Exec(ctx, d.Redirect(s.id)); err != nil {
		return nil, err
	}
	return s, nil
}

// ID returns the session id used to key the interpreter-side buffers.
func (s *Session) ID() string {
	return s.id
}

// Restore puts the original streams back. Only the first call talks to the
// interpreter; later calls are no-ops.
func (s *Session) Restore(ctx context.Context) error {
	if s.restored {
		return nil
	}
	s.restored = true
	return s.rt.Exec(ctx, s.dialect.Restore(s.id))
}

// Read returns everything written to stream s during the session.
func (s *Session) Read(ctx context.Context, stream Stream) (string, error) {
	out, err := s.rt.Eval(ctx, s.dialect.Read(s.id, stream))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", stream, err)
	}
	return out, nil
}

// Discard drops the interpreter-side buffers.
func (s *Session) Discard(ctx context.Context) error {
	return s.rt.Exec(ctx, s.dialect.Discard(s.id))
}

// Package ui holds the presentation state of run and copy controls and of
// the output region under each code block.
package ui

import (
	"fmt"
	"sync"
	"time"

	"github.com/mariozechner/coderunner/pkg/clipboard"
)

// FlashDuration is how long a transient control state stays up.
const FlashDuration = 2 * time.Second

// ControlState is what a control currently shows.
type ControlState int

const (
	Idle ControlState = iota
	Running
	Copied
	CopyFailed
)

func (s ControlState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Copied:
		return "copied"
	case CopyFailed:
		return "copy-failed"
	default:
		return fmt.Sprintf("ControlState(%d)", int(s))
	}
}

// Kind selects the label set of a Button.
type Kind int

const (
	RunKind Kind = iota
	CopyKind
)

// Token identifies one transient state. Expiring a stale token is a no-op.
type Token uint64

// Button is a run or copy control. It is safe for concurrent use.
type Button struct {
	mu       sync.Mutex
	kind     Kind
	state    ControlState
	token    Token
	onChange func(ControlState, string)
}

// NewRunButton returns an idle run control.
func NewRunButton() *Button {
	return &Button{kind: RunKind}
}

// NewCopyButton returns an idle copy control.
func NewCopyButton() *Button {
	return &Button{kind: CopyKind}
}

// OnChange registers fn to be called with the new state and label after
// every transition.
func (b *Button) OnChange(fn func(state ControlState, label string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onChange = fn
}

func (b *Button) State() ControlState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Busy reports whether a run is in flight.
func (b *Button) Busy() bool {
	return b.State() == Running
}

// Label returns the text the control shows.
func (b *Button) Label() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return label(b.kind, b.state)
}

// Begin shows the busy state. It does nothing if the control is already
// busy.
func (b *Button) Begin() {
	b.TryBegin()
}

// TryBegin shows the busy state and reports whether the control was idle
// or flashing. Check and transition are atomic.
func (b *Button) TryBegin() bool {
	b.mu.Lock()
	if b.state == Running {
		b.mu.Unlock()
		return false
	}
	b.setLocked(Running)
	fn, lbl := b.onChange, label(b.kind, Running)
	b.mu.Unlock()

	if fn != nil {
		fn(Running, lbl)
	}
	return true
}

// Reset returns to Idle and cancels any pending flash.
func (b *Button) Reset() {
	b.set(Idle)
}

// Flash shows a transient state until Expire is called with the returned
// token. A later transition invalidates the token.
func (b *Button) Flash(state ControlState) Token {
	return b.set(state)
}

// Expire reverts to Idle if tok is still the current transition.
func (b *Button) Expire(tok Token) bool {
	b.mu.Lock()
	if tok != b.token || b.state == Idle {
		b.mu.Unlock()
		return false
	}
	b.setLocked(Idle)
	fn, lbl := b.onChange, label(b.kind, Idle)
	b.mu.Unlock()

	if fn != nil {
		fn(Idle, lbl)
	}
	return true
}

// Report shows copy feedback for o. NoContent leaves the control alone.
func (b *Button) Report(o clipboard.Outcome) (Token, bool) {
	switch o {
	case clipboard.Succeeded:
		return b.Flash(Copied), true
	case clipboard.Failed:
		return b.Flash(CopyFailed), true
	default:
		return 0, false
	}
}

// ExpireAfter calls Expire(tok) after d. It is for callers without their
// own event loop.
func (b *Button) ExpireAfter(tok Token, d time.Duration) {
	time.AfterFunc(d, func() { b.Expire(tok) })
}

func (b *Button) set(state ControlState) Token {
	b.mu.Lock()
	tok := b.setLocked(state)
	fn, lbl := b.onChange, label(b.kind, state)
	b.mu.Unlock()

	if fn != nil {
		fn(state, lbl)
	}
	return tok
}

func (b *Button) setLocked(state ControlState) Token {
	b.state = state
	b.token++
	return b.token
}

func label(kind Kind, state ControlState) string {
	if kind == CopyKind {
		switch state {
		case Copied:
			return "Copied!"
		case CopyFailed:
			return "Copy Failed"
		default:
			return "Copy"
		}
	}
	switch state {
	case Running:
		return "Running"
	default:
		return "Run"
	}
}

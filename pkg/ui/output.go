package ui

import (
	"sync"

	"github.com/mariozechner/coderunner/pkg/runner"
)

// Output is the region under a code block. It implements runner.Sink.
type Output struct {
	mu      sync.Mutex
	text    string
	isError bool
	visible bool
	renders int
}

var (
	_ runner.Sink    = (*Output)(nil)
	_ runner.Control = (*Button)(nil)
)

func (o *Output) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.visible = true
	o.isError = false
}

func (o *Output) Status(text string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.text = text
}

func (o *Output) Render(res runner.Result) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.text = res.Text
	o.isError = res.IsError
	o.renders++
}

// Snapshot returns the current text, error styling and visibility.
func (o *Output) Snapshot() (text string, isError, visible bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.text, o.isError, o.visible
}

// Renders counts the final results written so far.
func (o *Output) Renders() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.renders
}

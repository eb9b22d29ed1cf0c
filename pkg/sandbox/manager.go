package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// State is the readiness of the interpreter owned by a Manager.
type State int

const (
	Uninitialized State = iota
	Loading
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Manager owns the single, lazily created interpreter of the process.
//
// The first EnsureReady (or Prefetch) starts the Loader; every concurrent
// caller joins that one load. Ready and Failed are final states.
type Manager struct {
	load  Loader
	group singleflight.Group

	mu    sync.Mutex
	state State
	rt    Runtime
	err   error
}

// NewManager creates a Manager that bootstraps its interpreter with load.
func NewManager(load Loader) *Manager {
	return &Manager{load: load}
}

// State reports the current readiness without blocking.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Ready reports whether EnsureReady would return without waiting.
func (m *Manager) Ready() bool {
	return m.State() == Ready
}

// EnsureReady returns the interpreter, loading it first if needed.
// A failed load is returned as a *BootstrapError, to this caller and to all
// later ones. Cancelling ctx stops the wait, not the load.
func (m *Manager) EnsureReady(ctx context.Context) (Runtime, error) {
	m.mu.Lock()
	switch m.state {
	case Ready:
		rt := m.rt
		m.mu.Unlock()
		return rt, nil
	case Failed:
		err := m.err
		m.mu.Unlock()
		return nil, err
	case Uninitialized:
		m.state = Loading
	}
	m.mu.Unlock()

	ch := m.group.DoChan("bootstrap", func() (any, error) {
		return m.bootstrap(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Runtime), nil
	}
}

// Prefetch starts loading the interpreter in the background.
func (m *Manager) Prefetch(ctx context.Context) {
	go func() {
		slog.Info("Prefetching interpreter")
		if _, err := m.EnsureReady(ctx); err != nil {
			slog.Error("Failed to prefetch interpreter", "error", err)
		}
	}()
}

// Close releases the interpreter if it was loaded.
func (m *Manager) Close() error {
	m.mu.Lock()
	rt := m.rt
	m.mu.Unlock()
	if rt == nil {
		return nil
	}
	return rt.Close()
}

func (m *Manager) bootstrap(ctx context.Context) (Runtime, error) {
	// A caller that observed Loading may start a second flight after the
	// first one finished; it must not load again.
	m.mu.Lock()
	switch m.state {
	case Ready:
		rt := m.rt
		m.mu.Unlock()
		return rt, nil
	case Failed:
		err := m.err
		m.mu.Unlock()
		return nil, err
	}
	m.mu.Unlock()

	rt, err := m.safeLoad(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.state = Failed
		m.err = &BootstrapError{Err: err}
		slog.Error("Failed to load interpreter", "error", err)
		return nil, m.err
	}
	m.state = Ready
	m.rt = rt
	slog.Info("Interpreter loaded successfully")
	return rt, nil
}

func (m *Manager) safeLoad(ctx context.Context) (rt Runtime, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("loader panicked: %v", p)
		}
	}()
	rt, err = m.load(ctx)
	if err == nil && rt == nil {
		err = fmt.Errorf("loader returned no interpreter")
	}
	return rt, err
}

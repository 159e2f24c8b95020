// Package breakpoints is an in-memory host breakpoint manager. Debug targets
// subscribe to it and mirror its line breakpoints to their adapters.
package breakpoints

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/ctagard/dapclient/internal/errors"
	"github.com/ctagard/dapclient/internal/target"
	"github.com/ctagard/dapclient/pkg/types"
)

// LineBreakpoint is a breakpoint on one line of a file
type LineBreakpoint struct {
	registry *Registry
	id       int

	// guarded by registry.mu
	path       string
	line       int
	enabled    bool
	registered bool
	deleted    bool
}

// ID returns the registry-assigned id
func (b *LineBreakpoint) ID() int { return b.id }

// Kind implements target.Breakpoint
func (b *LineBreakpoint) Kind() target.BreakpointKind { return target.LineBreakpointKind }

func (b *LineBreakpoint) IsEnabled() (bool, error) {
	b.registry.mu.RLock()
	defer b.registry.mu.RUnlock()
	if b.deleted {
		return false, b.deletedErr()
	}
	return b.enabled, nil
}

func (b *LineBreakpoint) IsRegistered() (bool, error) {
	b.registry.mu.RLock()
	defer b.registry.mu.RUnlock()
	if b.deleted {
		return false, b.deletedErr()
	}
	return b.registered, nil
}

func (b *LineBreakpoint) Resource() (target.Resource, error) {
	b.registry.mu.RLock()
	defer b.registry.mu.RUnlock()
	if b.deleted {
		return target.Resource{}, b.deletedErr()
	}
	return target.Resource{Name: filepath.Base(b.path), Path: b.path}, nil
}

func (b *LineBreakpoint) Line() (int, error) {
	b.registry.mu.RLock()
	defer b.registry.mu.RUnlock()
	if b.deleted {
		return 0, b.deletedErr()
	}
	return b.line, nil
}

func (b *LineBreakpoint) deletedErr() error {
	return fmt.Errorf("breakpoint %d was deleted", b.id)
}

func (b *LineBreakpoint) info() types.Breakpoint {
	return types.Breakpoint{
		ID:         b.id,
		Path:       b.path,
		Name:       filepath.Base(b.path),
		Line:       b.line,
		Enabled:    b.enabled,
		Registered: b.registered,
	}
}

// Registry holds line breakpoints and notifies subscribers of changes.
// Listeners are called synchronously, outside the registry lock.
type Registry struct {
	mu          sync.RWMutex
	nextID      int
	enabled     bool
	breakpoints []*LineBreakpoint
	listeners   []*subscription
}

// New returns an empty registry with breakpoints globally enabled
func New() *Registry {
	return &Registry{enabled: true}
}

// Add declares an enabled breakpoint at path:line
func (r *Registry) Add(path string, line int) (*LineBreakpoint, error) {
	return r.add(path, line, true)
}

// AddTransient declares a breakpoint the manager does not own, such as the
// target of a run-to-line. It is pushed regardless of enablement and is not
// returned by Breakpoints.
func (r *Registry) AddTransient(path string, line int) (*LineBreakpoint, error) {
	return r.add(path, line, false)
}

func (r *Registry) add(path string, line int, registered bool) (*LineBreakpoint, error) {
	if !filepath.IsAbs(path) {
		return nil, errors.InvalidParameter("path", path, "an absolute file path")
	}
	if line < 1 {
		return nil, errors.InvalidParameter("line", line, "a line number starting at 1")
	}

	r.mu.Lock()
	r.nextID++
	bp := &LineBreakpoint{
		registry:   r,
		id:         r.nextID,
		path:       filepath.Clean(path),
		line:       line,
		enabled:    true,
		registered: registered,
	}
	r.breakpoints = append(r.breakpoints, bp)
	listeners := r.snapshot()
	r.mu.Unlock()

	for _, l := range listeners {
		l.BreakpointAdded(bp)
	}
	return bp, nil
}

// Remove deletes a breakpoint
func (r *Registry) Remove(id int) error {
	r.mu.Lock()
	idx := r.indexOf(id)
	if idx < 0 {
		r.mu.Unlock()
		return errors.BreakpointNotFound(id)
	}
	bp := r.breakpoints[idx]
	r.breakpoints = append(r.breakpoints[:idx], r.breakpoints[idx+1:]...)
	bp.deleted = true
	listeners := r.snapshot()
	r.mu.Unlock()

	for _, l := range listeners {
		l.BreakpointRemoved(bp)
	}
	return nil
}

// SetEnabled enables or disables one breakpoint
func (r *Registry) SetEnabled(id int, enabled bool) error {
	r.mu.Lock()
	idx := r.indexOf(id)
	if idx < 0 {
		r.mu.Unlock()
		return errors.BreakpointNotFound(id)
	}
	bp := r.breakpoints[idx]
	if bp.enabled == enabled {
		r.mu.Unlock()
		return nil
	}
	bp.enabled = enabled
	listeners := r.snapshot()
	r.mu.Unlock()

	for _, l := range listeners {
		l.BreakpointChanged(bp)
	}
	return nil
}

// SetGlobalEnabled flips the global enablement toggle
func (r *Registry) SetGlobalEnabled(enabled bool) {
	r.mu.Lock()
	if r.enabled == enabled {
		r.mu.Unlock()
		return
	}
	r.enabled = enabled
	listeners := r.snapshot()
	r.mu.Unlock()

	for _, l := range listeners {
		l.EnablementChanged(enabled)
	}
}

// Enabled implements target.Registry
func (r *Registry) Enabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled
}

// Breakpoints implements target.Registry. Transient breakpoints are left out.
func (r *Registry) Breakpoints() ([]target.Breakpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]target.Breakpoint, 0, len(r.breakpoints))
	for _, bp := range r.breakpoints {
		if bp.registered {
			out = append(out, bp)
		}
	}
	return out, nil
}

// Get returns the breakpoint with id
func (r *Registry) Get(id int) (*LineBreakpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if idx := r.indexOf(id); idx >= 0 {
		return r.breakpoints[idx], nil
	}
	return nil, errors.BreakpointNotFound(id)
}

// Info returns a view of one breakpoint
func (r *Registry) Info(id int) (types.Breakpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx := r.indexOf(id)
	if idx < 0 {
		return types.Breakpoint{}, errors.BreakpointNotFound(id)
	}
	return r.breakpoints[idx].info(), nil
}

// List returns a view of every breakpoint, transient ones included
func (r *Registry) List() []types.Breakpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]types.Breakpoint, len(r.breakpoints))
	for i, bp := range r.breakpoints {
		out[i] = bp.info()
	}
	return out
}

// Subscribe implements target.Registry
func (r *Registry) Subscribe(l target.Listener) target.Subscription {
	sub := &subscription{registry: r, listener: l}
	r.mu.Lock()
	r.listeners = append(r.listeners, sub)
	r.mu.Unlock()
	return sub
}

// Subscribers returns the number of live subscriptions
func (r *Registry) Subscribers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.listeners)
}

func (r *Registry) indexOf(id int) int {
	for i, bp := range r.breakpoints {
		if bp.id == id {
			return i
		}
	}
	return -1
}

func (r *Registry) snapshot() []target.Listener {
	out := make([]target.Listener, len(r.listeners))
	for i, sub := range r.listeners {
		out[i] = sub.listener
	}
	return out
}

type subscription struct {
	registry *Registry
	listener target.Listener
	once     sync.Once
}

func (s *subscription) Close() {
	s.once.Do(func() {
		r := s.registry
		r.mu.Lock()
		defer r.mu.Unlock()
		for i, sub := range r.listeners {
			if sub == s {
				r.listeners = append(r.listeners[:i], r.listeners[i+1:]...)
				return
			}
		}
	})
}

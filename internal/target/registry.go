package target

// BreakpointKind identifies the model a host breakpoint belongs to
type BreakpointKind string

// LineBreakpointKind is the only kind a target pushes to its adapter
const LineBreakpointKind BreakpointKind = "line"

// Resource is the file a breakpoint is declared in
type Resource struct {
	Name string
	Path string
}

// Breakpoint is a host-declared breakpoint. Implementations must be
// comparable (typically pointers) since the target keys its bookkeeping on them.
// Accessors may fail, for instance when the backing marker was deleted.
type Breakpoint interface {
	Kind() BreakpointKind
	IsEnabled() (bool, error)
	// IsRegistered reports whether the host manager owns the breakpoint.
	// Unregistered breakpoints are transient and ignore enablement.
	IsRegistered() (bool, error)
	Resource() (Resource, error)
	Line() (int, error)
}

// Listener receives registry changes
type Listener interface {
	BreakpointAdded(Breakpoint)
	BreakpointRemoved(Breakpoint)
	BreakpointChanged(Breakpoint)
	EnablementChanged(enabled bool)
}

// Subscription is released when the target terminates
type Subscription interface {
	Close()
}

// Registry is the host breakpoint manager a target keeps in sync with its adapter
type Registry interface {
	// Enabled reports the global enablement toggle
	Enabled() bool
	// Breakpoints returns every declared breakpoint
	Breakpoints() ([]Breakpoint, error)
	Subscribe(Listener) Subscription
}

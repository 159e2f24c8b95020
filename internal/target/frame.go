package target

import (
	godap "github.com/google/go-dap"
)

// SourceLocation is the source a frame executes in
type SourceLocation struct {
	Name      string
	Path      string
	Reference int
}

// StackFrame is one slot of a thread's call stack. The object at a given
// depth is reused across refreshes, so its fields change in place.
type StackFrame struct {
	thread *Thread
	depth  int

	// guarded by target.mu
	id     int
	name   string
	source *SourceLocation
	line   int
}

func newStackFrame(th *Thread, depth int, f godap.StackFrame) *StackFrame {
	sf := &StackFrame{thread: th, depth: depth}
	sf.update(f)
	return sf
}

func (sf *StackFrame) update(f godap.StackFrame) {
	sf.id = f.Id
	sf.name = f.Name
	sf.line = f.Line
	sf.source = nil
	if f.Source != nil {
		sf.source = &SourceLocation{
			Name:      f.Source.Name,
			Path:      f.Source.Path,
			Reference: f.Source.SourceReference,
		}
	}
}

func (sf *StackFrame) Target() *Target { return sf.thread.target }
func (sf *StackFrame) Thread() *Thread { return sf.thread }
func (sf *StackFrame) Depth() int { return sf.depth }

func (sf *StackFrame) ID() int {
	sf.thread.target.mu.RLock()
	defer sf.thread.target.mu.RUnlock()
	return sf.id
}

func (sf *StackFrame) Name() string {
	sf.thread.target.mu.RLock()
	defer sf.thread.target.mu.RUnlock()
	return sf.name
}

// Source returns a copy of the frame's source, nil when the adapter gave none
func (sf *StackFrame) Source() *SourceLocation {
	sf.thread.target.mu.RLock()
	defer sf.thread.target.mu.RUnlock()
	if sf.source == nil {
		return nil
	}
	src := *sf.source
	return &src
}

func (sf *StackFrame) Line() int {
	sf.thread.target.mu.RLock()
	defer sf.thread.target.mu.RUnlock()
	return sf.line
}

// Variables returns one value per scope of the frame. Each call queries the adapter.
func (sf *StackFrame) Variables() ([]*Value, error) {
	t := sf.thread.target
	scopes, err := t.client.Scopes(sf.ID())
	if err != nil {
		return nil, err
	}

	values := make([]*Value, len(scopes))
	for i, scope := range scopes {
		values[i] = newValue(t, scope.Name, "", scope.VariablesReference)
	}
	return values, nil
}

package mcp

import (
	"sync"

	"github.com/ctagard/dapclient/internal/target"
	"github.com/ctagard/dapclient/pkg/types"
)

// maxRecordedEvents bounds the history reported by session_status
const maxRecordedEvents = 64

// eventRecorder keeps the most recent debug events of the current session
type eventRecorder struct {
	mu     sync.Mutex
	events []types.EventRecord
	next   int
	full   bool
}

func newEventRecorder() *eventRecorder {
	return &eventRecorder{events: make([]types.EventRecord, maxRecordedEvents)}
}

// HandleDebugEvent implements target.EventSink
func (r *eventRecorder) HandleDebugEvent(e target.Event) {
	rec := types.EventRecord{
		Kind:   e.Kind,
		Detail: e.Detail,
		Source: "target",
	}
	if th, ok := e.Source.(*target.Thread); ok {
		rec.Source = "thread"
		rec.ThreadID = th.ID()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[r.next] = rec
	r.next = (r.next + 1) % len(r.events)
	if r.next == 0 {
		r.full = true
	}
}

// snapshot returns the recorded events, oldest first
func (r *eventRecorder) snapshot() []types.EventRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.full {
		return append([]types.EventRecord{}, r.events[:r.next]...)
	}
	out := make([]types.EventRecord, 0, len(r.events))
	out = append(out, r.events[r.next:]...)
	return append(out, r.events[:r.next]...)
}

func (r *eventRecorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	clear(r.events)
	r.next = 0
	r.full = false
}

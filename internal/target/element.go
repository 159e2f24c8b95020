package target

import (
	"github.com/ctagard/dapclient/pkg/types"
)

// Element is anything that belongs to a debug target: the target itself,
// its threads, their stack frames, and values.
type Element interface {
	Target() *Target
}

// Event is a notification raised towards the host
type Event struct {
	Kind   types.EventKind
	Source Element
	Detail types.EventDetail
}

// EventSink receives target notifications. HandleDebugEvent is frequently
// invoked on the read loop and must not issue requests to the target.
type EventSink interface {
	HandleDebugEvent(Event)
}

// EventSinkFunc adapts a function to EventSink
type EventSinkFunc func(Event)

func (f EventSinkFunc) HandleDebugEvent(e Event) { f(e) }

type discardSink struct{}

func (discardSink) HandleDebugEvent(Event) {}

func stopDetail(reason string) types.EventDetail {
	switch reason {
	case "breakpoint":
		return types.DetailBreakpoint
	case "step":
		return types.DetailStepOver
	case "pause":
		return types.DetailClientRequest
	default:
		return types.DetailUnspecified
	}
}

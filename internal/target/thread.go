package target

import (
	godap "github.com/google/go-dap"
	"golang.org/x/sync/errgroup"

	"github.com/ctagard/dapclient/internal/errors"
	"github.com/ctagard/dapclient/pkg/types"
)

const (
	// MaxFrames is the number of frames requested per thread, starting at the top
	MaxFrames = 20

	frameRefreshLimit = 4
)

// Thread is a thread reported by the adapter. A thread object is kept for
// the lifetime of the target, so its identity is stable across queries.
type Thread struct {
	target *Target
	id     int

	// guarded by target.mu
	name       string
	frames     []*StackFrame
	calculated bool
}

// Threads queries the adapter for its threads, refreshes their frames, and
// returns exactly the threads of this query in adapter order.
func (t *Target) Threads() ([]*Thread, error) {
	if t.IsTerminated() {
		return nil, errors.SessionTerminated(t.name)
	}

	infos, err := t.client.Threads()
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	result := make([]*Thread, 0, len(infos))
	seen := make(map[int]bool, len(infos))
	for _, info := range infos {
		if seen[info.Id] {
			continue
		}
		seen[info.Id] = true

		th, ok := t.threads[info.Id]
		if !ok {
			th = &Thread{target: t, id: info.Id}
			t.threads[info.Id] = th
		}
		th.update(info)
		result = append(result, th)
	}
	t.mu.Unlock()

	var g errgroup.Group
	g.SetLimit(frameRefreshLimit)
	for _, th := range result {
		g.Go(func() error {
			if err := th.calculateFrames(); err != nil {
				// Running threads commonly refuse stackTrace; only a dead connection matters.
				if errors.HasCode(err, errors.CodeTransportFailed) {
					return err
				}
				t.log.Debug().Err(err).Int("thread", th.id).Msg("frame refresh failed")
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return result, nil
}

// Thread returns a known thread without querying the adapter
func (t *Target) Thread(id int) (*Thread, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	th, ok := t.threads[id]
	return th, ok
}

// update applies fresh adapter data. Callers hold target.mu.
func (th *Thread) update(info godap.Thread) {
	if info.Id != th.id {
		panic(errors.Precondition("thread %d updated with data for thread %d", th.id, info.Id))
	}
	th.name = info.Name
}

// calculateFrames fetches the top frames and reuses existing frame objects
// by position: slot i is updated in place, new slots are appended and
// surplus slots dropped.
func (th *Thread) calculateFrames() error {
	frames, err := th.target.client.StackTrace(th.id, 0, MaxFrames)
	if err != nil {
		return err
	}
	if len(frames) > MaxFrames {
		frames = frames[:MaxFrames]
	}

	th.target.mu.Lock()
	defer th.target.mu.Unlock()

	for i, f := range frames {
		if i < len(th.frames) {
			th.frames[i].update(f)
		} else {
			th.frames = append(th.frames, newStackFrame(th, i, f))
		}
	}
	clear(th.frames[len(frames):])
	th.frames = th.frames[:len(frames)]
	th.calculated = true
	return nil
}

func (th *Thread) ensureFrames() error {
	th.target.mu.RLock()
	calculated := th.calculated
	th.target.mu.RUnlock()

	if calculated {
		return nil
	}
	return th.calculateFrames()
}

// Target implements Element
func (th *Thread) Target() *Target { return th.target }

// ID returns the adapter's thread id
func (th *Thread) ID() int { return th.id }

// Name returns the name from the latest thread query
func (th *Thread) Name() string {
	th.target.mu.RLock()
	defer th.target.mu.RUnlock()
	return th.name
}

// StackFrames returns the frames from the latest refresh, refreshing first
// if none happened yet.
func (th *Thread) StackFrames() ([]*StackFrame, error) {
	if err := th.ensureFrames(); err != nil {
		return nil, err
	}

	th.target.mu.RLock()
	defer th.target.mu.RUnlock()
	return append([]*StackFrame(nil), th.frames...), nil
}

// TopStackFrame returns the innermost frame, nil if the thread has none
func (th *Thread) TopStackFrame() (*StackFrame, error) {
	if err := th.ensureFrames(); err != nil {
		return nil, err
	}

	th.target.mu.RLock()
	defer th.target.mu.RUnlock()
	if len(th.frames) == 0 {
		return nil, nil
	}
	return th.frames[0], nil
}

func (th *Thread) IsSuspended() bool { return th.target.IsSuspended() }
func (th *Thread) IsTerminated() bool { return th.target.IsTerminated() }
func (th *Thread) CanResume() bool { return th.target.CanResume() }
func (th *Thread) CanSuspend() bool { return th.target.CanSuspend() }

// Resume continues this thread and notifies the sink once the adapter
// accepted the request. The suspended state is left to the adapter's events.
func (th *Thread) Resume() error {
	if th.IsTerminated() {
		return errors.SessionTerminated(th.target.name)
	}
	if _, err := th.target.client.Continue(th.id); err != nil {
		return err
	}
	th.target.sink.HandleDebugEvent(Event{
		Kind:   types.EventResume,
		Source: th,
		Detail: types.DetailUnspecified,
	})
	return nil
}

// StepOver notifies the sink and then steps over the current line
func (th *Thread) StepOver() error {
	if th.IsTerminated() {
		return errors.SessionTerminated(th.target.name)
	}
	th.target.sink.HandleDebugEvent(Event{
		Kind:   types.EventResume,
		Source: th,
		Detail: types.DetailStepOver,
	})
	return th.target.client.Next(th.id)
}

// Suspend pauses this thread
func (th *Thread) Suspend() error {
	if th.IsTerminated() {
		return errors.SessionTerminated(th.target.name)
	}
	return th.target.client.Pause(th.id)
}

// Terminate ends the whole session
func (th *Thread) Terminate() error {
	return th.target.Terminate()
}

package target

import (
	"sort"

	godap "github.com/google/go-dap"

	"github.com/ctagard/dapclient/internal/errors"
)

// SourceKey identifies a source by value, never by handle
type SourceKey struct {
	Name string
	Path string
}

// lineSet maps a line to the host breakpoints that contribute it. A line is
// pushed while at least one contributor remains.
type lineSet map[int]map[Breakpoint]struct{}

func (s lineSet) add(line int, bp Breakpoint) {
	contributors, ok := s[line]
	if !ok {
		contributors = make(map[Breakpoint]struct{})
		s[line] = contributors
	}
	contributors[bp] = struct{}{}
}

func (s lineSet) remove(line int, bp Breakpoint) bool {
	contributors, ok := s[line]
	if !ok {
		return false
	}
	if _, ok := contributors[bp]; !ok {
		return false
	}
	delete(contributors, bp)
	if len(contributors) == 0 {
		delete(s, line)
	}
	return true
}

func (s lineSet) lines() []int {
	lines := make([]int, 0, len(s))
	for line := range s {
		lines = append(lines, line)
	}
	sort.Ints(lines)
	return lines
}

// reconciler receives registry callbacks on behalf of a target
type reconciler struct {
	t *Target
}

func (r reconciler) BreakpointAdded(bp Breakpoint) { r.t.breakpointAdded(bp) }
func (r reconciler) BreakpointRemoved(bp Breakpoint) { r.t.breakpointRemoved(bp) }
func (r reconciler) BreakpointChanged(bp Breakpoint) { r.t.breakpointChanged(bp) }
func (r reconciler) EnablementChanged(enabled bool) { r.t.enablementChanged(enabled) }

// Breakpoints returns the lines currently tracked per source
func (t *Target) Breakpoints() map[SourceKey][]int {
	t.bpMu.Lock()
	defer t.bpMu.Unlock()

	out := make(map[SourceKey][]int, len(t.tracked))
	for key, set := range t.tracked {
		out[key] = set.lines()
	}
	return out
}

// SupportsBreakpoint reports whether bp is pushed to this target's adapter
func (t *Target) SupportsBreakpoint(bp Breakpoint) bool {
	return bp.Kind() == LineBreakpointKind && !t.IsTerminated()
}

func locate(bp Breakpoint) (SourceKey, int, error) {
	res, err := bp.Resource()
	if err != nil {
		return SourceKey{}, 0, err
	}
	line, err := bp.Line()
	if err != nil {
		return SourceKey{}, 0, err
	}
	return SourceKey{Name: res.Name, Path: res.Path}, line, nil
}

// wanted reports whether bp belongs in the pushed set: unregistered
// breakpoints always do, registered ones when they and the registry are enabled.
func (t *Target) wanted(bp Breakpoint) (bool, error) {
	registered, err := bp.IsRegistered()
	if err != nil {
		return false, err
	}
	if !registered {
		return true, nil
	}
	enabled, err := bp.IsEnabled()
	if err != nil {
		return false, err
	}
	return enabled && t.registry.Enabled(), nil
}

func (t *Target) track(key SourceKey, line int, bp Breakpoint) {
	set, ok := t.tracked[key]
	if !ok {
		set = make(lineSet)
		t.tracked[key] = set
	}
	set.add(line, bp)
}

func (t *Target) untrackAnywhere(bp Breakpoint) bool {
	removed := false
	for _, set := range t.tracked {
		for line := range set {
			if set.remove(line, bp) {
				removed = true
			}
		}
	}
	return removed
}

func (t *Target) breakpointAdded(bp Breakpoint) {
	if !t.SupportsBreakpoint(bp) {
		return
	}
	t.bpMu.Lock()
	defer t.bpMu.Unlock()

	want, err := t.wanted(bp)
	if err != nil {
		t.log.Warn().Err(err).Msg("cannot read added breakpoint, ignoring it")
		return
	}
	if want {
		key, line, err := locate(bp)
		if err != nil {
			t.log.Warn().Err(err).Msg("cannot locate added breakpoint, ignoring it")
			return
		}
		t.track(key, line, bp)
		t.pushLogged()
	}
}

func (t *Target) breakpointRemoved(bp Breakpoint) {
	if !t.SupportsBreakpoint(bp) {
		return
	}
	t.bpMu.Lock()
	defer t.bpMu.Unlock()

	removed := false
	if key, line, err := locate(bp); err == nil {
		if set, ok := t.tracked[key]; ok {
			removed = set.remove(line, bp)
		}
	}
	// The marker may have moved or vanished since it was tracked.
	if !removed {
		t.untrackAnywhere(bp)
	}
	t.pushLogged()
}

func (t *Target) breakpointChanged(bp Breakpoint) {
	if !t.SupportsBreakpoint(bp) {
		return
	}
	t.bpMu.Lock()
	defer t.bpMu.Unlock()

	want, err := t.wanted(bp)
	if err != nil {
		t.log.Warn().Err(err).Msg("cannot read changed breakpoint, ignoring change")
		return
	}
	var key SourceKey
	var line int
	if want {
		if key, line, err = locate(bp); err != nil {
			t.log.Warn().Err(err).Msg("cannot locate changed breakpoint, ignoring change")
			return
		}
	}

	t.untrackAnywhere(bp)
	if want {
		t.track(key, line, bp)
	}
	t.pushLogged()
}

func (t *Target) enablementChanged(enabled bool) {
	if t.IsTerminated() {
		return
	}
	t.bpMu.Lock()
	defer t.bpMu.Unlock()

	if !enabled {
		for key := range t.tracked {
			t.tracked[key] = make(lineSet)
		}
		t.pushLogged()
		return
	}

	if err := t.populate(); err != nil {
		t.log.Warn().Err(err).Msg("cannot read host breakpoints, ignoring enablement change")
		return
	}
	t.pushLogged()
}

// populate adds every supported breakpoint the registry wants pushed.
// Breakpoints whose accessors fail are skipped. Callers hold bpMu.
func (t *Target) populate() error {
	bps, err := t.registry.Breakpoints()
	if err != nil {
		return err
	}
	for _, bp := range bps {
		if !t.SupportsBreakpoint(bp) {
			continue
		}
		want, err := t.wanted(bp)
		if err != nil {
			t.log.Warn().Err(err).Msg("skipping unreadable breakpoint")
			continue
		}
		if !want {
			continue
		}
		key, line, err := locate(bp)
		if err != nil {
			t.log.Warn().Err(err).Msg("skipping unlocatable breakpoint")
			continue
		}
		t.track(key, line, bp)
	}
	return nil
}

// syncAll performs the initial full push. Unlike later pushes its failure
// is returned so that startup aborts.
func (t *Target) syncAll() error {
	t.bpMu.Lock()
	defer t.bpMu.Unlock()

	if err := t.populate(); err != nil {
		return errors.BreakpointSyncFailed("", err)
	}
	return t.push()
}

func (t *Target) pushLogged() {
	if err := t.push(); err != nil {
		t.log.Warn().Err(err).Msg("breakpoint push failed")
	}
}

// push sends the complete line set of every tracked source, one
// setBreakpoints request each. A source pushed empty stops being tracked.
// The first failure aborts the push and leaves the tracked state intact.
// Callers hold bpMu.
func (t *Target) push() error {
	keys := make([]SourceKey, 0, len(t.tracked))
	for key := range t.tracked {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Path != keys[j].Path {
			return keys[i].Path < keys[j].Path
		}
		return keys[i].Name < keys[j].Name
	})

	for _, key := range keys {
		lines := t.tracked[key].lines()
		source := godap.Source{Name: key.Name, Path: key.Path}
		if _, err := t.client.SetBreakpoints(source, lines); err != nil {
			return errors.BreakpointSyncFailed(key.Path, err)
		}
		if len(lines) == 0 {
			delete(t.tracked, key)
		}
	}
	return nil
}

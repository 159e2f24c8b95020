// Package target models one connected debug adapter as a debug target with
// threads, stack frames and lazily expanded values. It keeps the adapter's
// line breakpoints in sync with a host breakpoint registry.
//
// State changes between running and suspended come only from adapter events.
// Control operations issue requests and leave the state alone.
package target

import (
	"encoding/json"
	"os/exec"
	"sort"
	"sync"

	godap "github.com/google/go-dap"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ctagard/dapclient/internal/dap"
	"github.com/ctagard/dapclient/internal/errors"
	"github.com/ctagard/dapclient/pkg/types"
)

const (
	// ClientID identifies this client in the initialize request
	ClientID = "dapclient"

	// DefaultName is used when the launch arguments name no program
	DefaultName = "Debug Adapter Target"
)

// Config describes how to start the session with the adapter
type Config struct {
	// AdapterID is the adapter type id sent with initialize
	AdapterID string
	// Name is the display name, usually the program being debugged
	Name string
	// Request is "launch" or "attach"
	Request string
	// Arguments are passed verbatim to launch or attach
	Arguments json.RawMessage
}

// Option configures a Target
type Option func(*Target)

// WithRegistry keeps the adapter breakpoints in sync with registry
func WithRegistry(registry Registry) Option {
	return func(t *Target) {
		t.registry = registry
	}
}

// WithEventSink sets the receiver of resume, suspend and terminate notifications
func WithEventSink(sink EventSink) Option {
	return func(t *Target) {
		if sink != nil {
			t.sink = sink
		}
	}
}

// WithProcess hands ownership of the adapter process to the target. The
// target waits for it and kills its process group on termination.
func WithProcess(cmd *exec.Cmd) Option {
	return func(t *Target) {
		t.process = cmd
	}
}

// WithLogger sets the logger
func WithLogger(logger zerolog.Logger) Option {
	return func(t *Target) {
		t.log = logger
	}
}

// Target is one debug session with a single adapter
type Target struct {
	id       string
	name     string
	client   *dap.Client
	process  *exec.Cmd
	registry Registry
	sink     EventSink
	log      zerolog.Logger

	// mu guards session, thread and frame state. It is never held across a request.
	mu           sync.RWMutex
	state        types.SessionState
	started      bool
	lastStopped  int
	threads      map[int]*Thread
	subscription Subscription
	done         chan struct{}

	// bpMu serializes breakpoint reconciliation including the push.
	bpMu    sync.Mutex
	tracked map[SourceKey]lineSet
}

// New connects a target to an adapter and runs the startup sequence:
// initialize, launch or attach, configurationDone, then the initial
// breakpoint sync. It blocks until all of them completed. On failure the
// connection is closed, the process killed, and the error says which step failed.
func New(client *dap.Client, cfg Config, opts ...Option) (*Target, error) {
	t := &Target{
		id:      uuid.NewString(),
		name:    cfg.Name,
		client:  client,
		sink:    discardSink{},
		log:     log.Logger,
		state:   types.SessionStateInitializing,
		threads: make(map[int]*Thread),
		done:    make(chan struct{}),
		tracked: make(map[SourceKey]lineSet),
	}
	if t.name == "" {
		t.name = DefaultName
	}
	for _, opt := range opts {
		opt(t)
	}
	t.log = t.log.With().Str("session", t.id).Logger()

	client.OnEvent(t.handleEvent)
	client.OnRequest(t.handleRequest)

	if t.process != nil {
		go t.waitProcess()
	}

	if err := t.startup(cfg); err != nil {
		t.log.Error().Err(err).Msg("debug target startup failed")
		t.shutdown(false)
		return nil, err
	}

	t.mu.Lock()
	if t.state == types.SessionStateInitializing {
		t.state = types.SessionStateRunning
	}
	t.started = true
	t.mu.Unlock()

	t.log.Info().Str("name", t.name).Msg("debug target started")
	return t, nil
}

func (t *Target) startup(cfg Config) error {
	_, err := t.client.Initialize(godap.InitializeRequestArguments{
		ClientID:        ClientID,
		ClientName:      ClientID,
		AdapterID:       cfg.AdapterID,
		PathFormat:      "path",
		LinesStartAt1:   true,
		ColumnsStartAt1: true,
	})
	if err != nil {
		return errors.DAPInitFailed(err)
	}

	args := cfg.Arguments
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	if cfg.Request == "attach" {
		if err := t.client.Attach(args); err != nil {
			return errors.DAPAttachFailed(t.name, err)
		}
	} else {
		if err := t.client.Launch(args); err != nil {
			return errors.DAPLaunchFailed(t.name, err)
		}
	}

	if err := t.client.ConfigurationDone(); err != nil {
		return errors.DAPConfigFailed(err)
	}

	if t.registry == nil {
		return nil
	}

	sub := t.registry.Subscribe(reconciler{t})
	t.mu.Lock()
	if t.state == types.SessionStateTerminated {
		t.mu.Unlock()
		sub.Close()
		return errors.SessionTerminated(t.name)
	}
	t.subscription = sub
	t.mu.Unlock()

	return t.syncAll()
}

// ID returns the unique session id
func (t *Target) ID() string { return t.id }

// Name returns the display name
func (t *Target) Name() string { return t.name }

// Target implements Element
func (t *Target) Target() *Target { return t }

// State returns the current session state
func (t *Target) State() types.SessionState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// IsTerminated reports whether the session has ended
func (t *Target) IsTerminated() bool {
	return t.State() == types.SessionStateTerminated
}

// IsSuspended reports whether the adapter reported a stop that no continue followed
func (t *Target) IsSuspended() bool {
	return t.State() == types.SessionStateSuspended
}

// CanResume reports whether Resume makes sense in the current state
func (t *Target) CanResume() bool {
	return t.IsSuspended()
}

// CanSuspend reports whether Suspend makes sense in the current state
func (t *Target) CanSuspend() bool {
	s := t.State()
	return s == types.SessionStateRunning || s == types.SessionStateInitializing
}

// Done is closed once the session has terminated
func (t *Target) Done() <-chan struct{} {
	return t.done
}

// Resume continues the thread that stopped last, else the lowest known
// thread. The state changes when the adapter reports it.
func (t *Target) Resume() error {
	t.mu.RLock()
	threadID, state := t.lastStopped, t.state
	if threadID == 0 {
		threadID = t.lowestThreadID()
	}
	t.mu.RUnlock()

	if state == types.SessionStateTerminated {
		return errors.SessionTerminated(t.name)
	}
	if threadID == 0 {
		return errors.NoThread("resume")
	}
	_, err := t.client.Continue(threadID)
	return err
}

// Suspend asks the adapter to pause. The state changes when the adapter reports it.
func (t *Target) Suspend() error {
	t.mu.RLock()
	threadID, state := t.lastStopped, t.state
	if threadID == 0 {
		threadID = t.lowestThreadID()
	}
	t.mu.RUnlock()

	if state == types.SessionStateTerminated {
		return errors.SessionTerminated(t.name)
	}
	return t.client.Pause(threadID)
}

func (t *Target) lowestThreadID() int {
	ids := make([]int, 0, len(t.threads))
	for id := range t.threads {
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return 0
	}
	sort.Ints(ids)
	return ids[0]
}

// Terminate disconnects from the adapter and ends the session. The
// disconnect outcome does not matter: the session is terminated afterwards
// in every case. Calling Terminate again is a no-op.
func (t *Target) Terminate() error {
	if t.IsTerminated() {
		return nil
	}

	if err := t.client.Disconnect(true); err != nil {
		t.log.Warn().Err(err).Msg("disconnect failed (continuing cleanup)")
	}

	t.shutdown(true)
	return nil
}

// Value builds a value for a children reference handed out by the adapter
func (t *Target) Value(reference int, name, value string) *Value {
	return newValue(t, name, value, reference)
}

func (t *Target) shutdown(notify bool) {
	t.mu.Lock()
	if t.state == types.SessionStateTerminated {
		t.mu.Unlock()
		return
	}
	t.state = types.SessionStateTerminated
	// A target that never finished starting was never handed out.
	notify = notify && t.started
	sub := t.subscription
	t.subscription = nil
	t.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
	_ = t.client.Close()
	if t.process != nil {
		if err := dap.KillProcessGroup(t.process); err != nil {
			t.log.Warn().Err(err).Msg("failed to kill adapter process")
		}
	}
	close(t.done)

	t.log.Info().Msg("debug target terminated")
	if notify {
		t.sink.HandleDebugEvent(Event{
			Kind:   types.EventTerminate,
			Source: t,
			Detail: types.DetailUnspecified,
		})
	}
}

func (t *Target) waitProcess() {
	err := t.process.Wait()
	t.log.Debug().Err(err).Msg("adapter process exited")
	t.shutdown(true)
}

func (t *Target) handleEvent(m godap.EventMessage) {
	switch e := m.(type) {
	case *godap.StoppedEvent:
		t.onStopped(e.Body)
	case *godap.ContinuedEvent:
		t.onContinued(e.Body)
	case *godap.TerminatedEvent:
		t.shutdown(true)
	case *godap.InitializedEvent:
		t.log.Debug().Msg("adapter initialized")
	case *godap.ExitedEvent:
		t.log.Info().Int("exit_code", e.Body.ExitCode).Msg("debuggee exited")
	case *godap.ThreadEvent:
		t.log.Debug().Int("thread", e.Body.ThreadId).Str("reason", e.Body.Reason).Msg("thread event")
	case *godap.OutputEvent:
		t.log.Debug().Str("category", e.Body.Category).Str("output", e.Body.Output).Msg("debuggee output")
	case *godap.BreakpointEvent:
		t.log.Debug().Str("reason", e.Body.Reason).Int("line", e.Body.Breakpoint.Line).Bool("verified", e.Body.Breakpoint.Verified).Msg("breakpoint event")
	case *godap.ModuleEvent:
		t.log.Debug().Str("reason", e.Body.Reason).Str("module", e.Body.Module.Name).Msg("module event")
	case *godap.LoadedSourceEvent:
		t.log.Debug().Str("reason", e.Body.Reason).Str("path", e.Body.Source.Path).Msg("loaded source event")
	case *godap.ProcessEvent:
		t.log.Debug().Str("process", e.Body.Name).Int("pid", e.Body.SystemProcessId).Msg("process event")
	default:
		t.log.Trace().Str("event", m.GetEvent().Event).Msg("ignoring event")
	}
}

func (t *Target) handleRequest(m godap.RequestMessage) godap.ResponseMessage {
	req := m.GetRequest()
	t.log.Debug().Str("command", req.Command).Msg("rejecting adapter request")
	return dap.NewErrorResponse(req.Seq, req.Command, req.Command+" is not supported by "+ClientID)
}

func (t *Target) onStopped(body godap.StoppedEventBody) {
	t.mu.Lock()
	if t.state == types.SessionStateTerminated {
		t.mu.Unlock()
		return
	}
	t.state = types.SessionStateSuspended
	if body.ThreadId > 0 {
		t.lastStopped = body.ThreadId
	}
	source := t.elementFor(body.ThreadId)
	t.mu.Unlock()

	t.log.Debug().Str("reason", body.Reason).Int("thread", body.ThreadId).Msg("target suspended")
	t.sink.HandleDebugEvent(Event{
		Kind:   types.EventSuspend,
		Source: source,
		Detail: stopDetail(body.Reason),
	})
}

func (t *Target) onContinued(body godap.ContinuedEventBody) {
	t.mu.Lock()
	if t.state == types.SessionStateTerminated {
		t.mu.Unlock()
		return
	}
	t.state = types.SessionStateRunning
	source := t.elementFor(body.ThreadId)
	t.mu.Unlock()

	t.log.Debug().Int("thread", body.ThreadId).Msg("target resumed")
	t.sink.HandleDebugEvent(Event{
		Kind:   types.EventResume,
		Source: source,
		Detail: types.DetailUnspecified,
	})
}

// elementFor returns the known thread with id, else the target. Callers hold mu.
func (t *Target) elementFor(threadID int) Element {
	if th, ok := t.threads[threadID]; ok {
		return th
	}
	return t
}

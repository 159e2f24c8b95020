package mcp

import (
	"context"
	"encoding/json"
	"net"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/go-dap"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/ctagard/dapclient/internal/config"
	"github.com/ctagard/dapclient/internal/daptest"
	"github.com/ctagard/dapclient/internal/target"
	"github.com/ctagard/dapclient/pkg/types"
)

func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()
	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}
	s := NewServer(cfg)
	t.Cleanup(s.Close)
	return s
}

func callTool(t *testing.T, handler server.ToolHandlerFunc, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	res, err := handler(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, res.Content, 1)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "unexpected content %T", res.Content[0])
	return text.Text
}

// okJSON asserts a successful result and returns its JSON payload
func okJSON(t *testing.T, res *mcp.CallToolResult) gjson.Result {
	t.Helper()
	text := resultText(t, res)
	require.False(t, res.IsError, text)
	require.True(t, gjson.Valid(text), text)
	return gjson.Parse(text)
}

func errorText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	text := resultText(t, res)
	require.True(t, res.IsError, text)
	return text
}

func toolNames(t *testing.T, s *Server) []string {
	t.Helper()
	msg := s.MCPServer().HandleMessage(context.Background(),
		json.RawMessage(`{"jsonrpc": "2.0", "id": 1, "method": "tools/list"}`))
	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	var names []string
	for _, name := range gjson.GetBytes(raw, "result.tools.#.name").Array() {
		names = append(names, name.String())
	}
	sort.Strings(names)
	return names
}

// fakeProgram answers the requests a session issues while inspecting a
// program stopped in main
func fakeProgram(a *daptest.Adapter) {
	a.Handle("threads", daptest.Threads(dap.Thread{Id: 1, Name: "main"}))
	a.Handle("stackTrace", daptest.Frames(
		dap.StackFrame{Id: 100, Name: "main.handle", Line: 12, Source: &dap.Source{Name: "app.go", Path: "/src/app.go"}},
		dap.StackFrame{Id: 101, Name: "main.main", Line: 30},
	))
	a.Handle("scopes", func(req dap.RequestMessage) dap.ResponseMessage {
		resp := &dap.ScopesResponse{}
		resp.Success = true
		resp.Body.Scopes = []dap.Scope{{Name: "Locals", VariablesReference: 7}}
		return resp
	})
	a.Handle("variables", func(req dap.RequestMessage) dap.ResponseMessage {
		resp := &dap.VariablesResponse{}
		resp.Success = true
		resp.Body.Variables = []dap.Variable{
			{Name: "count", Value: "3"},
			{Name: "cfg", Value: "{...}", VariablesReference: 8},
		}
		return resp
	})
}

func launchArgs(t *testing.T, addr string) map[string]any {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return map[string]any{
		"mode":   "connect",
		"host":   host,
		"port":   float64(port),
		"params": `{"type": "go", "program": "/src/app.go"}`,
	}
}

func TestToolsByCapabilityMode(t *testing.T) {
	always := []string{
		"breakpoints_list", "frame_variables", "session_launch", "session_status",
		"session_terminate", "stack_frames", "threads_list", "variables_expand",
	}

	readonly := newTestServer(t, func(c *config.Config) { c.Mode = config.ModeReadOnly })
	assert.Equal(t, always, toolNames(t, readonly))

	full := newTestServer(t, nil)
	names := toolNames(t, full)
	assert.Len(t, names, len(always)+7)
	assert.Subset(t, names, always)
	assert.Subset(t, names, []string{
		"breakpoint_add", "breakpoint_remove", "breakpoint_enable", "breakpoints_global",
		"thread_continue", "thread_step_over", "session_suspend",
	})
}

func TestDebugSessionWalkthrough(t *testing.T) {
	s := newTestServer(t, nil)
	addr, accepted := daptest.Listen(t, fakeProgram)

	launched := okJSON(t, callTool(t, s.handleSessionLaunch, launchArgs(t, addr)))
	assert.Equal(t, "/src/app.go", launched.Get("name").String())
	assert.Equal(t, string(types.SessionStateRunning), launched.Get("state").String())
	a := <-accepted

	// breakpoints are pushed while the session runs
	bp := okJSON(t, callTool(t, s.handleBreakpointAdd, map[string]any{"path": "/src/app.go", "line": float64(12)}))
	assert.True(t, bp.Get("enabled").Bool())
	pushes := a.Requests("setBreakpoints")
	require.Len(t, pushes, 1)
	assert.Equal(t, []int{12}, pushes[0].(*dap.SetBreakpointsRequest).Arguments.Lines)

	listed := okJSON(t, callTool(t, s.handleBreakpointsList, nil))
	assert.Equal(t, int64(12), listed.Get(`pushed./src/app\.go.0`).Int())

	threads := okJSON(t, callTool(t, s.handleThreadsList, nil))
	assert.Equal(t, "main", threads.Get("threads.0.name").String())

	require.NoError(t, a.Send(daptest.Stopped("breakpoint", 1)))
	require.Eventually(t, func() bool {
		return okJSON(t, callTool(t, s.handleSessionStatus, nil)).Get("state").String() == string(types.SessionStateSuspended)
	}, 2*time.Second, 10*time.Millisecond)

	status := okJSON(t, callTool(t, s.handleSessionStatus, nil))
	assert.True(t, status.Get("canResume").Bool())
	assert.Equal(t, "suspend", status.Get("events.0.kind").String())
	assert.Equal(t, "breakpoint", status.Get("events.0.detail").String())
	assert.Equal(t, "thread", status.Get("events.0.source").String())
	assert.Equal(t, int64(1), status.Get("events.0.threadId").Int())

	frames := okJSON(t, callTool(t, s.handleStackFrames, map[string]any{"threadId": float64(1)}))
	assert.Equal(t, "main.handle", frames.Get("stackFrames.0.name").String())
	assert.Equal(t, "/src/app.go", frames.Get("stackFrames.0.source.path").String())
	assert.False(t, frames.Get("stackFrames.1.source").Exists())

	scopes := okJSON(t, callTool(t, s.handleFrameVariables, map[string]any{"threadId": float64(1)}))
	assert.Equal(t, "Locals", scopes.Get("scopes.0.name").String())
	assert.Equal(t, int64(7), scopes.Get("scopes.0.variablesReference").Int())

	vars := okJSON(t, callTool(t, s.handleVariablesExpand, map[string]any{"variablesReference": float64(7)}))
	assert.Equal(t, "3", vars.Get("variables.0.value").String())
	assert.False(t, vars.Get("variables.0.hasChildren").Bool())
	assert.True(t, vars.Get("variables.1.hasChildren").Bool())

	okJSON(t, callTool(t, s.handleThreadContinue, map[string]any{"threadId": float64(1)}))
	cont := a.Requests("continue")
	require.Len(t, cont, 1)
	assert.Equal(t, 1, cont[0].(*dap.ContinueRequest).Arguments.ThreadId)

	status = okJSON(t, callTool(t, s.handleSessionStatus, nil))
	assert.Equal(t, "resume", status.Get("events.1.kind").String())
	assert.Equal(t, string(types.DetailUnspecified), status.Get("events.1.detail").String())

	ended := okJSON(t, callTool(t, s.handleSessionTerminate, nil))
	assert.Equal(t, string(types.SessionStateTerminated), ended.Get("state").String())
	assert.Len(t, a.Requests("disconnect"), 1)

	status = okJSON(t, callTool(t, s.handleSessionStatus, nil))
	assert.Equal(t, "terminate", status.Get("events.#(kind==terminate).kind").String())
	assert.Contains(t, errorText(t, callTool(t, s.handleThreadsList, nil)), "terminated")
}

func TestSecondLaunchRejectedWhileActive(t *testing.T) {
	s := newTestServer(t, nil)
	addr, _ := daptest.Listen(t, nil)
	okJSON(t, callTool(t, s.handleSessionLaunch, launchArgs(t, addr)))

	text := errorText(t, callTool(t, s.handleSessionLaunch, launchArgs(t, addr)))
	assert.Contains(t, text, "still active")
}

func TestLaunchAfterTerminateStartsFreshSession(t *testing.T) {
	s := newTestServer(t, nil)

	first, _ := daptest.Listen(t, nil)
	okJSON(t, callTool(t, s.handleSessionLaunch, launchArgs(t, first)))
	okJSON(t, callTool(t, s.handleSessionTerminate, nil))

	second, accepted := daptest.Listen(t, nil)
	info := okJSON(t, callTool(t, s.handleSessionLaunch, launchArgs(t, second)))
	assert.Equal(t, string(types.SessionStateRunning), info.Get("state").String())
	<-accepted

	status := okJSON(t, callTool(t, s.handleSessionStatus, nil))
	assert.False(t, status.Get("events").Exists(), "events of the previous session must be dropped")
}

func TestBreakpointsSurviveIntoNextSession(t *testing.T) {
	s := newTestServer(t, nil)
	okJSON(t, callTool(t, s.handleBreakpointAdd, map[string]any{"path": "/src/app.go", "line": float64(3)}))

	addr, accepted := daptest.Listen(t, nil)
	okJSON(t, callTool(t, s.handleSessionLaunch, launchArgs(t, addr)))
	a := <-accepted

	// initial sync happens after configurationDone
	assert.Equal(t, []string{"initialize", "launch", "configurationDone", "setBreakpoints"}, a.Commands())
}

func TestLaunchPermissions(t *testing.T) {
	s := newTestServer(t, func(c *config.Config) { c.AllowConnect = false })

	text := errorText(t, callTool(t, s.handleSessionLaunch, map[string]any{
		"mode": "connect",
		"host": "127.0.0.1",
		"port": float64(4711),
	}))
	assert.Contains(t, text, "connect is not allowed")
}

func TestLaunchArgumentErrors(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{name: "no mode and no default", args: nil, want: "'mode' is missing"},
		{name: "bad params", args: map[string]any{"mode": "launch", "command": "dlv", "params": "{"}, want: "invalid JSON in parameter 'params'"},
		{name: "bad args", args: map[string]any{"mode": "launch", "command": "dlv", "args": `"dap"`}, want: "invalid JSON in parameter 'args'"},
		{name: "missing command", args: map[string]any{"mode": "launch"}, want: "'command' is missing"},
		{name: "bad run mode", args: map[string]any{"mode": "launch", "command": "dlv", "runMode": "profile"}, want: "runMode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, errorText(t, callTool(t, s.handleSessionLaunch, tt.args)), tt.want)
		})
	}
}

func TestToolsWithoutSession(t *testing.T) {
	s := newTestServer(t, nil)

	assert.Contains(t, errorText(t, callTool(t, s.handleSessionStatus, nil)), "no debug session")
	assert.Contains(t, errorText(t, callTool(t, s.handleThreadsList, nil)), "no debug session")
	assert.Contains(t, errorText(t, callTool(t, s.handleSessionSuspend, nil)), "no debug session")

	listed := okJSON(t, callTool(t, s.handleBreakpointsList, nil))
	assert.True(t, listed.Get("globalEnabled").Bool())
	assert.False(t, listed.Get("pushed").Exists())
}

func TestToolErrorsCarryCode(t *testing.T) {
	s := newTestServer(t, nil)

	assert.True(t, strings.HasPrefix(errorText(t, callTool(t, s.handleSessionStatus, nil)), "[NO_SESSION] "))

	text := errorText(t, callTool(t, s.handleBreakpointRemove, map[string]any{"id": float64(404)}))
	assert.True(t, strings.HasPrefix(text, "[BREAKPOINT_NOT_FOUND] "), text)

	text = errorText(t, callTool(t, s.handleBreakpointEnable, map[string]any{"id": float64(1)}))
	assert.True(t, strings.HasPrefix(text, "[MISSING_PARAMETER] "), text)
}

func TestContinueWithoutKnownThread(t *testing.T) {
	s := newTestServer(t, nil)
	addr, _ := daptest.Listen(t, nil)
	okJSON(t, callTool(t, s.handleSessionLaunch, launchArgs(t, addr)))

	text := errorText(t, callTool(t, s.handleThreadContinue, nil))
	assert.True(t, strings.HasPrefix(text, "[NO_THREAD] failed to continue"), text)
}

func TestBreakpointTools(t *testing.T) {
	s := newTestServer(t, nil)

	bp := okJSON(t, callTool(t, s.handleBreakpointAdd, map[string]any{"path": "/src/a.py", "line": float64(4)}))
	id := float64(bp.Get("id").Int())
	assert.Equal(t, "a.py", bp.Get("name").String())

	disabled := okJSON(t, callTool(t, s.handleBreakpointEnable, map[string]any{"id": id, "enabled": false}))
	assert.False(t, disabled.Get("enabled").Bool())

	global := okJSON(t, callTool(t, s.handleBreakpointsGlobal, map[string]any{"enabled": false}))
	assert.False(t, global.Get("globalEnabled").Bool())

	transient := okJSON(t, callTool(t, s.handleBreakpointAdd, map[string]any{"path": "/src/a.py", "line": float64(9), "transient": true}))
	assert.False(t, transient.Get("registered").Bool())

	okJSON(t, callTool(t, s.handleBreakpointRemove, map[string]any{"id": id}))
	assert.Contains(t, errorText(t, callTool(t, s.handleBreakpointRemove, map[string]any{"id": id})), "not found")

	assert.Contains(t, errorText(t, callTool(t, s.handleBreakpointAdd, map[string]any{"path": "rel/a.py", "line": float64(1)})), "path")
}

func TestEventRecorderKeepsNewest(t *testing.T) {
	r := newEventRecorder()
	for i := 0; i < maxRecordedEvents+5; i++ {
		r.HandleDebugEvent(target.Event{Kind: types.EventSuspend, Detail: types.DetailUnspecified})
	}
	r.HandleDebugEvent(target.Event{Kind: types.EventTerminate, Detail: types.DetailUnspecified})

	events := r.snapshot()
	require.Len(t, events, maxRecordedEvents)
	assert.Equal(t, types.EventTerminate, events[len(events)-1].Kind)
	assert.Equal(t, "target", events[0].Source)

	r.reset()
	assert.Empty(t, r.snapshot())
}

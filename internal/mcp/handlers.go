package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ctagard/dapclient/internal/config"
	"github.com/ctagard/dapclient/internal/errors"
	"github.com/ctagard/dapclient/internal/launch"
	"github.com/ctagard/dapclient/internal/target"
	"github.com/ctagard/dapclient/pkg/types"
)

// Session Handlers

func (s *Server) handleSessionLaunch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	lc, err := s.launchConfigFrom(request)
	if err != nil {
		return toolError(err), nil
	}
	if err := lc.Validate(); err != nil {
		return toolError(err), nil
	}
	if !s.config.Permits(lc.Mode) {
		op := "spawn"
		if lc.Mode == launch.ModeConnect {
			op = "connect"
		}
		return toolError(errors.PermissionDenied(op, string(s.config.Mode))), nil
	}

	runMode := types.RunMode(request.GetString("runMode", string(types.RunModeDebug)))
	if runMode != types.RunModeDebug && runMode != types.RunModeRun {
		return toolError(errors.InvalidParameter("runMode", runMode, "'debug' or 'run'")), nil
	}

	s.launchMu.Lock()
	defer s.launchMu.Unlock()

	if cur := s.current(); cur != nil && !cur.IsTerminated() {
		return toolError(errors.SessionActive(cur.Name())), nil
	}

	s.events.reset()
	t, err := launch.Start(ctx, lc, runMode,
		target.WithRegistry(s.registry),
		target.WithEventSink(s.events),
		target.WithLogger(s.log),
	)
	if err != nil {
		return toolError(err), nil
	}
	s.setCurrent(t)

	s.log.Info().Str("session", t.ID()).Str("name", t.Name()).Str("runMode", string(runMode)).Msg("session launched")
	return jsonResult(sessionInfo(t))
}

func (s *Server) handleSessionStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t := s.current()
	if t == nil {
		return toolError(errors.NoSession()), nil
	}

	info := sessionInfo(t)
	info.Events = s.events.snapshot()
	return jsonResult(info)
}

func (s *Server) handleSessionTerminate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t := s.current()
	if t == nil {
		return toolError(errors.NoSession()), nil
	}

	if err := t.Terminate(); err != nil {
		return toolError(err), nil
	}
	return jsonResult(sessionInfo(t))
}

// Inspection Handlers

func (s *Server) handleThreadsList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t, err := s.liveTarget()
	if err != nil {
		return toolError(err), nil
	}

	threads, err := t.Threads()
	if err != nil {
		return failedTo("get threads", err), nil
	}

	result := make([]types.ThreadInfo, len(threads))
	for i, th := range threads {
		result[i] = types.ThreadInfo{ID: th.ID(), Name: th.Name()}
	}
	return jsonResult(map[string]interface{}{
		"threads": result,
	})
}

func (s *Server) handleStackFrames(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t, err := s.liveTarget()
	if err != nil {
		return toolError(err), nil
	}

	threadID, err := requireInt(request, "threadId", "Provide a thread ID from threads_list.")
	if err != nil {
		return toolError(err), nil
	}

	th, err := refreshedThread(t, threadID)
	if err != nil {
		return toolError(err), nil
	}

	frames, err := th.StackFrames()
	if err != nil {
		return failedTo("get stack trace", err), nil
	}

	result := make([]types.StackFrame, len(frames))
	for i, sf := range frames {
		result[i] = frameInfo(sf)
	}
	return jsonResult(map[string]interface{}{
		"threadId":    threadID,
		"stackFrames": result,
	})
}

func (s *Server) handleFrameVariables(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t, err := s.liveTarget()
	if err != nil {
		return toolError(err), nil
	}

	threadID, err := requireInt(request, "threadId", "Provide a thread ID from threads_list.")
	if err != nil {
		return toolError(err), nil
	}
	depth := 0
	if d, err := request.RequireFloat("depth"); err == nil {
		depth = int(d)
	}

	th, err := knownThread(t, threadID)
	if err != nil {
		return toolError(err), nil
	}
	frames, err := th.StackFrames()
	if err != nil {
		return failedTo("get stack trace", err), nil
	}
	if depth < 0 || depth >= len(frames) {
		return toolError(errors.InvalidParameter("depth", depth,
			fmt.Sprintf("a frame depth between 0 and %d", len(frames)-1))), nil
	}

	scopes, err := frames[depth].Variables()
	if err != nil {
		return failedTo("get scopes", err), nil
	}
	return jsonResult(map[string]interface{}{
		"frame":  frameInfo(frames[depth]),
		"scopes": variableInfos(scopes),
	})
}

func (s *Server) handleVariablesExpand(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t, err := s.liveTarget()
	if err != nil {
		return toolError(err), nil
	}

	ref, err := requireInt(request, "variablesReference", "Provide a variablesReference from frame_variables or variables_expand.")
	if err != nil {
		return toolError(err), nil
	}
	if ref <= 0 {
		return toolError(errors.InvalidParameter("variablesReference", ref, "a positive reference; 0 means the value has no children")), nil
	}

	children, err := t.Value(ref, "", "").Variables()
	if err != nil {
		return failedTo("get variables", err), nil
	}
	return jsonResult(map[string]interface{}{
		"variables": variableInfos(children),
	})
}

func (s *Server) handleBreakpointsList(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result := map[string]interface{}{
		"globalEnabled": s.registry.Enabled(),
		"breakpoints":   s.registry.List(),
	}

	if t := s.current(); t != nil && !t.IsTerminated() {
		pushed := make(map[string][]int)
		for key, lines := range t.Breakpoints() {
			pushed[key.Path] = lines
		}
		result["pushed"] = pushed
	}
	return jsonResult(result)
}

// Control Handlers

func (s *Server) handleBreakpointAdd(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil {
		return toolError(errors.MissingParameter("path", "Provide the absolute path of the source file.")), nil
	}
	line, err := requireInt(request, "line", "Provide a 1-based line number.")
	if err != nil {
		return toolError(err), nil
	}

	add := s.registry.Add
	if request.GetBool("transient", false) {
		add = s.registry.AddTransient
	}
	bp, err := add(path, line)
	if err != nil {
		return toolError(err), nil
	}
	return s.breakpointResult(bp.ID())
}

func (s *Server) handleBreakpointRemove(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireInt(request, "id", "Provide a breakpoint ID from breakpoints_list.")
	if err != nil {
		return toolError(err), nil
	}

	if err := s.registry.Remove(id); err != nil {
		return toolError(err), nil
	}
	return jsonResult(map[string]interface{}{
		"id":      id,
		"removed": true,
	})
}

func (s *Server) handleBreakpointEnable(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := requireInt(request, "id", "Provide a breakpoint ID from breakpoints_list.")
	if err != nil {
		return toolError(err), nil
	}
	enabled, err := request.RequireBool("enabled")
	if err != nil {
		return toolError(errors.MissingParameter("enabled", "Pass true to enable or false to disable.")), nil
	}

	if err := s.registry.SetEnabled(id, enabled); err != nil {
		return toolError(err), nil
	}
	return s.breakpointResult(id)
}

func (s *Server) handleBreakpointsGlobal(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	enabled, err := request.RequireBool("enabled")
	if err != nil {
		return toolError(errors.MissingParameter("enabled", "Pass true to enable or false to disable.")), nil
	}

	s.registry.SetGlobalEnabled(enabled)
	return jsonResult(map[string]interface{}{
		"globalEnabled": s.registry.Enabled(),
	})
}

func (s *Server) handleThreadContinue(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t, err := s.liveTarget()
	if err != nil {
		return toolError(err), nil
	}

	if _, err := request.RequireFloat("threadId"); err != nil {
		if err := t.Resume(); err != nil {
			return failedTo("continue", err), nil
		}
		return jsonResult(sessionInfo(t))
	}

	th, err := s.threadArg(t, request)
	if err != nil {
		return toolError(err), nil
	}
	if err := th.Resume(); err != nil {
		return failedTo("continue", err), nil
	}
	return jsonResult(sessionInfo(t))
}

func (s *Server) handleThreadStepOver(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t, err := s.liveTarget()
	if err != nil {
		return toolError(err), nil
	}

	th, err := s.threadArg(t, request)
	if err != nil {
		return toolError(err), nil
	}
	if err := th.StepOver(); err != nil {
		return failedTo("step", err), nil
	}
	return jsonResult(sessionInfo(t))
}

func (s *Server) handleSessionSuspend(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t, err := s.liveTarget()
	if err != nil {
		return toolError(err), nil
	}

	if _, err := request.RequireFloat("threadId"); err != nil {
		if err := t.Suspend(); err != nil {
			return failedTo("pause", err), nil
		}
		return jsonResult(sessionInfo(t))
	}

	th, err := s.threadArg(t, request)
	if err != nil {
		return toolError(err), nil
	}
	if err := th.Suspend(); err != nil {
		return failedTo("pause", err), nil
	}
	return jsonResult(sessionInfo(t))
}

// Helper functions

// launchConfigFrom builds the launch settings from a config file, the tool
// arguments, or the server's default session, in that order
func (s *Server) launchConfigFrom(request mcp.CallToolRequest) (launch.Config, error) {
	var lc launch.Config

	if path := request.GetString("configFile", ""); path != "" {
		if err := config.DecodeFile(path, &lc); err != nil {
			return lc, err
		}
		return lc, nil
	}

	mode := request.GetString("mode", "")
	if mode == "" {
		if s.config.Launch != nil {
			return *s.config.Launch, nil
		}
		return lc, errors.MissingParameter("mode", "Specify 'launch' with a command, or 'connect' with host and port. Alternatively, pass configFile.")
	}

	lc.Mode = launch.Mode(mode)
	lc.Command = request.GetString("command", "")
	lc.Cwd = request.GetString("cwd", "")
	lc.Host = request.GetString("host", "")
	if port, err := request.RequireFloat("port"); err == nil {
		lc.Port = int(port)
	}

	if raw := request.GetString("args", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &lc.Args); err != nil {
			return lc, errors.InvalidJSON("args", err, `["dap", "--listen=:0"]`)
		}
	}
	if raw := request.GetString("params", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &lc.Params); err != nil {
			return lc, errors.InvalidJSON("params", err, `{"type": "go", "program": "./cmd/app"}`)
		}
	}
	return lc, nil
}

func (s *Server) breakpointResult(id int) (*mcp.CallToolResult, error) {
	info, err := s.registry.Info(id)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(info)
}

func (s *Server) threadArg(t *target.Target, request mcp.CallToolRequest) (*target.Thread, error) {
	threadID, err := requireInt(request, "threadId", "Provide a thread ID from threads_list.")
	if err != nil {
		return nil, err
	}
	return knownThread(t, threadID)
}

func requireInt(request mcp.CallToolRequest, name, hint string) (int, error) {
	v, err := request.RequireFloat(name)
	if err != nil {
		return 0, errors.MissingParameter(name, hint)
	}
	return int(v), nil
}

// knownThread returns a thread seen by an earlier query, querying threads
// only when id is new
func knownThread(t *target.Target, id int) (*target.Thread, error) {
	if th, ok := t.Thread(id); ok {
		return th, nil
	}
	return refreshedThread(t, id)
}

// refreshedThread queries threads, which refreshes their frames, and returns id
func refreshedThread(t *target.Target, id int) (*target.Thread, error) {
	threads, err := t.Threads()
	if err != nil {
		return nil, err
	}
	for _, th := range threads {
		if th.ID() == id {
			return th, nil
		}
	}
	return nil, errors.InvalidParameter("threadId", id, "a thread ID listed by threads_list")
}

func sessionInfo(t *target.Target) types.SessionInfo {
	return types.SessionInfo{
		SessionID:  t.ID(),
		Name:       t.Name(),
		State:      t.State(),
		CanResume:  t.CanResume(),
		CanSuspend: t.CanSuspend(),
	}
}

func frameInfo(sf *target.StackFrame) types.StackFrame {
	info := types.StackFrame{
		ID:    sf.ID(),
		Depth: sf.Depth(),
		Name:  sf.Name(),
		Line:  sf.Line(),
	}
	if src := sf.Source(); src != nil {
		info.Source = &types.SourceInfo{Name: src.Name, Path: src.Path}
	}
	return info
}

func variableInfos(values []*target.Value) []types.Variable {
	out := make([]types.Variable, len(values))
	for i, v := range values {
		out[i] = types.Variable{
			Name:               v.Name(),
			Value:              v.String(),
			VariablesReference: v.Reference(),
			HasChildren:        v.HasVariables(),
		}
	}
	return out
}

func jsonResult(data interface{}) (*mcp.CallToolResult, error) {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return failedTo("marshal result", err), nil
	}
	return mcp.NewToolResultText(string(jsonBytes)), nil
}

// toolError renders err for the client, prefixed with its error code
func toolError(err error) *mcp.CallToolResult {
	de := errors.FromError(err)
	return mcp.NewToolResultError(fmt.Sprintf("[%s] %s", de.Code, de.Error()))
}

func failedTo(action string, err error) *mcp.CallToolResult {
	de := errors.FromError(err)
	return mcp.NewToolResultError(fmt.Sprintf("[%s] failed to %s: %s", de.Code, action, de.Error()))
}

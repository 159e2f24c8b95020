package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// registerTools registers the session, inspection and, in full mode, control tools
func (s *Server) registerTools() {
	// Session (both modes)
	s.registerSessionLaunch()
	s.registerSessionStatus()
	s.registerSessionTerminate()

	// Inspection (both modes)
	s.registerThreadsList()
	s.registerStackFrames()
	s.registerFrameVariables()
	s.registerVariablesExpand()
	s.registerBreakpointsList()

	// Control (full mode only)
	if s.config.CanUseControlTools() {
		s.registerBreakpointAdd()
		s.registerBreakpointRemove()
		s.registerBreakpointEnable()
		s.registerBreakpointsGlobal()
		s.registerThreadContinue()
		s.registerThreadStepOver()
		s.registerSessionSuspend()
	}
}

// Session Tools

func (s *Server) registerSessionLaunch() {
	tool := mcp.NewTool("session_launch",
		mcp.WithDescription("Start the debug session. Either spawn a debug adapter (mode 'launch') that speaks DAP on stdin/stdout, or connect to one listening on TCP (mode 'connect'). Without arguments the session configured in the server config file is used. Only one session can exist at a time."),
		mcp.WithString("mode",
			mcp.Description("'launch' to spawn the adapter command, 'connect' to dial host:port"),
		),
		mcp.WithString("command",
			mcp.Description("Debug adapter executable for launch mode, e.g. 'dlv' or 'lldb-dap'"),
		),
		mcp.WithString("args",
			mcp.Description("JSON array of adapter command arguments. Example: [\"dap\"]"),
		),
		mcp.WithString("cwd",
			mcp.Description("Working directory of the spawned adapter"),
		),
		mcp.WithString("host",
			mcp.Description("Host of a listening adapter (connect mode)"),
		),
		mcp.WithNumber("port",
			mcp.Description("Port of a listening adapter (connect mode)"),
		),
		mcp.WithString("params",
			mcp.Description("JSON object passed as launch or attach arguments. 'type' is the adapter id, 'program' names the session, 'request' may be 'attach'. Example: {\"type\": \"go\", \"program\": \"./cmd/app\"}"),
		),
		mcp.WithString("configFile",
			mcp.Description("Path to a .json, .yaml or .toml file holding the launch settings instead of the arguments above"),
		),
		mcp.WithString("runMode",
			mcp.Description("'debug' (default) stops at breakpoints, 'run' launches with noDebug"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleSessionLaunch)
}

func (s *Server) registerSessionStatus() {
	tool := mcp.NewTool("session_status",
		mcp.WithDescription("Report the session state (initializing, running, suspended, terminated), whether it can be resumed or suspended, and the most recent resume/suspend/terminate events"),
	)
	s.mcpServer.AddTool(tool, s.handleSessionStatus)
}

func (s *Server) registerSessionTerminate() {
	tool := mcp.NewTool("session_terminate",
		mcp.WithDescription("Disconnect from the adapter, terminating the debuggee, and end the session"),
	)
	s.mcpServer.AddTool(tool, s.handleSessionTerminate)
}

// Inspection Tools

func (s *Server) registerThreadsList() {
	tool := mcp.NewTool("threads_list",
		mcp.WithDescription("List the debuggee's threads. Also refreshes every thread's top stack frames."),
	)
	s.mcpServer.AddTool(tool, s.handleThreadsList)
}

func (s *Server) registerStackFrames() {
	tool := mcp.NewTool("stack_frames",
		mcp.WithDescription("Get the top stack frames of a thread, innermost first. Re-queries threads so the frames reflect the latest stop."),
		mcp.WithNumber("threadId",
			mcp.Required(),
			mcp.Description("Thread ID from threads_list"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleStackFrames)
}

func (s *Server) registerFrameVariables() {
	tool := mcp.NewTool("frame_variables",
		mcp.WithDescription("List the scopes of a stack frame (locals, globals, ...). Expand them with variables_expand."),
		mcp.WithNumber("threadId",
			mcp.Required(),
			mcp.Description("Thread ID from threads_list"),
		),
		mcp.WithNumber("depth",
			mcp.Description("Frame depth, 0 for the innermost frame (default: 0)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleFrameVariables)
}

func (s *Server) registerVariablesExpand() {
	tool := mcp.NewTool("variables_expand",
		mcp.WithDescription("Fetch the children of a scope or structured variable. Always queries the adapter; references are only valid while the debuggee stays suspended."),
		mcp.WithNumber("variablesReference",
			mcp.Required(),
			mcp.Description("variablesReference from frame_variables or a previous variables_expand"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleVariablesExpand)
}

func (s *Server) registerBreakpointsList() {
	tool := mcp.NewTool("breakpoints_list",
		mcp.WithDescription("List host breakpoints, the global enable switch, and the lines currently pushed to the adapter per source"),
	)
	s.mcpServer.AddTool(tool, s.handleBreakpointsList)
}

// Control Tools

func (s *Server) registerBreakpointAdd() {
	tool := mcp.NewTool("breakpoint_add",
		mcp.WithDescription("Add a line breakpoint. It is pushed to the adapter immediately if a session runs, or when the next session starts."),
		mcp.WithString("path",
			mcp.Required(),
			mcp.Description("Absolute path of the source file"),
		),
		mcp.WithNumber("line",
			mcp.Required(),
			mcp.Description("1-based line number"),
		),
		mcp.WithBoolean("transient",
			mcp.Description("Transient breakpoints ignore enablement and are not re-pushed by a later session (default: false)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleBreakpointAdd)
}

func (s *Server) registerBreakpointRemove() {
	tool := mcp.NewTool("breakpoint_remove",
		mcp.WithDescription("Remove a breakpoint"),
		mcp.WithNumber("id",
			mcp.Required(),
			mcp.Description("Breakpoint ID from breakpoints_list"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleBreakpointRemove)
}

func (s *Server) registerBreakpointEnable() {
	tool := mcp.NewTool("breakpoint_enable",
		mcp.WithDescription("Enable or disable one breakpoint"),
		mcp.WithNumber("id",
			mcp.Required(),
			mcp.Description("Breakpoint ID from breakpoints_list"),
		),
		mcp.WithBoolean("enabled",
			mcp.Required(),
			mcp.Description("true to enable, false to disable"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleBreakpointEnable)
}

func (s *Server) registerBreakpointsGlobal() {
	tool := mcp.NewTool("breakpoints_global",
		mcp.WithDescription("Enable or disable all breakpoints at once. Disabling clears every source on the adapter."),
		mcp.WithBoolean("enabled",
			mcp.Required(),
			mcp.Description("true to enable, false to disable"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleBreakpointsGlobal)
}

func (s *Server) registerThreadContinue() {
	tool := mcp.NewTool("thread_continue",
		mcp.WithDescription("Continue a suspended thread. Without threadId the thread that stopped last is continued."),
		mcp.WithNumber("threadId",
			mcp.Description("Thread ID to continue"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleThreadContinue)
}

func (s *Server) registerThreadStepOver() {
	tool := mcp.NewTool("thread_step_over",
		mcp.WithDescription("Step over the current line of a suspended thread"),
		mcp.WithNumber("threadId",
			mcp.Required(),
			mcp.Description("Thread ID to step"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleThreadStepOver)
}

func (s *Server) registerSessionSuspend() {
	tool := mcp.NewTool("session_suspend",
		mcp.WithDescription("Ask the adapter to pause the debuggee"),
		mcp.WithNumber("threadId",
			mcp.Description("Thread ID to pause (default: the last stopped or lowest known thread)"),
		),
	)
	s.mcpServer.AddTool(tool, s.handleSessionSuspend)
}

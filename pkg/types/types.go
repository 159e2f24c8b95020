// Package types defines shared data types used across the DAP client.
//
// This package provides type definitions for:
//   - SessionState: Debug target states (initializing, running, suspended, terminated)
//   - EventKind and EventDetail: notifications raised towards the host
//   - Info types: SessionInfo, ThreadInfo, StackFrame, Variable, Breakpoint, EventRecord
//
// The info types are the JSON views returned by the host tool surface.
package types

// SessionState represents the state of a debug target
type SessionState string

const (
	SessionStateInitializing SessionState = "initializing"
	SessionStateRunning      SessionState = "running"
	SessionStateSuspended    SessionState = "suspended"
	SessionStateTerminated   SessionState = "terminated"
)

// EventKind is the kind of notification raised towards the host
type EventKind string

const (
	EventResume    EventKind = "resume"
	EventSuspend   EventKind = "suspend"
	EventTerminate EventKind = "terminate"
)

// EventDetail explains why a notification was raised
type EventDetail string

const (
	DetailUnspecified   EventDetail = "unspecified"
	DetailBreakpoint    EventDetail = "breakpoint"
	DetailStepOver      EventDetail = "stepOver"
	DetailClientRequest EventDetail = "clientRequest"
)

// RunMode selects whether the debuggee runs under the debugger
type RunMode string

const (
	RunModeRun   RunMode = "run"
	RunModeDebug RunMode = "debug"
)

// SessionInfo represents information about the debug target
type SessionInfo struct {
	SessionID  string        `json:"sessionId"`
	Name       string        `json:"name"`
	State      SessionState  `json:"state"`
	CanResume  bool          `json:"canResume"`
	CanSuspend bool          `json:"canSuspend"`
	Events     []EventRecord `json:"events,omitempty"`
}

// EventRecord is one notification observed by the host
type EventRecord struct {
	Kind     EventKind   `json:"kind"`
	Detail   EventDetail `json:"detail"`
	Source   string      `json:"source"`
	ThreadID int         `json:"threadId,omitempty"`
}

// ThreadInfo represents information about a thread
type ThreadInfo struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// StackFrame represents a stack frame
type StackFrame struct {
	ID     int         `json:"id"`
	Depth  int         `json:"depth"`
	Name   string      `json:"name"`
	Source *SourceInfo `json:"source,omitempty"`
	Line   int         `json:"line"`
}

// SourceInfo represents source file information
type SourceInfo struct {
	Name string `json:"name,omitempty"`
	Path string `json:"path,omitempty"`
}

// Variable represents a variable or a scope
type Variable struct {
	Name               string `json:"name"`
	Value              string `json:"value"`
	VariablesReference int    `json:"variablesReference"`
	HasChildren        bool   `json:"hasChildren"`
}

// Breakpoint represents a breakpoint declared on the host
type Breakpoint struct {
	ID         int    `json:"id"`
	Path       string `json:"path"`
	Name       string `json:"name"`
	Line       int    `json:"line"`
	Enabled    bool   `json:"enabled"`
	Registered bool   `json:"registered"`
}

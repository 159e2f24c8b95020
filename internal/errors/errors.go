// Package errors provides structured error types for the DAP client.
// Every error carries a machine-readable code, and most carry a hint that
// tells the operator what to try next. Cause chains are preserved so callers
// can distinguish an adapter that rejected a request from a broken transport.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a category of error for programmatic handling
type ErrorCode string

const (
	// Transport and protocol errors
	CodeTransportFailed ErrorCode = "TRANSPORT_FAILED"
	CodeRequestFailed   ErrorCode = "REQUEST_FAILED"

	// Session startup errors
	CodeDAPInitFailed        ErrorCode = "DAP_INIT_FAILED"
	CodeDAPLaunchFailed      ErrorCode = "DAP_LAUNCH_FAILED"
	CodeDAPAttachFailed      ErrorCode = "DAP_ATTACH_FAILED"
	CodeDAPConfigFailed      ErrorCode = "DAP_CONFIG_FAILED"
	CodeBreakpointSyncFailed ErrorCode = "BREAKPOINT_SYNC_FAILED"

	// Session errors
	CodeSessionTerminated ErrorCode = "SESSION_TERMINATED"
	CodeNoSession         ErrorCode = "NO_SESSION"
	CodeSessionActive     ErrorCode = "SESSION_ACTIVE"
	CodeNoThread          ErrorCode = "NO_THREAD"

	// Adapter errors
	CodeAdapterSpawnFailed   ErrorCode = "ADAPTER_SPAWN_FAILED"
	CodeAdapterConnectFailed ErrorCode = "ADAPTER_CONNECT_FAILED"

	// Parameter errors
	CodeMissingParameter ErrorCode = "MISSING_PARAMETER"
	CodeInvalidParameter ErrorCode = "INVALID_PARAMETER"
	CodeInvalidJSON      ErrorCode = "INVALID_JSON"

	// Configuration and host errors
	CodeConfigInvalid      ErrorCode = "CONFIG_INVALID"
	CodeBreakpointNotFound ErrorCode = "BREAKPOINT_NOT_FOUND"
	CodePermissionDenied   ErrorCode = "PERMISSION_DENIED"

	// Programming errors
	CodePrecondition ErrorCode = "PRECONDITION"
)

// DebugError is a structured error type that includes helpful information
// about what went wrong and how to fix it.
type DebugError struct {
	// Code is a machine-readable error category
	Code ErrorCode `json:"code"`

	// Message is a human-readable description of what went wrong
	Message string `json:"message"`

	// Hint provides actionable guidance on how to fix the error
	Hint string `json:"hint,omitempty"`

	// Details contains additional context (e.g., the failing command)
	Details map[string]interface{} `json:"details,omitempty"`

	// Cause is the underlying error, if any
	Cause error `json:"-"`
}

// Error implements the error interface
func (e *DebugError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if e.Hint != "" {
		sb.WriteString(" | Hint: ")
		sb.WriteString(e.Hint)
	}

	return sb.String()
}

// Unwrap returns the underlying error for error chaining
func (e *DebugError) Unwrap() error {
	return e.Cause
}

// HasCode reports whether err, or any DebugError in its cause chain, carries code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var de *DebugError
		if !stderrors.As(err, &de) {
			return false
		}
		if de.Code == code {
			return true
		}
		err = de.Cause
	}
	return false
}

// --- Transport and protocol errors ---

// TransportFailed creates an error for a broken or closed adapter stream
func TransportFailed(err error) *DebugError {
	return &DebugError{
		Code:    CodeTransportFailed,
		Message: fmt.Sprintf("debug adapter connection failed: %v", err),
		Hint:    "The debug adapter exited or closed its stream. Launch a new session.",
		Cause:   err,
	}
}

// RequestFailed creates an error for a request the adapter answered with success=false
func RequestFailed(command, message string) *DebugError {
	if message == "" {
		message = "no reason given"
	}
	return &DebugError{
		Code:    CodeRequestFailed,
		Message: fmt.Sprintf("%s request failed: %s", command, message),
		Details: map[string]interface{}{
			"command": command,
			"message": message,
		},
	}
}

// UnexpectedResponse creates an error for a response of the wrong type
func UnexpectedResponse(command string, got interface{}) *DebugError {
	return &DebugError{
		Code:    CodeRequestFailed,
		Message: fmt.Sprintf("unexpected response type for %s: %T", command, got),
		Details: map[string]interface{}{
			"command": command,
		},
	}
}

// --- Session startup errors ---

// DAPInitFailed creates an error for DAP initialization failures
func DAPInitFailed(err error) *DebugError {
	return &DebugError{
		Code:    CodeDAPInitFailed,
		Message: fmt.Sprintf("debug adapter initialization failed: %v", err),
		Hint:    "The debug adapter may be incompatible or crashed during startup. Check the adapter type in the launch parameters.",
		Cause:   err,
	}
}

// DAPLaunchFailed creates an error for launch failures
func DAPLaunchFailed(name string, err error) *DebugError {
	return &DebugError{
		Code:    CodeDAPLaunchFailed,
		Message: fmt.Sprintf("failed to launch %s: %v", name, err),
		Hint:    "Check the launch parameters. The adapter either rejected them or closed the connection.",
		Cause:   err,
		Details: map[string]interface{}{
			"name": name,
		},
	}
}

// DAPAttachFailed creates an error for attach failures
func DAPAttachFailed(name string, err error) *DebugError {
	return &DebugError{
		Code:    CodeDAPAttachFailed,
		Message: fmt.Sprintf("failed to attach to %s: %v", name, err),
		Hint:    "Ensure the target process is running and the attach parameters are correct.",
		Cause:   err,
		Details: map[string]interface{}{
			"name": name,
		},
	}
}

// DAPConfigFailed creates an error for a rejected configurationDone
func DAPConfigFailed(err error) *DebugError {
	return &DebugError{
		Code:    CodeDAPConfigFailed,
		Message: fmt.Sprintf("configuration done failed: %v", err),
		Hint:    "The debug adapter rejected the configuration. Try launching with simpler options.",
		Cause:   err,
	}
}

// BreakpointSyncFailed creates an error for a failed breakpoint push
func BreakpointSyncFailed(path string, err error) *DebugError {
	return &DebugError{
		Code:    CodeBreakpointSyncFailed,
		Message: fmt.Sprintf("could not send breakpoints for %s: %v", path, err),
		Cause:   err,
		Details: map[string]interface{}{
			"path": path,
		},
	}
}

// --- Session errors ---

// SessionTerminated creates an error for operations on a finished session
func SessionTerminated(name string) *DebugError {
	return &DebugError{
		Code:    CodeSessionTerminated,
		Message: fmt.Sprintf("session '%s' has terminated", name),
		Hint:    "Launch a new session with session_launch.",
	}
}

// NoSession creates an error when no session is active
func NoSession() *DebugError {
	return &DebugError{
		Code:    CodeNoSession,
		Message: "no debug session is active",
		Hint:    "Use session_launch to start a session first.",
	}
}

// SessionActive creates an error when a session already runs
func SessionActive(name string) *DebugError {
	return &DebugError{
		Code:    CodeSessionActive,
		Message: fmt.Sprintf("session '%s' is still active", name),
		Hint:    "Only one session is supported. Use session_terminate before launching another.",
	}
}

// NoThread creates an error when an operation needs a thread and none is known
func NoThread(operation string) *DebugError {
	return &DebugError{
		Code:    CodeNoThread,
		Message: fmt.Sprintf("cannot %s: the adapter has not reported any thread", operation),
		Hint:    "Use threads_list to refresh threads, or pass a threadId.",
	}
}

// --- Adapter errors ---

// AdapterSpawnFailed creates an error when adapter spawn fails
func AdapterSpawnFailed(command string, err error) *DebugError {
	return &DebugError{
		Code:    CodeAdapterSpawnFailed,
		Message: fmt.Sprintf("failed to spawn debug adapter %s: %v", command, err),
		Hint:    "Ensure the debug adapter command is installed and on PATH.",
		Cause:   err,
		Details: map[string]interface{}{
			"command": command,
		},
	}
}

// AdapterConnectFailed creates an error when connecting to adapter fails
func AdapterConnectFailed(address string, err error) *DebugError {
	return &DebugError{
		Code:    CodeAdapterConnectFailed,
		Message: fmt.Sprintf("failed to connect to debug adapter at %s: %v", address, err),
		Hint:    "Check that the debug adapter is listening on the configured host and port.",
		Cause:   err,
		Details: map[string]interface{}{
			"address": address,
		},
	}
}

// --- Parameter errors ---

// MissingParameter creates an error for missing required parameters
func MissingParameter(paramName, description string) *DebugError {
	return &DebugError{
		Code:    CodeMissingParameter,
		Message: fmt.Sprintf("required parameter '%s' is missing", paramName),
		Hint:    description,
		Details: map[string]interface{}{
			"parameter": paramName,
		},
	}
}

// InvalidParameter creates an error for invalid parameter values
func InvalidParameter(paramName string, value interface{}, expected string) *DebugError {
	return &DebugError{
		Code:    CodeInvalidParameter,
		Message: fmt.Sprintf("invalid value for parameter '%s': %v", paramName, value),
		Hint:    fmt.Sprintf("Expected: %s", expected),
		Details: map[string]interface{}{
			"parameter": paramName,
			"value":     value,
			"expected":  expected,
		},
	}
}

// InvalidJSON creates an error for JSON parsing failures
func InvalidJSON(paramName string, err error, example string) *DebugError {
	return &DebugError{
		Code:    CodeInvalidJSON,
		Message: fmt.Sprintf("invalid JSON in parameter '%s': %v", paramName, err),
		Hint:    fmt.Sprintf("Provide valid JSON. Example: %s", example),
		Cause:   err,
		Details: map[string]interface{}{
			"parameter": paramName,
			"example":   example,
		},
	}
}

// --- Configuration and host errors ---

// ConfigInvalid creates an error for an unreadable configuration file
func ConfigInvalid(path, reason string) *DebugError {
	return &DebugError{
		Code:    CodeConfigInvalid,
		Message: fmt.Sprintf("configuration '%s' is invalid: %s", path, reason),
		Hint:    "Use a .json, .yaml, .yml or .toml file with valid syntax.",
		Details: map[string]interface{}{
			"path":   path,
			"reason": reason,
		},
	}
}

// BreakpointNotFound creates an error for an unknown breakpoint id
func BreakpointNotFound(id int) *DebugError {
	return &DebugError{
		Code:    CodeBreakpointNotFound,
		Message: fmt.Sprintf("breakpoint %d not found", id),
		Hint:    "Use breakpoints_list to see the declared breakpoints.",
		Details: map[string]interface{}{
			"id": id,
		},
	}
}

// PermissionDenied creates an error for operations the host configuration disallows
func PermissionDenied(operation, mode string) *DebugError {
	var hint string
	switch operation {
	case "spawn":
		hint = "The host is configured to disallow spawning debug adapters. Enable 'allowSpawn' in the configuration."
	case "connect":
		hint = "The host is configured to disallow connecting to debug adapters. Enable 'allowConnect' in the configuration."
	default:
		hint = fmt.Sprintf("This operation is not allowed in '%s' mode.", mode)
	}

	return &DebugError{
		Code:    CodePermissionDenied,
		Message: fmt.Sprintf("%s is not allowed in current mode", operation),
		Hint:    hint,
		Details: map[string]interface{}{
			"operation": operation,
			"mode":      mode,
		},
	}
}

// --- Programming errors ---

// Precondition creates an error for a broken internal assumption.
// It is raised with panic, never returned.
func Precondition(format string, args ...interface{}) *DebugError {
	return &DebugError{
		Code:    CodePrecondition,
		Message: fmt.Sprintf(format, args...),
	}
}

// FromError creates a DebugError from a generic error, attempting to preserve any existing structure
func FromError(err error) *DebugError {
	var de *DebugError
	if stderrors.As(err, &de) {
		return de
	}
	return &DebugError{
		Code:    "UNKNOWN_ERROR",
		Message: err.Error(),
		Hint:    "An unexpected error occurred. Please check the error message for details.",
		Cause:   err,
	}
}

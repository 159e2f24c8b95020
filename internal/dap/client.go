package dap

import (
	"encoding/json"
	"sync"

	"github.com/google/go-dap"

	"github.com/ctagard/dapclient/internal/errors"
)

// Client provides blocking, typed DAP requests on top of a Channel
type Client struct {
	channel *Channel

	mu           sync.RWMutex
	capabilities dap.Capabilities
}

// NewClient creates a new DAP client with the given transport and starts reading from it
func NewClient(transport *Transport, opts ...ChannelOption) *Client {
	return &Client{channel: NewChannel(transport, opts...)}
}

// Channel returns the underlying channel
func (c *Client) Channel() *Channel {
	return c.channel
}

// OnEvent sets the handler for DAP events
func (c *Client) OnEvent(handler EventHandler) {
	c.channel.OnEvent(handler)
}

// OnRequest sets the handler for requests initiated by the adapter
func (c *Client) OnRequest(handler RequestHandler) {
	c.channel.OnRequest(handler)
}

// Done is closed once the connection to the adapter is gone
func (c *Client) Done() <-chan struct{} {
	return c.channel.Done()
}

// Close closes the connection without waiting for the read loop
func (c *Client) Close() error {
	return c.channel.Close()
}

// Capabilities returns the capabilities from the initialize response
func (c *Client) Capabilities() dap.Capabilities {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.capabilities
}

func newRequest(command string) dap.Request {
	return dap.Request{
		ProtocolMessage: dap.ProtocolMessage{Type: "request"},
		Command:         command,
	}
}

// call sends req and converts the outcome into a typed response. A response
// with success=false becomes a RequestFailed error carrying the adapter's message.
func call[T dap.ResponseMessage](c *Client, req dap.RequestMessage) (T, error) {
	var zero T
	command := req.GetRequest().Command

	resp, err := c.channel.Call(req)
	if err != nil {
		return zero, err
	}

	if r := resp.GetResponse(); !r.Success {
		message := r.Message
		if er, ok := resp.(*dap.ErrorResponse); ok && er.Body.Error != nil && er.Body.Error.Format != "" {
			if message == "" {
				message = er.Body.Error.Format
			} else {
				message += ": " + er.Body.Error.Format
			}
		}
		return zero, errors.RequestFailed(command, message)
	}

	typed, ok := resp.(T)
	if !ok {
		return zero, errors.UnexpectedResponse(command, resp)
	}
	return typed, nil
}

// Initialize sends the initialize request and records the adapter capabilities
func (c *Client) Initialize(args dap.InitializeRequestArguments) (dap.Capabilities, error) {
	resp, err := call[*dap.InitializeResponse](c, &dap.InitializeRequest{
		Request:   newRequest("initialize"),
		Arguments: args,
	})
	if err != nil {
		return dap.Capabilities{}, err
	}

	c.mu.Lock()
	c.capabilities = resp.Body
	c.mu.Unlock()

	return resp.Body, nil
}

// Launch sends a launch request with adapter-specific arguments
func (c *Client) Launch(args json.RawMessage) error {
	_, err := call[*dap.LaunchResponse](c, &dap.LaunchRequest{
		Request:   newRequest("launch"),
		Arguments: args,
	})
	return err
}

// Attach sends an attach request with adapter-specific arguments
func (c *Client) Attach(args json.RawMessage) error {
	_, err := call[*dap.AttachResponse](c, &dap.AttachRequest{
		Request:   newRequest("attach"),
		Arguments: args,
	})
	return err
}

// ConfigurationDone signals that configuration is complete
func (c *Client) ConfigurationDone() error {
	_, err := call[*dap.ConfigurationDoneResponse](c, &dap.ConfigurationDoneRequest{
		Request: newRequest("configurationDone"),
	})
	return err
}

// Disconnect ends the debug session
func (c *Client) Disconnect(terminateDebuggee bool) error {
	_, err := call[*dap.DisconnectResponse](c, &dap.DisconnectRequest{
		Request: newRequest("disconnect"),
		Arguments: &dap.DisconnectArguments{
			TerminateDebuggee: terminateDebuggee,
		},
	})
	return err
}

// Threads gets all threads
func (c *Client) Threads() ([]dap.Thread, error) {
	resp, err := call[*dap.ThreadsResponse](c, &dap.ThreadsRequest{
		Request: newRequest("threads"),
	})
	if err != nil {
		return nil, err
	}
	return resp.Body.Threads, nil
}

// StackTrace gets up to levels frames of a thread, starting at startFrame
func (c *Client) StackTrace(threadID, startFrame, levels int) ([]dap.StackFrame, error) {
	resp, err := call[*dap.StackTraceResponse](c, &dap.StackTraceRequest{
		Request: newRequest("stackTrace"),
		Arguments: dap.StackTraceArguments{
			ThreadId:   threadID,
			StartFrame: startFrame,
			Levels:     levels,
		},
	})
	if err != nil {
		return nil, err
	}
	return resp.Body.StackFrames, nil
}

// Scopes gets the scopes for a stack frame
func (c *Client) Scopes(frameID int) ([]dap.Scope, error) {
	resp, err := call[*dap.ScopesResponse](c, &dap.ScopesRequest{
		Request:   newRequest("scopes"),
		Arguments: dap.ScopesArguments{FrameId: frameID},
	})
	if err != nil {
		return nil, err
	}
	return resp.Body.Scopes, nil
}

// Variables gets the children of a variables reference
func (c *Client) Variables(variablesRef int) ([]dap.Variable, error) {
	resp, err := call[*dap.VariablesResponse](c, &dap.VariablesRequest{
		Request:   newRequest("variables"),
		Arguments: dap.VariablesArguments{VariablesReference: variablesRef},
	})
	if err != nil {
		return nil, err
	}
	return resp.Body.Variables, nil
}

// SetBreakpoints replaces every line breakpoint of source with lines.
// Both the breakpoints array and the legacy lines array are filled.
func (c *Client) SetBreakpoints(source dap.Source, lines []int) ([]dap.Breakpoint, error) {
	bps := make([]dap.SourceBreakpoint, len(lines))
	for i, line := range lines {
		bps[i] = dap.SourceBreakpoint{Line: line}
	}

	resp, err := call[*dap.SetBreakpointsResponse](c, &dap.SetBreakpointsRequest{
		Request: newRequest("setBreakpoints"),
		Arguments: dap.SetBreakpointsArguments{
			Source:         source,
			Breakpoints:    bps,
			Lines:          append([]int{}, lines...),
			SourceModified: false,
		},
	})
	if err != nil {
		return nil, err
	}
	return resp.Body.Breakpoints, nil
}

// Continue resumes a thread. It reports whether the adapter resumed all threads.
func (c *Client) Continue(threadID int) (bool, error) {
	resp, err := call[*dap.ContinueResponse](c, &dap.ContinueRequest{
		Request:   newRequest("continue"),
		Arguments: dap.ContinueArguments{ThreadId: threadID},
	})
	if err != nil {
		return false, err
	}
	return resp.Body.AllThreadsContinued, nil
}

// Next steps over
func (c *Client) Next(threadID int) error {
	_, err := call[*dap.NextResponse](c, &dap.NextRequest{
		Request:   newRequest("next"),
		Arguments: dap.NextArguments{ThreadId: threadID},
	})
	return err
}

// Pause pauses execution
func (c *Client) Pause(threadID int) error {
	_, err := call[*dap.PauseResponse](c, &dap.PauseRequest{
		Request:   newRequest("pause"),
		Arguments: dap.PauseArguments{ThreadId: threadID},
	})
	return err
}

// Package daptest provides an in-process debug adapter for tests. It speaks
// real DAP framing over net.Pipe, records every request it receives and
// answers them through per-command handlers.
package daptest

import (
	"bufio"
	"io"
	"net"
	"sync"
	"testing"

	"github.com/google/go-dap"

	dapclient "github.com/ctagard/dapclient/internal/dap"
)

// Handler answers one request. Returning nil leaves the request unanswered.
// The adapter fills in the response header.
type Handler func(req dap.RequestMessage) dap.ResponseMessage

// Adapter is a fake debug adapter
type Adapter struct {
	conn   io.ReadWriteCloser
	reader *bufio.Reader

	writeMu sync.Mutex
	seq     int

	mu        sync.Mutex
	handlers  map[string]Handler
	requests  []dap.RequestMessage
	responses chan dap.ResponseMessage

	done chan struct{}
}

// New starts an adapter and returns it with a transport connected to it.
// Both ends are closed when the test finishes.
func New(t testing.TB) (*Adapter, *dapclient.Transport) {
	t.Helper()

	server, client := net.Pipe()
	a := Serve(server)

	transport := dapclient.NewTransport(client)
	t.Cleanup(func() {
		_ = transport.Close()
		a.Close()
	})
	return a, transport
}

// Serve runs an adapter on an established stream
func Serve(conn io.ReadWriteCloser) *Adapter {
	return serveWith(conn, nil)
}

func serveWith(conn io.ReadWriteCloser, setup func(*Adapter)) *Adapter {
	a := &Adapter{
		conn:      conn,
		reader:    bufio.NewReader(conn),
		handlers:  make(map[string]Handler),
		responses: make(chan dap.ResponseMessage, 16),
		done:      make(chan struct{}),
	}
	if setup != nil {
		setup(a)
	}
	go a.serve()
	return a
}

// Listen accepts a single TCP connection on a loopback port and serves it.
// setup runs before the first request is read. The listener and the
// connection are closed when the test finishes.
func Listen(t testing.TB, setup func(*Adapter)) (string, <-chan *Adapter) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	var (
		mu     sync.Mutex
		served *Adapter
	)
	accepted := make(chan *Adapter, 1)
	go func() {
		defer close(accepted)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		a := serveWith(conn, setup)
		mu.Lock()
		served = a
		mu.Unlock()
		accepted <- a
	}()

	t.Cleanup(func() {
		_ = ln.Close()
		mu.Lock()
		defer mu.Unlock()
		if served != nil {
			served.Close()
		}
	})
	return ln.Addr().String(), accepted
}

// Handle sets the handler for command
func (a *Adapter) Handle(command string, h Handler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlers[command] = h
}

// Requests returns the requests received so far, optionally filtered by command
func (a *Adapter) Requests(commands ...string) []dap.RequestMessage {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(commands) == 0 {
		return append([]dap.RequestMessage(nil), a.requests...)
	}
	var out []dap.RequestMessage
	for _, req := range a.requests {
		for _, c := range commands {
			if req.GetRequest().Command == c {
				out = append(out, req)
				break
			}
		}
	}
	return out
}

// Commands returns the commands received so far in order
func (a *Adapter) Commands() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]string, len(a.requests))
	for i, req := range a.requests {
		out[i] = req.GetRequest().Command
	}
	return out
}

// Reset forgets recorded requests
func (a *Adapter) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.requests = nil
}

// Responses delivers responses the client sent to adapter-initiated requests
func (a *Adapter) Responses() <-chan dap.ResponseMessage {
	return a.responses
}

// Done is closed when the adapter stopped reading
func (a *Adapter) Done() <-chan struct{} {
	return a.done
}

// Send writes msg, assigning the next adapter sequence number
func (a *Adapter) Send(msg dap.Message) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()

	a.seq++
	switch m := msg.(type) {
	case dap.EventMessage:
		m.GetEvent().Seq = a.seq
		m.GetEvent().Type = "event"
	case dap.RequestMessage:
		m.GetRequest().Seq = a.seq
		m.GetRequest().Type = "request"
	case dap.ResponseMessage:
		m.GetResponse().Seq = a.seq
		m.GetResponse().Type = "response"
	}
	return dap.WriteProtocolMessage(a.conn, msg)
}

// SendRaw writes content as one frame without encoding it
func (a *Adapter) SendRaw(content []byte) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	return dap.WriteBaseMessage(a.conn, content)
}

// Close drops the connection, as a crashing adapter would
func (a *Adapter) Close() {
	_ = a.conn.Close()
}

func (a *Adapter) serve() {
	defer close(a.done)
	for {
		msg, err := dap.ReadProtocolMessage(a.reader)
		if err != nil {
			return
		}

		switch m := msg.(type) {
		case dap.RequestMessage:
			a.handle(m)
		case dap.ResponseMessage:
			select {
			case a.responses <- m:
			default:
			}
		}
	}
}

func (a *Adapter) handle(req dap.RequestMessage) {
	r := req.GetRequest()

	a.mu.Lock()
	a.requests = append(a.requests, req)
	h, ok := a.handlers[r.Command]
	a.mu.Unlock()

	var resp dap.ResponseMessage
	if ok {
		resp = h(req)
	} else {
		resp = Success(req)
	}
	if resp == nil {
		return
	}

	header := resp.GetResponse()
	header.RequestSeq = r.Seq
	header.Command = r.Command
	_ = a.Send(resp)
}

// Success returns an empty successful response of the type matching req
func Success(req dap.RequestMessage) dap.ResponseMessage {
	var resp dap.ResponseMessage
	switch req.(type) {
	case *dap.InitializeRequest:
		resp = &dap.InitializeResponse{}
	case *dap.LaunchRequest:
		resp = &dap.LaunchResponse{}
	case *dap.AttachRequest:
		resp = &dap.AttachResponse{}
	case *dap.ConfigurationDoneRequest:
		resp = &dap.ConfigurationDoneResponse{}
	case *dap.DisconnectRequest:
		resp = &dap.DisconnectResponse{}
	case *dap.ThreadsRequest:
		resp = &dap.ThreadsResponse{}
	case *dap.StackTraceRequest:
		resp = &dap.StackTraceResponse{}
	case *dap.ScopesRequest:
		resp = &dap.ScopesResponse{}
	case *dap.VariablesRequest:
		resp = &dap.VariablesResponse{}
	case *dap.SetBreakpointsRequest:
		resp = &dap.SetBreakpointsResponse{}
	case *dap.ContinueRequest:
		resp = &dap.ContinueResponse{}
	case *dap.NextRequest:
		resp = &dap.NextResponse{}
	case *dap.PauseRequest:
		resp = &dap.PauseResponse{}
	default:
		return Failure(req, "unsupported by fake adapter")
	}
	resp.GetResponse().Success = true
	return resp
}

// Failure returns a failed response carrying message
func Failure(req dap.RequestMessage, message string) dap.ResponseMessage {
	r := req.GetRequest()
	return dapclient.NewErrorResponse(r.Seq, r.Command, message)
}

// Reject is a handler that fails every request with message
func Reject(message string) Handler {
	return func(req dap.RequestMessage) dap.ResponseMessage {
		return Failure(req, message)
	}
}

// Hang is a handler that never answers
func Hang() Handler {
	return func(dap.RequestMessage) dap.ResponseMessage {
		return nil
	}
}

// Threads answers threads requests with the given threads
func Threads(threads ...dap.Thread) Handler {
	return func(req dap.RequestMessage) dap.ResponseMessage {
		resp := &dap.ThreadsResponse{}
		resp.Success = true
		resp.Body.Threads = append([]dap.Thread{}, threads...)
		return resp
	}
}

// Frames answers stackTrace requests with the given frames
func Frames(frames ...dap.StackFrame) Handler {
	return func(req dap.RequestMessage) dap.ResponseMessage {
		resp := &dap.StackTraceResponse{}
		resp.Success = true
		resp.Body.StackFrames = append([]dap.StackFrame{}, frames...)
		resp.Body.TotalFrames = len(frames)
		return resp
	}
}

// Event builds an event with name
func Event(name string) dap.Event {
	return dap.Event{
		ProtocolMessage: dap.ProtocolMessage{Type: "event"},
		Event:           name,
	}
}

// Stopped builds a stopped event
func Stopped(reason string, threadID int) *dap.StoppedEvent {
	return &dap.StoppedEvent{
		Event: Event("stopped"),
		Body:  dap.StoppedEventBody{Reason: reason, ThreadId: threadID},
	}
}

// Continued builds a continued event
func Continued(threadID int) *dap.ContinuedEvent {
	return &dap.ContinuedEvent{
		Event: Event("continued"),
		Body:  dap.ContinuedEventBody{ThreadId: threadID},
	}
}

// Terminated builds a terminated event
func Terminated() *dap.TerminatedEvent {
	return &dap.TerminatedEvent{Event: Event("terminated")}
}

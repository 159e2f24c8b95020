package dap

import (
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/google/go-dap"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/ctagard/dapclient/internal/errors"
)

// ErrClosed is the cause reported after Close was called locally.
var ErrClosed = stderrors.New("dap channel closed")

// EventHandler receives events sent by the adapter. It runs on the read loop.
type EventHandler func(dap.EventMessage)

// RequestHandler answers a request initiated by the adapter. It runs on the
// read loop. Returning nil answers with a failed "not supported" response.
type RequestHandler func(dap.RequestMessage) dap.ResponseMessage

// Future is the pending result of a request sent through a Channel
type Future struct {
	command string
	seq     int

	done chan struct{}
	once sync.Once
	resp dap.ResponseMessage
	err  error
}

func newFuture(command string) *Future {
	return &Future{command: command, done: make(chan struct{})}
}

func (f *Future) complete(resp dap.ResponseMessage, err error) {
	f.once.Do(func() {
		f.resp = resp
		f.err = err
		close(f.done)
	})
}

// Command returns the request command
func (f *Future) Command() string { return f.command }

// Seq returns the sequence number assigned to the request, 0 if it was never sent
func (f *Future) Seq() int { return f.seq }

// Done is closed once the response arrived or the request failed
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the future resolves. There is no timeout.
func (f *Future) Wait() (dap.ResponseMessage, error) {
	<-f.done
	return f.resp, f.err
}

// Channel correlates requests with responses over a Transport and
// dispatches everything else the adapter sends.
//
// Handlers run on the read loop goroutine. They must not call Call (or any
// Client method): the response they would wait for can only be delivered by
// the loop they are blocking.
//
// Lock order is Transport.mu then Channel.mu. Channel.mu is never held while
// writing, and the read loop never writes, so it keeps draining the stream
// while writers are blocked.
type Channel struct {
	transport *Transport
	log       zerolog.Logger

	mu      sync.Mutex
	pending map[int]*Future
	closing bool
	closed  bool
	err     error

	// replies to adapter requests, written by replyLoop
	replyMu    sync.Mutex
	replies    []dap.ResponseMessage
	replyReady chan struct{}

	handlerMu sync.RWMutex
	onEvent   EventHandler
	onRequest RequestHandler

	done chan struct{}
}

// ChannelOption configures a Channel
type ChannelOption func(*Channel)

// WithLogger sets the logger used for protocol diagnostics
func WithLogger(logger zerolog.Logger) ChannelOption {
	return func(c *Channel) {
		c.log = logger
	}
}

// NewChannel creates a channel and starts its read loop
func NewChannel(transport *Transport, opts ...ChannelOption) *Channel {
	c := &Channel{
		transport: transport,
		log:       log.Logger,
		pending:    make(map[int]*Future),
		replyReady: make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.readLoop()
	go c.replyLoop()

	return c
}

// OnEvent sets the handler for adapter events
func (c *Channel) OnEvent(handler EventHandler) {
	c.handlerMu.Lock()
	c.onEvent = handler
	c.handlerMu.Unlock()
}

// OnRequest sets the handler for adapter-initiated requests
func (c *Channel) OnRequest(handler RequestHandler) {
	c.handlerMu.Lock()
	c.onRequest = handler
	c.handlerMu.Unlock()
}

// Send assigns the next sequence number to req, writes it, and returns a
// future for its response. It never blocks on the read loop.
func (c *Channel) Send(req dap.RequestMessage) *Future {
	r := req.GetRequest()
	f := newFuture(r.Command)

	registered := false
	err := c.transport.Send(req, func(seq int) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			return c.err
		}
		r.Seq = seq
		r.Type = "request"
		f.seq = seq
		c.pending[seq] = f
		registered = true
		return nil
	})
	if err == nil {
		c.log.Trace().Int("seq", f.seq).Str("command", r.Command).Msg("dap request")
		return f
	}
	if !registered {
		f.complete(nil, err)
		return f
	}

	c.mu.Lock()
	delete(c.pending, f.seq)
	c.mu.Unlock()
	f.complete(nil, errors.TransportFailed(err))
	// A failed write leaves the stream unusable; closing it ends the read loop.
	_ = c.transport.Close()

	return f
}

// Call sends req and blocks until its response arrives or the channel fails.
// Never call it from an event or request handler.
func (c *Channel) Call(req dap.RequestMessage) (dap.ResponseMessage, error) {
	return c.Send(req).Wait()
}

// Done is closed when the read loop has stopped
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Err returns the failure that stopped the channel, nil while it runs
func (c *Channel) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close closes the transport. The read loop then fails every outstanding
// request and delivers the terminal event. Close does not wait for the loop,
// so it is safe to call from a handler.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed || c.closing {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	c.mu.Unlock()

	return c.transport.Close()
}

func (c *Channel) readLoop() {
	for {
		content, err := c.transport.ReceiveRaw()
		if err != nil {
			c.shutdown(err)
			return
		}
		c.dispatch(content)
	}
}

func (c *Channel) shutdown(cause error) {
	c.mu.Lock()
	if c.closing {
		cause = ErrClosed
	}
	c.closed = true
	c.err = errors.TransportFailed(cause)
	pending := c.pending
	c.pending = make(map[int]*Future)
	err := c.err
	c.mu.Unlock()

	if cause == ErrClosed {
		c.log.Debug().Msg("dap channel closed")
	} else {
		c.log.Warn().Err(cause).Int("pending", len(pending)).Msg("dap transport failed")
	}

	for _, f := range pending {
		f.complete(nil, err)
	}
	_ = c.transport.Close()

	c.deliverEvent(&dap.TerminatedEvent{
		Event: dap.Event{
			ProtocolMessage: dap.ProtocolMessage{Type: "event"},
			Event:           "terminated",
		},
	})

	close(c.done)
}

func (c *Channel) dispatch(content []byte) {
	msg, err := dap.DecodeProtocolMessage(content)
	if err != nil {
		c.handleUndecodable(content, err)
		return
	}

	switch m := msg.(type) {
	case dap.ResponseMessage:
		c.handleResponse(m)
	case dap.EventMessage:
		c.log.Trace().Str("event", m.GetEvent().Event).Msg("dap event")
		c.deliverEvent(m)
	case dap.RequestMessage:
		c.handleRequest(m)
	default:
		c.log.Warn().Str("type", fmt.Sprintf("%T", msg)).Msg("ignoring unexpected DAP message")
	}
}

func (c *Channel) handleResponse(m dap.ResponseMessage) {
	r := m.GetResponse()

	c.mu.Lock()
	f, ok := c.pending[r.RequestSeq]
	if ok {
		delete(c.pending, r.RequestSeq)
	}
	c.mu.Unlock()

	if !ok {
		c.log.Warn().
			Int("request_seq", r.RequestSeq).
			Str("command", r.Command).
			Msg("response does not match an outstanding request")
		return
	}

	c.log.Trace().Int("request_seq", r.RequestSeq).Str("command", r.Command).Bool("success", r.Success).Msg("dap response")
	f.complete(m, nil)
}

func (c *Channel) deliverEvent(m dap.EventMessage) {
	c.handlerMu.RLock()
	handler := c.onEvent
	c.handlerMu.RUnlock()

	if handler != nil {
		handler(m)
	}
}

func (c *Channel) handleRequest(m dap.RequestMessage) {
	req := m.GetRequest()

	c.handlerMu.RLock()
	handler := c.onRequest
	c.handlerMu.RUnlock()

	var resp dap.ResponseMessage
	if handler != nil {
		resp = handler(m)
	}
	if resp == nil {
		resp = NewErrorResponse(req.Seq, req.Command, fmt.Sprintf("%s is not supported", req.Command))
	}
	c.respond(req.Seq, req.Command, resp)
}

// handleUndecodable deals with frames go-dap cannot decode, typically
// commands or events this client does not know. Requests still get an answer.
func (c *Channel) handleUndecodable(content []byte, err error) {
	kind := gjson.GetBytes(content, "type").String()
	if kind != "request" {
		c.log.Warn().Err(err).Str("type", kind).Msg("ignoring undecodable DAP message")
		return
	}

	seq := int(gjson.GetBytes(content, "seq").Int())
	command := gjson.GetBytes(content, "command").String()
	c.log.Warn().Err(err).Int("seq", seq).Str("command", command).Msg("rejecting unknown adapter request")
	c.respond(seq, command, NewErrorResponse(seq, command, fmt.Sprintf("%s is not supported", command)))
}

// respond queues resp for replyLoop. The read loop must not write itself.
func (c *Channel) respond(requestSeq int, command string, resp dap.ResponseMessage) {
	r := resp.GetResponse()
	r.Type = "response"
	r.RequestSeq = requestSeq
	r.Command = command

	c.replyMu.Lock()
	c.replies = append(c.replies, resp)
	c.replyMu.Unlock()

	select {
	case c.replyReady <- struct{}{}:
	default:
	}
}

func (c *Channel) replyLoop() {
	for {
		select {
		case <-c.replyReady:
		case <-c.done:
			return
		}

		c.replyMu.Lock()
		replies := c.replies
		c.replies = nil
		c.replyMu.Unlock()

		for _, resp := range replies {
			r := resp.GetResponse()
			err := c.transport.Send(resp, func(seq int) error {
				r.Seq = seq
				return nil
			})
			if err != nil {
				c.log.Warn().Err(err).Str("command", r.Command).Msg("failed to answer adapter request")
			}
		}
	}
}

// NewErrorResponse builds a failed response to the request with the given seq
func NewErrorResponse(requestSeq int, command, message string) *dap.ErrorResponse {
	return &dap.ErrorResponse{
		Response: dap.Response{
			ProtocolMessage: dap.ProtocolMessage{Type: "response"},
			Command:         command,
			RequestSeq:      requestSeq,
			Success:         false,
			Message:         message,
		},
	}
}

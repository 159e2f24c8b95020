package dap_test

import (
	"bufio"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-dap"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dapclient "github.com/ctagard/dapclient/internal/dap"
	"github.com/ctagard/dapclient/internal/daptest"
	"github.com/ctagard/dapclient/internal/errors"
)

func newChannel(t *testing.T) (*daptest.Adapter, *dapclient.Channel) {
	t.Helper()
	adapter, transport := daptest.New(t)
	return adapter, dapclient.NewChannel(transport, dapclient.WithLogger(zerolog.Nop()))
}

func threadsRequest() *dap.ThreadsRequest {
	return &dap.ThreadsRequest{Request: dap.Request{Command: "threads"}}
}

func waitClosed(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}

func TestChannelAssignsIncreasingSeq(t *testing.T) {
	adapter, ch := newChannel(t)

	for i := 0; i < 3; i++ {
		_, err := ch.Call(threadsRequest())
		require.NoError(t, err)
	}

	reqs := adapter.Requests("threads")
	require.Len(t, reqs, 3)
	for i, req := range reqs {
		assert.Equal(t, i+1, req.GetRequest().Seq)
		assert.Equal(t, "request", req.GetRequest().Type)
	}
}

func TestChannelCorrelatesConcurrentRequests(t *testing.T) {
	adapter, ch := newChannel(t)
	adapter.Handle("stackTrace", func(req dap.RequestMessage) dap.ResponseMessage {
		args := req.(*dap.StackTraceRequest).Arguments
		resp := &dap.StackTraceResponse{}
		resp.Success = true
		resp.Body.StackFrames = []dap.StackFrame{{Id: args.ThreadId * 100, Name: "main"}}
		return resp
	})

	var wg sync.WaitGroup
	for id := 1; id <= 10; id++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			resp, err := ch.Call(&dap.StackTraceRequest{
				Request:   dap.Request{Command: "stackTrace"},
				Arguments: dap.StackTraceArguments{ThreadId: id},
			})
			if !assert.NoError(t, err) {
				return
			}
			frames := resp.(*dap.StackTraceResponse).Body.StackFrames
			assert.Equal(t, id*100, frames[0].Id)
		}(id)
	}
	wg.Wait()
}

func TestChannelIgnoresUnmatchedResponse(t *testing.T) {
	adapter, ch := newChannel(t)

	stray := &dap.ThreadsResponse{}
	stray.Command = "threads"
	stray.RequestSeq = 999
	stray.Success = true
	require.NoError(t, adapter.Send(stray))

	_, err := ch.Call(threadsRequest())
	require.NoError(t, err)
	assert.Nil(t, ch.Err())
}

func TestChannelTransportFailure(t *testing.T) {
	adapter, ch := newChannel(t)
	adapter.Handle("threads", daptest.Hang())

	var terminated atomic.Int32
	ch.OnEvent(func(m dap.EventMessage) {
		if _, ok := m.(*dap.TerminatedEvent); ok {
			terminated.Add(1)
		}
	})

	future := ch.Send(threadsRequest())
	require.Eventually(t, func() bool {
		return len(adapter.Requests("threads")) == 1
	}, time.Second, 5*time.Millisecond)

	adapter.Close()

	_, err := future.Wait()
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.CodeTransportFailed))

	waitClosed(t, ch.Done())
	assert.Equal(t, int32(1), terminated.Load())
	assert.True(t, errors.HasCode(ch.Err(), errors.CodeTransportFailed))

	_, err = ch.Call(threadsRequest())
	assert.True(t, errors.HasCode(err, errors.CodeTransportFailed))
	assert.Equal(t, int32(1), terminated.Load())
}

func TestChannelCloseFromHandler(t *testing.T) {
	adapter, ch := newChannel(t)
	ch.OnEvent(func(m dap.EventMessage) {
		if _, ok := m.(*dap.StoppedEvent); ok {
			_ = ch.Close()
		}
	})

	require.NoError(t, adapter.Send(daptest.Stopped("pause", 1)))

	waitClosed(t, ch.Done())
	assert.ErrorIs(t, ch.Err(), dapclient.ErrClosed)
}

func TestChannelRejectsAdapterRequestWithoutHandler(t *testing.T) {
	adapter, _ := newChannel(t)

	req := &dap.RunInTerminalRequest{
		Request:   dap.Request{Command: "runInTerminal"},
		Arguments: dap.RunInTerminalRequestArguments{Args: []string{"python", "app.py"}},
	}
	require.NoError(t, adapter.Send(req))

	select {
	case resp := <-adapter.Responses():
		r := resp.GetResponse()
		assert.False(t, r.Success)
		assert.Equal(t, req.Seq, r.RequestSeq)
		assert.Equal(t, "runInTerminal", r.Command)
		assert.Contains(t, r.Message, "not supported")
	case <-time.After(2 * time.Second):
		t.Fatal("no response to runInTerminal")
	}
}

func TestChannelRequestHandler(t *testing.T) {
	adapter, ch := newChannel(t)
	ch.OnRequest(func(m dap.RequestMessage) dap.ResponseMessage {
		return dapclient.NewErrorResponse(m.GetRequest().Seq, m.GetRequest().Command, "no terminals here")
	})

	require.NoError(t, adapter.Send(&dap.RunInTerminalRequest{Request: dap.Request{Command: "runInTerminal"}}))

	select {
	case resp := <-adapter.Responses():
		assert.Equal(t, "no terminals here", resp.GetResponse().Message)
	case <-time.After(2 * time.Second):
		t.Fatal("no response to runInTerminal")
	}
}

func TestChannelAnswersUndecodableRequest(t *testing.T) {
	adapter, ch := newChannel(t)

	require.NoError(t, adapter.SendRaw([]byte(`{"seq":41,"type":"request","command":"fancyNewThing","arguments":{}}`)))

	select {
	case resp := <-adapter.Responses():
		r := resp.GetResponse()
		assert.False(t, r.Success)
		assert.Equal(t, 41, r.RequestSeq)
		assert.Equal(t, "fancyNewThing", r.Command)
	case <-time.After(2 * time.Second):
		t.Fatal("no response to unknown request")
	}

	_, err := ch.Call(threadsRequest())
	assert.NoError(t, err)
}

func TestChannelSkipsUndecodableEvent(t *testing.T) {
	adapter, ch := newChannel(t)

	var events atomic.Int32
	ch.OnEvent(func(dap.EventMessage) { events.Add(1) })

	require.NoError(t, adapter.SendRaw([]byte(`{"seq":3,"type":"event","event":"somethingCustom","body":{}}`)))

	_, err := ch.Call(threadsRequest())
	require.NoError(t, err)
	assert.Equal(t, int32(0), events.Load())
}

// pipeAdapter is the adapter end of a net.Pipe driven step by step by the
// test. Every read and write fails instead of hanging once the deadline passes.
type pipeAdapter struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
	seq    int
}

func newPipeChannel(t *testing.T) (*pipeAdapter, *dapclient.Channel) {
	t.Helper()
	server, client := net.Pipe()
	require.NoError(t, server.SetDeadline(time.Now().Add(5*time.Second)))
	ch := dapclient.NewChannel(dapclient.NewTransport(client), dapclient.WithLogger(zerolog.Nop()))
	t.Cleanup(func() {
		_ = server.Close()
		_ = ch.Close()
	})
	return &pipeAdapter{t: t, conn: server, reader: bufio.NewReader(server)}, ch
}

func (p *pipeAdapter) read() dap.Message {
	p.t.Helper()
	msg, err := dap.ReadProtocolMessage(p.reader)
	require.NoError(p.t, err, "client stopped writing")
	return msg
}

func (p *pipeAdapter) write(msg dap.Message) {
	p.t.Helper()
	p.seq++
	switch m := msg.(type) {
	case dap.EventMessage:
		m.GetEvent().Seq = p.seq
		m.GetEvent().Type = "event"
	case dap.RequestMessage:
		m.GetRequest().Seq = p.seq
		m.GetRequest().Type = "request"
	case dap.ResponseMessage:
		m.GetResponse().Seq = p.seq
		m.GetResponse().Type = "response"
	}
	require.NoError(p.t, dap.WriteProtocolMessage(p.conn, msg), "client stopped reading")
}

func (p *pipeAdapter) answer(msg dap.Message) {
	p.t.Helper()
	req, ok := msg.(dap.RequestMessage)
	require.True(p.t, ok, "expected a request, got %T", msg)
	resp := daptest.Success(req)
	resp.GetResponse().RequestSeq = req.GetRequest().Seq
	resp.GetResponse().Command = req.GetRequest().Command
	p.write(resp)
}

func outputEvent(text string) *dap.OutputEvent {
	return &dap.OutputEvent{
		Event: daptest.Event("output"),
		Body:  dap.OutputEventBody{Category: "stdout", Output: text},
	}
}

func TestChannelDrainsWhileSendersBlock(t *testing.T) {
	adapter, ch := newPipeChannel(t)

	events := make(chan string, 8)
	ch.OnEvent(func(m dap.EventMessage) {
		if e, ok := m.(*dap.OutputEvent); ok {
			events <- e.Body.Output
		}
	})

	const senders = 3
	futures := make(chan *dapclient.Future, senders)
	for range senders {
		go func() { futures <- ch.Send(threadsRequest()) }()
	}

	// Each round answers one request and pushes an event before reading
	// the next one, while the remaining senders are stuck writing.
	for i := range senders {
		adapter.answer(adapter.read())
		adapter.write(outputEvent(fmt.Sprintf("line %d", i)))

		select {
		case got := <-events:
			assert.Equal(t, fmt.Sprintf("line %d", i), got)
		case <-time.After(2 * time.Second):
			t.Fatalf("event %d never delivered", i)
		}
	}

	seqs := map[int]bool{}
	for range senders {
		var f *dapclient.Future
		select {
		case f = <-futures:
		case <-time.After(2 * time.Second):
			t.Fatal("send never returned")
		}
		waitClosed(t, f.Done())
		resp, err := f.Wait()
		require.NoError(t, err)
		assert.True(t, resp.GetResponse().Success)
		seqs[f.Seq()] = true
	}
	assert.Equal(t, map[int]bool{1: true, 2: true, 3: true}, seqs)
}

func TestChannelReplyDoesNotBlockReadLoop(t *testing.T) {
	adapter, ch := newPipeChannel(t)

	events := make(chan string, 1)
	ch.OnEvent(func(m dap.EventMessage) {
		if e, ok := m.(*dap.OutputEvent); ok {
			events <- e.Body.Output
		}
	})

	adapter.write(&dap.RunInTerminalRequest{Request: dap.Request{Command: "runInTerminal"}})
	// The reply is not read yet; the event must still get through.
	adapter.write(outputEvent("after request"))

	select {
	case got := <-events:
		assert.Equal(t, "after request", got)
	case <-time.After(2 * time.Second):
		t.Fatal("event behind an unanswered reply never delivered")
	}

	resp, ok := adapter.read().(dap.ResponseMessage)
	require.True(t, ok)
	assert.False(t, resp.GetResponse().Success)
	assert.Equal(t, "runInTerminal", resp.GetResponse().Command)
	assert.Equal(t, 1, resp.GetResponse().RequestSeq)

	sent := make(chan *dapclient.Future, 1)
	go func() { sent <- ch.Send(threadsRequest()) }()
	adapter.answer(adapter.read())
	_, err := (<-sent).Wait()
	require.NoError(t, err)
}

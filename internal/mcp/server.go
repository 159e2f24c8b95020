// Package mcp provides the Model Context Protocol (MCP) server implementation.
//
// This package exposes one debug target through MCP tools that can be used
// by AI assistants and other MCP clients.
//
// Session (always available):
//   - session_launch: Spawn or connect to a debug adapter and start the session
//   - session_status: Session state and recent debug events
//   - session_terminate: End the session
//
// Inspection (always available):
//   - threads_list, stack_frames, frame_variables, variables_expand
//   - breakpoints_list: Host breakpoints and the lines pushed to the adapter
//
// Control (full mode only):
//   - breakpoint_add, breakpoint_remove, breakpoint_enable, breakpoints_global
//   - thread_continue, thread_step_over, session_suspend
package mcp

import (
	"context"
	"io"
	stdlog "log"
	"sync"

	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ctagard/dapclient/internal/breakpoints"
	"github.com/ctagard/dapclient/internal/config"
	"github.com/ctagard/dapclient/internal/errors"
	"github.com/ctagard/dapclient/internal/target"
	"github.com/ctagard/dapclient/internal/version"
)

const serverName = "dapclient"

// Server wraps the MCP server with debugging capabilities
type Server struct {
	mcpServer *server.MCPServer
	config    *config.Config
	registry  *breakpoints.Registry
	events    *eventRecorder
	log       zerolog.Logger

	// launchMu serializes session_launch so at most one target exists
	launchMu sync.Mutex

	mu     sync.RWMutex
	target *target.Target
}

// NewServer creates a new dapclient MCP server
func NewServer(cfg *config.Config) *Server {
	mcpServer := server.NewMCPServer(
		serverName,
		version.Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	s := &Server{
		mcpServer: mcpServer,
		config:    cfg,
		registry:  breakpoints.New(),
		events:    newEventRecorder(),
		log:       log.With().Str("component", "mcp").Logger(),
	}

	s.registerTools()

	return s
}

// Serve speaks MCP over in and out until ctx is done or in is exhausted
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcpServer)
	stdio.SetErrorLogger(stdlog.New(s.log, "", 0))
	return stdio.Listen(ctx, in, out)
}

// Close terminates the current session, if any
func (s *Server) Close() {
	if t := s.current(); t != nil {
		if err := t.Terminate(); err != nil {
			s.log.Warn().Err(err).Msg("terminate on close failed")
		}
	}
}

// MCPServer returns the underlying MCP server
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// Registry returns the host breakpoint registry
func (s *Server) Registry() *breakpoints.Registry {
	return s.registry
}

func (s *Server) current() *target.Target {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.target
}

func (s *Server) setCurrent(t *target.Target) {
	s.mu.Lock()
	s.target = t
	s.mu.Unlock()
}

// liveTarget returns the session that tools act on. A terminated session
// still answers status queries but nothing else.
func (s *Server) liveTarget() (*target.Target, error) {
	t := s.current()
	if t == nil {
		return nil, errors.NoSession()
	}
	if t.IsTerminated() {
		return nil, errors.SessionTerminated(t.Name())
	}
	return t, nil
}

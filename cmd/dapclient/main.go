package main

import (
	"context"
	stderrors "errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ctagard/dapclient/internal/config"
	"github.com/ctagard/dapclient/internal/logging"
	"github.com/ctagard/dapclient/internal/mcp"
	"github.com/ctagard/dapclient/internal/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "dapclient: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to configuration file (.json, .yaml, .yml or .toml)")
	mode := flag.String("mode", "", "Capability mode: 'readonly' or 'full' (overrides the configuration file)")
	logLevel := flag.String("log-level", "", "Log level: trace, debug, info, warn, error or off")
	showVersion := flag.Bool("version", false, "Show version and exit")
	help := flag.Bool("help", false, "Show help and exit")

	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return nil
	}

	if *help {
		printHelp()
		return nil
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	switch config.CapabilityMode(*mode) {
	case "":
	case config.ModeReadOnly, config.ModeFull:
		cfg.Mode = config.CapabilityMode(*mode)
	default:
		return fmt.Errorf("invalid -mode %q: use 'readonly' or 'full'", *mode)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	// stdout carries MCP, so logs go to stderr only
	logging.ConfigureRuntime(cfg.Logging.Level, cfg.Logging.JSON)

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithCancel(sigCtx)
	defer cancel()

	server := mcp.NewServer(cfg)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		log.Info().Str("version", version.Version).Str("mode", string(cfg.Mode)).Msg("dapclient server starting")
		return server.Serve(ctx, os.Stdin, os.Stdout)
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		server.Close()
		return nil
	})

	if err := g.Wait(); err != nil && !stderrors.Is(err, context.Canceled) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

func printHelp() {
	fmt.Println(`dapclient: Debug Adapter Protocol client exposed as an MCP server

Drives one debug session against any DAP debug adapter, either spawned
(speaking DAP on its stdin/stdout) or reached over TCP.

USAGE:
    dapclient [OPTIONS]

OPTIONS:
    -config <path>      Path to configuration file (.json, .yaml, .yml, .toml)
    -mode <mode>        Capability mode: 'readonly' or 'full'
    -log-level <level>  Log level (default: info)
    -version            Show version and exit
    -help               Show this help message

ENVIRONMENT:
    DAPCLIENT_LOG_LEVEL, DAPCLIENT_LOG_JSON, DAPCLIENT_LOG_NOCOLOR,
    DAPCLIENT_LOG_TIMESTAMP override the logging configuration.

CONFIGURATION (YAML example):

    mode: full
    allowSpawn: true
    allowConnect: true
    logging:
      level: info
    launch:
      mode: launch
      command: dlv
      args: [dap]
      params:
        type: go
        program: ./cmd/app

TOOLS:
    Session:
        session_launch        Spawn or connect to an adapter and start the session
        session_status        Session state and recent events
        session_terminate     End the session

    Inspection:
        threads_list          List threads
        stack_frames          Top stack frames of a thread
        frame_variables       Scopes of a frame
        variables_expand      Children of a scope or variable
        breakpoints_list      Host breakpoints and pushed lines

    Control (full mode only):
        breakpoint_add, breakpoint_remove, breakpoint_enable,
        breakpoints_global, thread_continue, thread_step_over,
        session_suspend`)
}

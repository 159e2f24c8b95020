// Package launch establishes the connection to a debug adapter and starts a
// debug target on it. An adapter is either spawned and spoken to over its
// stdio, or reached over TCP where it already listens.
package launch

import (
	"bytes"
	"context"
	"encoding/json"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/ctagard/dapclient/internal/dap"
	"github.com/ctagard/dapclient/internal/errors"
	"github.com/ctagard/dapclient/internal/target"
	"github.com/ctagard/dapclient/pkg/types"
)

// Mode selects how the adapter is reached
type Mode string

const (
	// ModeLaunch spawns the adapter and talks to it over stdin/stdout
	ModeLaunch Mode = "launch"
	// ModeConnect dials an adapter that already listens on host:port
	ModeConnect Mode = "connect"
)

// Config describes one debug session
type Config struct {
	Mode    Mode              `json:"mode" yaml:"mode" toml:"mode"`
	Command string            `json:"command,omitempty" yaml:"command,omitempty" toml:"command,omitempty"`
	Args    []string          `json:"args,omitempty" yaml:"args,omitempty" toml:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty" yaml:"env,omitempty" toml:"env,omitempty"`
	Cwd     string            `json:"cwd,omitempty" yaml:"cwd,omitempty" toml:"cwd,omitempty"`
	Host    string            `json:"host,omitempty" yaml:"host,omitempty" toml:"host,omitempty"`
	Port    int               `json:"port,omitempty" yaml:"port,omitempty" toml:"port,omitempty"`

	// Params are the launch or attach arguments passed to the adapter.
	// "type" becomes the adapter id, "program" the target name and
	// "request" selects attach over the default launch.
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty" toml:"params,omitempty"`
}

// Validate checks that the configuration can be used for its mode
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeLaunch:
		if c.Command == "" {
			return errors.MissingParameter("command", "The debug adapter executable to spawn, e.g. 'dlv' or 'python3'.")
		}
	case ModeConnect:
		if c.Host == "" {
			return errors.MissingParameter("host", "The host the debug adapter listens on, e.g. '127.0.0.1'.")
		}
		if c.Port < 1 || c.Port > 65535 {
			return errors.InvalidParameter("port", c.Port, "a TCP port between 1 and 65535")
		}
	default:
		return errors.InvalidParameter("mode", c.Mode, "'launch' or 'connect'")
	}

	if req, ok := c.Params["request"]; ok && req != "launch" && req != "attach" {
		return errors.InvalidParameter("params.request", req, "'launch' or 'attach'")
	}
	return nil
}

// Address returns host:port for connect mode
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// TargetConfig derives the session parameters. In run mode launch requests
// carry noDebug so the debuggee runs without stopping.
func (c *Config) TargetConfig(mode types.RunMode) (target.Config, error) {
	raw := []byte("{}")
	if len(c.Params) > 0 {
		var err error
		if raw, err = json.Marshal(c.Params); err != nil {
			return target.Config{}, errors.InvalidJSON("params", err, `{"type": "go", "program": "./main.go"}`)
		}
	}

	request := gjson.GetBytes(raw, "request").String()
	if request == "" {
		request = "launch"
	}

	if request == "launch" {
		var err error
		if raw, err = sjson.SetBytes(raw, "noDebug", mode == types.RunModeRun); err != nil {
			return target.Config{}, errors.InvalidJSON("params", err, `{"program": "./main.go"}`)
		}
	}

	adapterID := gjson.GetBytes(raw, "type").String()
	if adapterID == "" && c.Command != "" {
		adapterID = filepath.Base(c.Command)
	}

	name := gjson.GetBytes(raw, "program").String()
	if name == "" {
		name = gjson.GetBytes(raw, "name").String()
	}

	return target.Config{
		AdapterID: adapterID,
		Name:      name,
		Request:   request,
		Arguments: raw,
	}, nil
}

// Start reaches the adapter and runs the target startup sequence. If ctx is
// cancelled before startup completes the connection is dropped and startup
// fails. On any failure the spawned adapter process is killed.
func Start(ctx context.Context, cfg Config, mode types.RunMode, opts ...target.Option) (*target.Target, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tcfg, err := cfg.TargetConfig(mode)
	if err != nil {
		return nil, err
	}

	logger := log.With().Str("component", "launch").Str("mode", string(cfg.Mode)).Logger()

	var transport *dap.Transport
	switch cfg.Mode {
	case ModeConnect:
		addr := cfg.Address()
		logger.Info().Str("address", addr).Msg("connecting to debug adapter")
		transport, err = dap.NewTCPTransport(ctx, addr)
		if err != nil {
			return nil, errors.AdapterConnectFailed(addr, err)
		}
	default:
		var cmd *exec.Cmd
		transport, cmd, err = spawn(cfg, logger)
		if err != nil {
			return nil, err
		}
		opts = append(opts, target.WithProcess(cmd))
	}

	client := dap.NewClient(transport, dap.WithLogger(logger))
	stop := context.AfterFunc(ctx, func() {
		logger.Warn().Msg("startup cancelled, closing adapter connection")
		_ = client.Close()
	})
	defer stop()

	return target.New(client, tcfg, opts...)
}

// spawn starts the adapter in its own process group with DAP on its stdio
func spawn(cfg Config, logger zerolog.Logger) (*dap.Transport, *exec.Cmd, error) {
	cmd := exec.Command(cfg.Command, cfg.Args...)
	cmd.Dir = cfg.Cwd
	cmd.Env = os.Environ()
	for _, k := range sortedKeys(cfg.Env) {
		cmd.Env = append(cmd.Env, k+"="+cfg.Env[k])
	}
	dap.SetProcAttr(cmd)

	// Plain pipes: cmd.Wait must not close the stream the read loop owns.
	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return nil, nil, errors.AdapterSpawnFailed(cfg.Command, err)
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		stdinR.Close()
		stdinW.Close()
		return nil, nil, errors.AdapterSpawnFailed(cfg.Command, err)
	}
	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW
	cmd.Stderr = &stderrLogger{log: logger.With().Str("adapter", filepath.Base(cfg.Command)).Logger()}

	logger.Info().Str("command", cfg.Command).Strs("args", cfg.Args).Msg("spawning debug adapter")
	startErr := cmd.Start()

	// The child holds its own copies now
	stdinR.Close()
	stdoutW.Close()

	if startErr != nil {
		stdinW.Close()
		stdoutR.Close()
		return nil, nil, errors.AdapterSpawnFailed(cfg.Command, startErr)
	}

	return dap.NewStdioTransport(stdinW, stdoutR), cmd, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// stderrLogger logs the adapter's stderr one line at a time
type stderrLogger struct {
	log zerolog.Logger

	mu  sync.Mutex
	buf bytes.Buffer
}

func (w *stderrLogger) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf.Write(p)
	for {
		line, err := w.buf.ReadBytes('\n')
		if err != nil {
			// incomplete line, keep it for the next write
			rest := append([]byte(nil), line...)
			w.buf.Reset()
			w.buf.Write(rest)
			return len(p), nil
		}
		w.log.Debug().Msg(string(bytes.TrimRight(line, "\r\n")))
	}
}

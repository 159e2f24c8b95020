// Package config provides configuration management for the dapclient server.
//
// Configuration controls:
//   - Capability mode (readonly vs full): determines which tools are available
//   - Permission flags: whether adapters may be spawned or connected to
//   - Logging: level and output format
//   - An optional default session used when a launch names none
//
// Configuration is read from a JSON, YAML or TOML file chosen by extension,
// or defaults are used.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/ctagard/dapclient/internal/errors"
	"github.com/ctagard/dapclient/internal/launch"
)

// CapabilityMode defines the level of debugging capabilities exposed
type CapabilityMode string

const (
	ModeReadOnly CapabilityMode = "readonly" // Inspection tools only
	ModeFull     CapabilityMode = "full"     // All tools enabled
)

// Config holds the server configuration
type Config struct {
	Mode         CapabilityMode `json:"mode" yaml:"mode" toml:"mode"`
	AllowSpawn   bool           `json:"allowSpawn" yaml:"allowSpawn" toml:"allowSpawn"`
	AllowConnect bool           `json:"allowConnect" yaml:"allowConnect" toml:"allowConnect"`

	Logging LoggingConfig `json:"logging" yaml:"logging" toml:"logging"`

	// Launch is the session started when session_launch gets no adapter settings
	Launch *launch.Config `json:"launch,omitempty" yaml:"launch,omitempty" toml:"launch,omitempty"`
}

// LoggingConfig holds logger settings. Environment variables override them.
type LoggingConfig struct {
	Level string `json:"level" yaml:"level" toml:"level"`
	JSON  bool   `json:"json" yaml:"json" toml:"json"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Mode:         ModeFull,
		AllowSpawn:   true,
		AllowConnect: true,
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfig loads configuration from a file on top of the defaults
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}

	if err := DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.ConfigInvalid(path, err.Error())
	}
	return cfg, nil
}

// DecodeFile decodes a JSON, YAML or TOML file into v, picked by extension
func DecodeFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.ConfigInvalid(path, err.Error())
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(v)
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(v)
	case ".toml":
		var md toml.MetaData
		md, err = toml.Decode(string(data), v)
		if err == nil {
			if undecoded := md.Undecoded(); len(undecoded) > 0 {
				err = fmt.Errorf("unknown key %q", undecoded[0].String())
			}
		}
	default:
		return errors.ConfigInvalid(path, fmt.Sprintf("unsupported file extension %q, use .json, .yaml, .yml or .toml", ext))
	}
	if err != nil {
		return errors.ConfigInvalid(path, err.Error())
	}
	return nil
}

// Validate checks value ranges that decoding cannot
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeReadOnly, ModeFull:
	default:
		return fmt.Errorf("mode must be %q or %q, got %q", ModeReadOnly, ModeFull, c.Mode)
	}
	if c.Launch != nil {
		if err := c.Launch.Validate(); err != nil {
			return fmt.Errorf("launch: %w", err)
		}
	}
	return nil
}

// CanUseControlTools returns true if control tools are enabled
func (c *Config) CanUseControlTools() bool {
	return c.Mode == ModeFull
}

// CanSpawn returns true if spawning debug adapters is allowed
func (c *Config) CanSpawn() bool {
	return c.AllowSpawn
}

// CanConnect returns true if connecting to listening debug adapters is allowed
func (c *Config) CanConnect() bool {
	return c.AllowConnect
}

// Permits reports whether a session with the given launch mode may be started
func (c *Config) Permits(mode launch.Mode) bool {
	if mode == launch.ModeConnect {
		return c.CanConnect()
	}
	return c.CanSpawn()
}

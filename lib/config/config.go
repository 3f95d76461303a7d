// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// Environment represents the deployment environment.
type Environment string

const (
	// Development is for local play against netplay-devserver.
	Development Environment = "development"
	// Production is for clients shipped to players.
	Production Environment = "production"
)

// EnvPrefix is the prefix of every environment variable that overrides
// a configuration field, e.g. NETPLAY_SERVER_ENDPOINT.
const EnvPrefix = "NETPLAY_"

// Config is the master configuration for netplay binaries.
type Config struct {
	// Environment identifies the deployment type.
	Environment Environment `yaml:"environment"`

	// Server configures where and how the client connects.
	Server ServerConfig `yaml:"server"`

	// Sync configures the blend applied to extrapolated motion.
	Sync SyncConfig `yaml:"sync"`

	// Timing configures the periodic senders.
	Timing TimingConfig `yaml:"timing"`

	// Logging configures the structured logger.
	Logging LoggingConfig `yaml:"logging"`

	// DevServer configures netplay-devserver.
	DevServer DevServerConfig `yaml:"devserver"`

	// Per-environment overrides, applied after the base config.
	Development *Overrides `yaml:"development,omitempty"`
	Production  *Overrides `yaml:"production,omitempty"`
}

// Overrides contains the fields that may differ per environment.
type Overrides struct {
	Server  *ServerConfig  `yaml:"server,omitempty"`
	Logging *LoggingConfig `yaml:"logging,omitempty"`
}

// ServerConfig configures the signaling endpoint and ICE servers.
type ServerConfig struct {
	// Endpoint is the WebSocket URL of the game server's signaling
	// channel (ws:// or wss://).
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"`

	// ICEURLs are STUN/TURN server URLs used for candidate gathering.
	// Empty means host candidates only, which is enough on one machine
	// or one LAN.
	ICEURLs []string `yaml:"ice_urls" env:"ICE_URLS"`

	// ICEUsername and ICECredential authenticate against TURN URLs.
	ICEUsername   string `yaml:"ice_username" env:"ICE_USERNAME"`
	ICECredential string `yaml:"ice_credential" env:"ICE_CREDENTIAL"`
}

// SyncConfig holds the motion-vector blend tunables. The blend weight
// for an unsequenced vector update is
//
//	min(elapsed / (FrameInterval × ExtrapolationFrames), 1) × ExtrapolationWeight
//
// where elapsed is the time since the entity's last applied update.
type SyncConfig struct {
	FrameInterval       time.Duration `yaml:"frame_interval" env:"FRAME_INTERVAL"`
	ExtrapolationFrames int           `yaml:"extrapolation_frames" env:"EXTRAPOLATION_FRAMES"`
	ExtrapolationWeight float64       `yaml:"extrapolation_weight" env:"EXTRAPOLATION_WEIGHT"`
}

// TimingConfig holds the periods of the client's periodic senders.
type TimingConfig struct {
	// PingInterval is how often a round-trip probe is sent.
	PingInterval time.Duration `yaml:"ping_interval" env:"PING_INTERVAL"`

	// KeysInterval is how often the current key-state set is sent.
	KeysInterval time.Duration `yaml:"keys_interval" env:"KEYS_INTERVAL"`

	// StateInterval is how often the local player's motion state is sent.
	StateInterval time.Duration `yaml:"state_interval" env:"STATE_INTERVAL"`
}

// LoggingConfig configures the slog handler built by NewLogger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`

	// Format is text or json.
	Format string `yaml:"format" env:"FORMAT"`
}

// DevServerConfig configures netplay-devserver.
type DevServerConfig struct {
	// Listen is the TCP address the dev server's HTTP listener binds.
	Listen string `yaml:"listen" env:"LISTEN"`

	// Path is the HTTP path of the WebSocket upgrade handler.
	Path string `yaml:"path" env:"PATH"`

	// TickInterval is how often the dev server broadcasts a snapshot.
	TickInterval time.Duration `yaml:"tick_interval" env:"TICK_INTERVAL"`
}

// Default returns the default configuration. Defaults are a base that
// the config file and environment refine; every field has a usable
// value so tests can construct components from Default() directly.
func Default() *Config {
	return &Config{
		Environment: Development,
		Server: ServerConfig{
			Endpoint: "ws://127.0.0.1:7870/play",
		},
		Sync: SyncConfig{
			FrameInterval:       16 * time.Millisecond,
			ExtrapolationFrames: 4,
			ExtrapolationWeight: 0.5,
		},
		Timing: TimingConfig{
			PingInterval:  time.Second,
			KeysInterval:  50 * time.Millisecond,
			StateInterval: 50 * time.Millisecond,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		DevServer: DevServerConfig{
			Listen:       "127.0.0.1:7870",
			Path:         "/play",
			TickInterval: 100 * time.Millisecond,
		},
	}
}

// Load loads configuration from the file named by NETPLAY_CONFIG.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvPrefix + "CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("%sCONFIG environment variable not set; "+
			"set it to the path of your netplay.yaml config file, or use --config flag", EnvPrefix)
	}

	return LoadFile(configPath)
}

// LoadFile loads configuration from a YAML file, or a JSONC file when
// the extension is .json or .jsonc. Loading order: defaults, file,
// the section matching Environment, then NETPLAY_* variables.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()

	if err := cfg.applyEnvVars(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Resolve returns the configuration for a binary: the file at path if
// given, else the file named by NETPLAY_CONFIG if set, else the
// defaults refined by the environment section and NETPLAY_* variables.
func Resolve(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvPrefix + "CONFIG")
	}
	if path != "" {
		return LoadFile(path)
	}

	cfg := Default()
	cfg.applyEnvironmentOverrides()
	if err := cfg.applyEnvVars(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile merges a single configuration file into c.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		// JSON is a subset of YAML, so the stripped document goes
		// through the same decoder and the same struct tags.
		data = jsonc.ToJSON(data)
	}

	return yaml.Unmarshal(data, c)
}

// applyEnvironmentOverrides applies the section matching Environment.
func (c *Config) applyEnvironmentOverrides() {
	var overrides *Overrides

	switch c.Environment {
	case Development:
		overrides = c.Development
	case Production:
		overrides = c.Production
		// Production defaults: quieter, machine-readable logs.
		if overrides == nil {
			overrides = &Overrides{
				Logging: &LoggingConfig{Level: "warn", Format: "json"},
			}
		}
	}

	if overrides == nil {
		return
	}

	if overrides.Server != nil {
		if overrides.Server.Endpoint != "" {
			c.Server.Endpoint = overrides.Server.Endpoint
		}
		if len(overrides.Server.ICEURLs) > 0 {
			c.Server.ICEURLs = overrides.Server.ICEURLs
		}
		if overrides.Server.ICEUsername != "" {
			c.Server.ICEUsername = overrides.Server.ICEUsername
		}
		if overrides.Server.ICECredential != "" {
			c.Server.ICECredential = overrides.Server.ICECredential
		}
	}

	if overrides.Logging != nil {
		if overrides.Logging.Level != "" {
			c.Logging.Level = overrides.Logging.Level
		}
		if overrides.Logging.Format != "" {
			c.Logging.Format = overrides.Logging.Format
		}
	}
}

// applyEnvVars overrides individual fields from NETPLAY_<SECTION>_<FIELD>
// variables. Unset variables leave the field untouched.
func (c *Config) applyEnvVars() error {
	if value := os.Getenv(EnvPrefix + "ENVIRONMENT"); value != "" {
		c.Environment = Environment(value)
	}

	sections := []struct {
		prefix string
		target any
	}{
		{"SERVER_", &c.Server},
		{"SYNC_", &c.Sync},
		{"TIMING_", &c.Timing},
		{"LOG_", &c.Logging},
		{"DEVSERVER_", &c.DevServer},
	}
	for _, section := range sections {
		if err := env.ParseWithOptions(section.target, env.Options{Prefix: EnvPrefix + section.prefix}); err != nil {
			return fmt.Errorf("parsing %s%s* environment: %w", EnvPrefix, section.prefix, err)
		}
	}
	return nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Environment != Development && c.Environment != Production {
		errs = append(errs, fmt.Errorf("invalid environment: %s", c.Environment))
	}

	endpoint, err := url.Parse(c.Server.Endpoint)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("server.endpoint: %w", err))
	case endpoint.Scheme != "ws" && endpoint.Scheme != "wss":
		errs = append(errs, fmt.Errorf("server.endpoint must be a ws:// or wss:// URL, got %q", c.Server.Endpoint))
	}

	if c.Sync.FrameInterval <= 0 {
		errs = append(errs, fmt.Errorf("sync.frame_interval must be positive"))
	}
	if c.Sync.ExtrapolationFrames < 1 {
		errs = append(errs, fmt.Errorf("sync.extrapolation_frames must be at least 1"))
	}
	if c.Sync.ExtrapolationWeight < 0 || c.Sync.ExtrapolationWeight > 1 {
		errs = append(errs, fmt.Errorf("sync.extrapolation_weight must be within [0, 1], got %v", c.Sync.ExtrapolationWeight))
	}

	if c.Timing.PingInterval <= 0 || c.Timing.KeysInterval <= 0 || c.Timing.StateInterval <= 0 {
		errs = append(errs, fmt.Errorf("timing intervals must be positive"))
	}

	if _, err := parseLevel(c.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		errs = append(errs, fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// NewLogger builds the slog logger described by the logging section.
func (l LoggingConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	options := &slog.HandlerOptions{Level: level}

	switch l.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, options)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, options)), nil
	default:
		return nil, fmt.Errorf("logging.format must be text or json, got %q", l.Format)
	}
}

func parseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return 0, fmt.Errorf("logging.level: %w", err)
	}
	return level, nil
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Environment != Development {
		t.Errorf("expected environment=development, got %s", cfg.Environment)
	}
	if cfg.Sync.FrameInterval != 16*time.Millisecond {
		t.Errorf("expected frame_interval=16ms, got %s", cfg.Sync.FrameInterval)
	}
	if cfg.Sync.ExtrapolationFrames != 4 {
		t.Errorf("expected extrapolation_frames=4, got %d", cfg.Sync.ExtrapolationFrames)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config does not validate: %v", err)
	}
}

func TestLoad_RequiresNetplayConfig(t *testing.T) {
	t.Setenv("NETPLAY_CONFIG", "")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when NETPLAY_CONFIG not set, got nil")
	}
	if !strings.HasPrefix(err.Error(), "NETPLAY_CONFIG environment variable not set") {
		t.Errorf("unexpected error message: %q", err.Error())
	}
}

func TestLoadFile_YAML(t *testing.T) {
	path := writeConfig(t, "netplay.yaml", `
environment: development
server:
  endpoint: wss://play.example.com/ws
  ice_urls:
    - stun:stun.example.com:3478
sync:
  frame_interval: 20ms
  extrapolation_weight: 0.25
timing:
  ping_interval: 500ms
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}

	if cfg.Server.Endpoint != "wss://play.example.com/ws" {
		t.Errorf("endpoint = %q", cfg.Server.Endpoint)
	}
	if len(cfg.Server.ICEURLs) != 1 || cfg.Server.ICEURLs[0] != "stun:stun.example.com:3478" {
		t.Errorf("ice_urls = %v", cfg.Server.ICEURLs)
	}
	if cfg.Sync.FrameInterval != 20*time.Millisecond {
		t.Errorf("frame_interval = %s, want 20ms", cfg.Sync.FrameInterval)
	}
	if cfg.Sync.ExtrapolationWeight != 0.25 {
		t.Errorf("extrapolation_weight = %v, want 0.25", cfg.Sync.ExtrapolationWeight)
	}
	// Unset fields keep their defaults.
	if cfg.Sync.ExtrapolationFrames != 4 {
		t.Errorf("extrapolation_frames = %d, want default 4", cfg.Sync.ExtrapolationFrames)
	}
	if cfg.Timing.PingInterval != 500*time.Millisecond {
		t.Errorf("ping_interval = %s, want 500ms", cfg.Timing.PingInterval)
	}
}

func TestLoadFile_JSONC(t *testing.T) {
	path := writeConfig(t, "netplay.jsonc", `{
  // Local dev server.
  "server": {"endpoint": "ws://127.0.0.1:9000/play"},
  /* faster pings while debugging */
  "timing": {"ping_interval": "100ms",},
}`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.Server.Endpoint != "ws://127.0.0.1:9000/play" {
		t.Errorf("endpoint = %q", cfg.Server.Endpoint)
	}
	if cfg.Timing.PingInterval != 100*time.Millisecond {
		t.Errorf("ping_interval = %s, want 100ms", cfg.Timing.PingInterval)
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "netplay.yaml", `
environment: production
server:
  endpoint: ws://localhost:7870/play
production:
  server:
    endpoint: wss://play.example.com/ws
`)

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.Server.Endpoint != "wss://play.example.com/ws" {
		t.Errorf("production endpoint override not applied: %q", cfg.Server.Endpoint)
	}
	// An explicit production section replaces the implicit one, so
	// logging keeps its base values.
	if cfg.Logging.Format != "text" {
		t.Errorf("logging.format = %q, want text", cfg.Logging.Format)
	}
}

func TestProductionDefaults(t *testing.T) {
	path := writeConfig(t, "netplay.yaml", "environment: production\n")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.Logging.Level != "warn" || cfg.Logging.Format != "json" {
		t.Errorf("production logging = %+v, want warn/json", cfg.Logging)
	}
}

func TestEnvVarsOverrideFile(t *testing.T) {
	path := writeConfig(t, "netplay.yaml", `
server:
  endpoint: ws://localhost:7870/play
timing:
  keys_interval: 40ms
`)
	t.Setenv("NETPLAY_SERVER_ENDPOINT", "ws://10.0.0.5:7870/play")
	t.Setenv("NETPLAY_TIMING_KEYS_INTERVAL", "25ms")
	t.Setenv("NETPLAY_SERVER_ICE_URLS", "stun:a.example:3478,stun:b.example:3478")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() failed: %v", err)
	}
	if cfg.Server.Endpoint != "ws://10.0.0.5:7870/play" {
		t.Errorf("endpoint = %q, want env override", cfg.Server.Endpoint)
	}
	if cfg.Timing.KeysInterval != 25*time.Millisecond {
		t.Errorf("keys_interval = %s, want 25ms", cfg.Timing.KeysInterval)
	}
	if len(cfg.Server.ICEURLs) != 2 {
		t.Errorf("ice_urls = %v, want two entries", cfg.Server.ICEURLs)
	}
	// Fields without a variable keep the file value.
	if cfg.Timing.PingInterval != time.Second {
		t.Errorf("ping_interval = %s, want default 1s", cfg.Timing.PingInterval)
	}
}

func TestEnvVarsInvalidValue(t *testing.T) {
	path := writeConfig(t, "netplay.yaml", "environment: development\n")
	t.Setenv("NETPLAY_SYNC_EXTRAPOLATION_FRAMES", "many")

	if _, err := LoadFile(path); err == nil {
		t.Fatal("expected error for unparseable NETPLAY_SYNC_EXTRAPOLATION_FRAMES")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{
			name:    "http endpoint",
			modify:  func(c *Config) { c.Server.Endpoint = "http://example.com" },
			wantErr: "ws:// or wss://",
		},
		{
			name:    "weight above one",
			modify:  func(c *Config) { c.Sync.ExtrapolationWeight = 1.5 },
			wantErr: "extrapolation_weight",
		},
		{
			name:    "zero frames",
			modify:  func(c *Config) { c.Sync.ExtrapolationFrames = 0 },
			wantErr: "extrapolation_frames",
		},
		{
			name:    "zero ping interval",
			modify:  func(c *Config) { c.Timing.PingInterval = 0 },
			wantErr: "timing intervals",
		},
		{
			name:    "unknown level",
			modify:  func(c *Config) { c.Logging.Level = "loud" },
			wantErr: "logging.level",
		},
		{
			name:    "unknown environment",
			modify:  func(c *Config) { c.Environment = "staging" },
			wantErr: "invalid environment",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cfg := Default()
			test.modify(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), test.wantErr) {
				t.Errorf("Validate() = %q, want substring %q", err.Error(), test.wantErr)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buffer bytes.Buffer
	logger, err := LoggingConfig{Level: "warn", Format: "json"}.NewLogger(&buffer)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	logger.Info("suppressed")
	logger.Warn("kept", "peer", 7)

	output := buffer.String()
	if strings.Contains(output, "suppressed") {
		t.Errorf("info record written at warn level: %s", output)
	}
	if !strings.Contains(output, `"msg":"kept"`) || !strings.Contains(output, `"peer":7`) {
		t.Errorf("warn record missing or not JSON: %s", output)
	}
	if !logger.Enabled(context.Background(), slog.LevelError) {
		t.Error("error level disabled on warn logger")
	}
}

func TestResolve(t *testing.T) {
	t.Setenv("NETPLAY_CONFIG", "")
	t.Setenv("NETPLAY_TIMING_PING_INTERVAL", "250ms")

	cfg, err := Resolve("")
	if err != nil {
		t.Fatalf("Resolve without a file: %v", err)
	}
	if cfg.Timing.PingInterval != 250*time.Millisecond {
		t.Errorf("expected ping_interval=250ms from the environment, got %s", cfg.Timing.PingInterval)
	}

	path := writeConfig(t, "netplay.yaml", "server:\n  endpoint: ws://game.example:9000/play\n")
	t.Setenv("NETPLAY_CONFIG", path)
	cfg, err = Resolve("")
	if err != nil {
		t.Fatalf("Resolve from NETPLAY_CONFIG: %v", err)
	}
	if cfg.Server.Endpoint != "ws://game.example:9000/play" {
		t.Errorf("expected endpoint from NETPLAY_CONFIG, got %s", cfg.Server.Endpoint)
	}

	if _, err := Resolve(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for a missing explicit file")
	}
}

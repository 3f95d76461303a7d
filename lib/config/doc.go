// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for netplay binaries.
//
// Configuration comes from a single file named by the NETPLAY_CONFIG
// environment variable (via [Load]) or a --config flag (via
// [LoadFile]). There is no search path. Files ending in .json or .jsonc
// are read as JSON with comments and trailing commas; anything else is
// YAML. Both formats share the yaml struct tags.
//
// The file may contain development and production sections that
// override the base values when [Config].Environment matches.
// Production without an explicit section switches logging to warn-level
// JSON.
//
// After the file, individual fields can be overridden by environment
// variables named NETPLAY_<SECTION>_<FIELD>, for example
// NETPLAY_SERVER_ENDPOINT or NETPLAY_TIMING_PING_INTERVAL=250ms. This
// lets a launcher point a packaged client at a different server without
// rewriting its config file.
//
// Key exports:
//
//   - [Config] -- master struct with Server, Sync, Timing, Logging, DevServer
//   - [Default] -- a Config with development defaults
//   - [Load] and [LoadFile] -- the two entry points for loading
//   - [LoggingConfig.NewLogger] -- builds the slog logger for a binary
//
// This package depends on no other netplay packages.
package config

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version carries build and protocol version information for
// netplay binaries. Build values are injected with -ldflags:
//
//	go build -ldflags "-X github.com/bureau-foundation/netplay/lib/version.GitCommit=$(git rev-parse --short HEAD)"
package version

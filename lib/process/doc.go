// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the entrypoint error handling shared by the
// netplay binaries: reporting the error returned by run on stderr and
// choosing the exit status.
package process

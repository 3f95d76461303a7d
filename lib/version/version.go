// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"io"
	"runtime"
)

// These variables are set via -ldflags at build time.
var (
	// GitCommit is the short git SHA of the build.
	GitCommit = "unknown"

	// Version is the semantic version.
	Version = "0.1.0-dev"

	// Protocol is the wire protocol revision. The dev server rejects a
	// Hello carrying a different revision.
	Protocol = 1
)

// Info returns a one-line version string suitable for --version.
func Info() string {
	return fmt.Sprintf("%s (%s, protocol %d, %s)", Version, GitCommit, Protocol, runtime.Version())
}

// Print writes "<binary> <Info>" to w.
func Print(w io.Writer, binary string) {
	fmt.Fprintf(w, "%s %s\n", binary, Info())
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ExitCoder is an error that selects the process exit status.
type ExitCoder interface {
	ExitCode() int
}

// ExitCode returns the exit status for err: 0 for nil, the code of the
// first ExitCoder in err's chain, or 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var coder ExitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return 1
}

// Report writes "error: err" to w unless err is nil.
func Report(w io.Writer, err error) {
	if err != nil {
		fmt.Fprintf(w, "error: %v\n", err)
	}
}

// Fatal reports err on stderr and exits with ExitCode(err). Binaries
// call it from main with the error returned by run, where the
// structured logger may not exist yet.
func Fatal(err error) {
	Report(os.Stderr, err)
	os.Exit(ExitCode(err))
}

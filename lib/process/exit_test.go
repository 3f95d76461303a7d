// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
)

type usageError struct{}

func (usageError) Error() string { return "bad flag" }
func (usageError) ExitCode() int { return 2 }

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"plain", errors.New("boom"), 1},
		{"coder", usageError{}, 2},
		{"wrapped coder", fmt.Errorf("parsing flags: %w", usageError{}), 2},
	}
	for _, test := range tests {
		if got := ExitCode(test.err); got != test.want {
			t.Errorf("%s: ExitCode = %d, want %d", test.name, got, test.want)
		}
	}
}

func TestReport(t *testing.T) {
	var buffer bytes.Buffer
	Report(&buffer, nil)
	if buffer.Len() != 0 {
		t.Errorf("Report(nil) wrote %q", buffer.String())
	}
	Report(&buffer, errors.New("listening: address in use"))
	if got := buffer.String(); got != "error: listening: address in use\n" {
		t.Errorf("Report wrote %q", got)
	}
}

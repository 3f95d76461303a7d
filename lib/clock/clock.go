// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock is the time source for everything in netplay that schedules or
// measures: sender loops, ping samples, and the blend weight applied to
// extrapolated motion. Production code injects Real(); tests inject
// Fake() and advance it by hand.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// AfterFunc calls f once after d elapses. The returned Timer can
	// cancel a call that has not started yet. If d <= 0, f runs
	// without delay (in a new goroutine for Real, synchronously for
	// Fake).
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer is a pending AfterFunc call.
type Timer struct {
	stopFunc func() bool
}

// Stop prevents the pending call from running. Returns true if the
// call was cancelled, false if it already ran or was stopped before.
func (t *Timer) Stop() bool { return t.stopFunc() }

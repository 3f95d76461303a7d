// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeClockNow(t *testing.T) {
	clock := Fake(epoch)
	if got := clock.Now(); !got.Equal(epoch) {
		t.Fatalf("Now() = %v, want %v", got, epoch)
	}
	clock.Advance(5 * time.Second)
	want := epoch.Add(5 * time.Second)
	if got := clock.Now(); !got.Equal(want) {
		t.Fatalf("Now() after Advance = %v, want %v", got, want)
	}
}

func TestFakeClockAfterFuncFiresAtDeadline(t *testing.T) {
	clock := Fake(epoch)
	fired := 0
	clock.AfterFunc(3*time.Second, func() { fired++ })

	clock.Advance(2 * time.Second)
	if fired != 0 {
		t.Fatalf("fired %d times before deadline", fired)
	}
	clock.Advance(time.Second)
	if fired != 1 {
		t.Fatalf("fired %d times at deadline, want 1", fired)
	}
	clock.Advance(10 * time.Second)
	if fired != 1 {
		t.Fatalf("one-shot fired %d times, want 1", fired)
	}
}

func TestFakeClockAfterFuncZeroRunsImmediately(t *testing.T) {
	clock := Fake(epoch)
	fired := false
	clock.AfterFunc(0, func() { fired = true })
	if !fired {
		t.Fatal("AfterFunc(0) did not run synchronously")
	}
}

func TestFakeClockStop(t *testing.T) {
	clock := Fake(epoch)
	fired := false
	timer := clock.AfterFunc(time.Second, func() { fired = true })

	if !timer.Stop() {
		t.Fatal("Stop() on pending timer = false, want true")
	}
	if timer.Stop() {
		t.Fatal("second Stop() = true, want false")
	}
	clock.Advance(2 * time.Second)
	if fired {
		t.Fatal("stopped timer fired")
	}
	if count := clock.PendingCount(); count != 0 {
		t.Fatalf("PendingCount() = %d, want 0", count)
	}
}

func TestFakeClockSelfRescheduling(t *testing.T) {
	clock := Fake(epoch)
	var ticks []time.Time
	var schedule func()
	schedule = func() {
		clock.AfterFunc(100*time.Millisecond, func() {
			ticks = append(ticks, clock.Now())
			schedule()
		})
	}
	schedule()

	clock.Advance(350 * time.Millisecond)

	if len(ticks) != 3 {
		t.Fatalf("got %d ticks, want 3", len(ticks))
	}
	for index, tick := range ticks {
		want := epoch.Add(time.Duration(index+1) * 100 * time.Millisecond)
		if !tick.Equal(want) {
			t.Errorf("tick %d at %v, want %v", index, tick, want)
		}
	}
	if count := clock.PendingCount(); count != 1 {
		t.Fatalf("PendingCount() = %d, want 1 (next tick)", count)
	}
}

func TestFakeClockFiresInDeadlineOrder(t *testing.T) {
	clock := Fake(epoch)
	var order []string
	clock.AfterFunc(3*time.Second, func() { order = append(order, "c") })
	clock.AfterFunc(1*time.Second, func() { order = append(order, "a") })
	clock.AfterFunc(2*time.Second, func() { order = append(order, "b") })

	clock.Advance(5 * time.Second)

	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Fatalf("fire order = %v, want [a b c]", order)
	}
}

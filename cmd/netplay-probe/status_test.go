// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/x/ansi"

	"github.com/bureau-foundation/netplay/transport"
	"github.com/bureau-foundation/netplay/world"
)

func TestRenderStatus(t *testing.T) {
	output := ansi.Strip(renderStatus(status{
		Endpoint:    "ws://127.0.0.1:7870/play",
		State:       transport.StateReady,
		Identity:    7,
		Assigned:    true,
		LastRTT:     3 * time.Millisecond,
		SmoothedRTT: 2 * time.Millisecond,
		Samples:     4,
		Entities:    2,
		Initialized: 1,
	}))

	for _, want := range []string{"ws://127.0.0.1:7870/play", "ready", "7", "3ms", "4 samples", "2 live, 1 initialized"} {
		if !strings.Contains(output, want) {
			t.Errorf("status output missing %q:\n%s", want, output)
		}
	}
	if lines := strings.Count(output, "\n") + 1; lines != 5 {
		t.Errorf("status has %d lines, want 5", lines)
	}
}

func TestRenderStatusBeforeIdentity(t *testing.T) {
	output := ansi.Strip(renderStatus(status{State: transport.StateSocketOpen}))
	for _, want := range []string{"socket-open", "unassigned", "no samples"} {
		if !strings.Contains(output, want) {
			t.Errorf("status output missing %q:\n%s", want, output)
		}
	}
}

func TestCountingLifecycle(t *testing.T) {
	lifecycle := &countingLifecycle{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	scene := world.NewSceneMap(world.DefaultTuning(), nil, lifecycle, nil)
	key := world.K(world.SpacePlayer, 1)

	if _, err := scene.Add(key); err != nil {
		t.Fatalf("Add: %v", err)
	}
	seq := uint64(1)
	scene.Update(key, map[world.Property]world.Value{world.PropHealth: world.Number(1)}, &seq)
	if lifecycle.InitializedCount() != 0 {
		t.Error("entity without a position counted as initialized")
	}
	seq = 2
	scene.Update(key, map[world.Property]world.Value{world.PropPosition: world.Vec(0, 0)}, &seq)
	if lifecycle.InitializedCount() != 1 {
		t.Errorf("InitializedCount = %d, want 1", lifecycle.InitializedCount())
	}
}

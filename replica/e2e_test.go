// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package replica_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bureau-foundation/netplay/internal/devserver"
	"github.com/bureau-foundation/netplay/lib/clock"
	"github.com/bureau-foundation/netplay/lib/config"
	"github.com/bureau-foundation/netplay/lib/testutil"
	"github.com/bureau-foundation/netplay/protocol"
	"github.com/bureau-foundation/netplay/replica"
	"github.com/bureau-foundation/netplay/transport"
	"github.com/bureau-foundation/netplay/world"
)

const timeout = 10 * time.Second

// TestDevServerSession runs a client against the dev server over real
// WebSocket and WebRTC loopback: identity 7, a snapshot creating the
// player, a newer delta applied, an older delta dropped, a delete, and
// a stray snapshot that must not bring the player back.
func TestDevServerSession(t *testing.T) {
	server := devserver.New(devserver.Options{FirstID: 7})
	httpServer := httptest.NewServer(server)
	t.Cleanup(func() {
		server.Close()
		httpServer.Close()
	})

	ready := make(chan struct{}, 1)
	connection := transport.New(transport.Options{
		Hooks: transport.Hooks{Ready: func() { ready <- struct{}{} }},
	})
	t.Cleanup(func() { connection.Close() })

	scene := world.NewSceneMap(world.DefaultTuning(), clock.Real(), nil, nil)
	client := replica.New(replica.Options{Scene: scene})
	if err := client.Attach(connection, config.TimingConfig{}); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if err := client.Attach(connection, config.TimingConfig{}); err == nil {
		t.Error("second Attach succeeded")
	}

	// Registered after the replica, so each signal follows the
	// replica's handling of the same frame.
	snapshots := make(chan uint64, 8)
	deltas := make(chan uint64, 8)
	transport.Handle(connection, func(snapshot *protocol.Snapshot) { snapshots <- snapshot.Seq })
	transport.Handle(connection, func(delta *protocol.Delta) { deltas <- delta.Seq })

	endpoint := "ws" + strings.TrimPrefix(httpServer.URL, "http")
	if err := connection.Connect(t.Context(), endpoint); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	testutil.RequireReceive(t, ready, timeout, "ready")

	player := world.K(world.SpacePlayer, 7)
	if local, ok := client.Local(); !ok || local != player {
		t.Fatalf("Local = %v, %v; want %s", local, ok, player)
	}
	session, ok := server.Session(7)
	if !ok {
		t.Fatal("server has no session 7")
	}
	testutil.RequireClosed(t, session.ChannelOpen(), timeout, "server data channel")

	server.SetEntity(player, map[world.Property]world.Value{
		world.PropPosition: world.Vec(0, 0),
		world.PropHealth:   world.Number(100),
	})
	server.BroadcastSnapshot()
	if seq := testutil.RequireReceive(t, snapshots, timeout, "snapshot"); seq != 1 {
		t.Fatalf("snapshot seq = %d, want 1", seq)
	}
	if !scene.Has(player) {
		t.Fatal("snapshot did not create the player")
	}

	server.SendDelta(player, map[world.Property]world.Value{world.PropHealth: world.Number(80)})
	if seq := testutil.RequireReceive(t, deltas, timeout, "delta"); seq != 2 {
		t.Fatalf("delta seq = %d, want 2", seq)
	}
	health := func() world.Value {
		data, _ := scene.Data(player)
		return data[world.PropHealth]
	}
	if !health().Equal(world.Number(80)) {
		t.Fatalf("health = %v, want 80", health())
	}

	if err := session.Send(&protocol.Delta{
		Key:    player,
		Seq:    1,
		Values: map[world.Property]world.Value{world.PropHealth: world.Number(5)},
	}); err != nil {
		t.Fatalf("sending stale delta: %v", err)
	}
	testutil.RequireReceive(t, deltas, timeout, "stale delta")
	if !health().Equal(world.Number(80)) {
		t.Errorf("health after stale delta = %v, want 80", health())
	}

	server.DeleteEntity(player)
	testutil.RequireEventually(t, timeout, func() bool { return scene.Deleted(player) }, "delete never applied")

	if err := session.Send(&protocol.Snapshot{
		Seq:      10,
		Entities: []protocol.EntityState{{Key: player, Values: map[world.Property]world.Value{world.PropHealth: world.Number(100)}}},
	}); err != nil {
		t.Fatalf("sending stray snapshot: %v", err)
	}
	if seq := testutil.RequireReceive(t, snapshots, timeout, "stray snapshot"); seq != 10 {
		t.Fatalf("snapshot seq = %d, want 10", seq)
	}
	if scene.Has(player) {
		t.Error("stray snapshot resurrected the deleted player")
	}
}

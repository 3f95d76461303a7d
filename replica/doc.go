// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package replica keeps a client's [world.SceneMap] in step with the
// authoritative server.
//
// A [Replica] attaches handlers to a transport.Connection: snapshots,
// deltas and deletes drive the SceneMap, join and leave drive the voice
// [peer.Mesh], and Keys and State senders publish the local player's
// input. Snapshots are ordered by their sequence number and the same
// number gates each property they carry, so one sequence domain covers
// both whole-snapshot and per-property staleness.
package replica

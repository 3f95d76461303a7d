// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package world holds the client's replicated view of the game: entity
// keys and property values, the per-entity sequenced property store,
// and the entity registry.
//
// An entity is addressed by a [Key], a (space, id) pair. Its state lives
// in a [Properties] store that gates authoritative writes per property
// by sequence number and blends locally extrapolated motion toward the
// current value (see [Blend]). Ordering is tracked per property, not per
// message, so position updates on the unreliable channel and score
// updates on the reliable channel never invalidate each other.
//
// [SceneMap] owns every entity. Each key is Absent, Live or Tombstoned;
// a tombstone blocks re-creation of the key until [SceneMap.Reset]. The
// render layer observes transitions through a [Lifecycle] and reads
// entity state with [SceneMap.Data].
package world

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package world

import (
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/bureau-foundation/netplay/lib/clock"
)

var (
	// ErrTombstoned is returned by Add for a key that was deleted since
	// the last Reset. Deletion is terminal for a key.
	ErrTombstoned = errors.New("entity key is tombstoned")

	// ErrInvalidKey is returned by Add for a key with a non-positive
	// space or a negative id.
	ErrInvalidKey = errors.New("invalid entity key")
)

// Lifecycle receives entity lifecycle transitions. It is implemented by
// the render/prediction layer; SceneMap only decides when each hook
// fires.
//
// Created, Initialized and Deleted run after SceneMap has released its
// lock and may call back into it. Ready runs under the lock and must
// not.
type Lifecycle interface {
	// Created is called when a key becomes Live.
	Created(key Key)

	// Ready reports whether an entity has enough properties to be
	// rendered. Evaluated after every update until it first returns
	// true.
	Ready(key Key, data Snapshot) bool

	// Initialized is called once per entity, the first time Ready
	// returns true.
	Initialized(key Key)

	// Deleted is called when a Live key is deleted or reset, so the
	// entity's render resources can be released.
	Deleted(key Key)
}

// NopLifecycle is a Lifecycle that does nothing and treats every entity
// as ready.
type NopLifecycle struct{}

func (NopLifecycle) Created(Key)               {}
func (NopLifecycle) Ready(Key, Snapshot) bool { return true }
func (NopLifecycle) Initialized(Key)           {}
func (NopLifecycle) Deleted(Key)               {}

// Entity is a Live entry in a SceneMap. Its properties are reached
// through the SceneMap so that reads and writes share one lock.
type Entity struct {
	key         Key
	generation  uint32
	properties  *Properties
	initialized bool
}

// Key returns the entity's key.
func (e *Entity) Key() Key { return e.key }

// Generation returns the generation the entity was created with.
func (e *Entity) Generation() uint32 { return e.generation }

// Handle returns a generation-checked reference to the entity.
func (e *Entity) Handle() Handle { return Handle{Key: e.key, Generation: e.generation} }

type slotState uint8

const (
	slotLive slotState = iota + 1
	slotTombstoned
)

// slot is the arena entry for one key: Live with an entity, or
// Tombstoned remembering the generation that died. Absent keys have no
// slot.
type slot struct {
	state      slotState
	generation uint32
	entity     *Entity
}

// SceneMap is the entity registry: a two-level map space → id → slot.
// Every key is Absent, Live or Tombstoned. Tombstones keep a stale
// create (an unreliable-channel snapshot overtaken by a reliable delete,
// or a duplicate retransmit) from resurrecting a dead entity.
//
// SceneMap is safe for concurrent use: the dispatch goroutine writes
// while render code reads Data.
type SceneMap struct {
	tuning    Tuning
	clock     clock.Clock
	lifecycle Lifecycle
	logger    *slog.Logger

	mu         sync.RWMutex
	spaces     map[Space]map[ID]*slot
	generation uint32
}

// NewSceneMap creates an empty registry. A nil clock means
// clock.Real(), a nil lifecycle NopLifecycle; a nil logger discards.
func NewSceneMap(tuning Tuning, clk clock.Clock, lifecycle Lifecycle, logger *slog.Logger) *SceneMap {
	if clk == nil {
		clk = clock.Real()
	}
	if lifecycle == nil {
		lifecycle = NopLifecycle{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &SceneMap{
		tuning:    tuning,
		clock:     clk,
		lifecycle: lifecycle,
		logger:    logger,
		spaces:    make(map[Space]map[ID]*slot),
	}
}

// slotLocked returns the slot for key, or nil when Absent. Caller holds
// s.mu.
func (s *SceneMap) slotLocked(key Key) *slot {
	return s.spaces[key.Space][key.ID]
}

func (s *SceneMap) setSlotLocked(key Key, entry *slot) {
	ids, ok := s.spaces[key.Space]
	if !ok {
		ids = make(map[ID]*slot)
		s.spaces[key.Space] = ids
	}
	ids[key.ID] = entry
}

// Add makes key Live with a fresh entity. Adding a Live key is an
// anomaly: it is logged and the new entity replaces the old one. Adding
// a Tombstoned key fails with ErrTombstoned and is not logged; callers
// are expected to check Deleted first.
func (s *SceneMap) Add(key Key) (*Entity, error) {
	if !key.Valid() {
		return nil, ErrInvalidKey
	}

	s.mu.Lock()
	entry := s.slotLocked(key)
	if entry != nil && entry.state == slotTombstoned {
		s.mu.Unlock()
		return nil, ErrTombstoned
	}
	replaced := entry != nil && entry.state == slotLive

	s.generation++
	entity := &Entity{
		key:        key,
		generation: s.generation,
		properties: NewProperties(s.tuning, s.clock),
	}
	s.setSlotLocked(key, &slot{state: slotLive, generation: entity.generation, entity: entity})
	s.mu.Unlock()

	if replaced {
		s.logger.Warn("entity added while already live, replacing", "key", key)
		s.lifecycle.Deleted(key)
	}
	s.lifecycle.Created(key)
	return entity, nil
}

// Has reports whether key is Live.
func (s *SceneMap) Has(key Key) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry := s.slotLocked(key)
	return entry != nil && entry.state == slotLive
}

// Deleted reports whether key is Tombstoned.
func (s *SceneMap) Deleted(key Key) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry := s.slotLocked(key)
	return entry != nil && entry.state == slotTombstoned
}

// Get returns the Live entity for key.
func (s *SceneMap) Get(key Key) (*Entity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry := s.slotLocked(key)
	if entry == nil || entry.state != slotLive {
		return nil, false
	}
	return entry.entity, true
}

// Lookup resolves a handle. It fails once the entity it was taken from
// has been deleted, even if the key was later reused after a Reset.
func (s *SceneMap) Lookup(handle Handle) (*Entity, bool) {
	entity, ok := s.Get(handle.Key)
	if !ok || entity.generation != handle.Generation {
		return nil, false
	}
	return entity, true
}

// Update forwards values to the property store of a Live key and
// reports whether the key was Live. Absent and Tombstoned keys drop the
// payload. After the update, the entity is initialized the first time
// the lifecycle's Ready predicate accepts its data.
func (s *SceneMap) Update(key Key, values map[Property]Value, seq *uint64) bool {
	s.mu.Lock()
	entry := s.slotLocked(key)
	if entry == nil || entry.state != slotLive {
		s.mu.Unlock()
		return false
	}

	entity := entry.entity
	entity.properties.Update(values, seq)

	initialize := false
	if !entity.initialized && s.lifecycle.Ready(key, entity.properties.Data()) {
		entity.initialized = true
		initialize = true
	}
	s.mu.Unlock()

	if initialize {
		s.lifecycle.Initialized(key)
	}
	return true
}

// Initialized reports whether the Live entity at key has passed its
// readiness check.
func (s *SceneMap) Initialized(key Key) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry := s.slotLocked(key)
	return entry != nil && entry.state == slotLive && entry.entity.initialized
}

// Data returns a copy of the values of a Live key.
func (s *SceneMap) Data(key Key) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry := s.slotLocked(key)
	if entry == nil || entry.state != slotLive {
		return nil, false
	}
	return entry.entity.properties.Data(), true
}

// Sequence returns the last sequence number applied to property of a
// Live key.
func (s *SceneMap) Sequence(key Key, property Property) (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry := s.slotLocked(key)
	if entry == nil || entry.state != slotLive {
		return 0, false
	}
	return entry.entity.properties.Sequence(property)
}

// Delete tombstones key. A Live key fires the lifecycle's Deleted hook.
// Deleting a Tombstoned key does nothing. Deleting an Absent key still
// tombstones it: a delete that overtakes its create must block that
// create when it arrives.
func (s *SceneMap) Delete(key Key) {
	if !key.Valid() {
		return
	}
	s.mu.Lock()
	wasLive := s.deleteLocked(key)
	s.mu.Unlock()

	if wasLive {
		s.lifecycle.Deleted(key)
	}
}

// deleteLocked tombstones key and reports whether it was Live. Caller
// holds s.mu.
func (s *SceneMap) deleteLocked(key Key) bool {
	entry := s.slotLocked(key)
	switch {
	case entry == nil:
		s.setSlotLocked(key, &slot{state: slotTombstoned})
		return false
	case entry.state == slotTombstoned:
		return false
	default:
		entry.state = slotTombstoned
		entry.entity = nil
		return true
	}
}

// Clear deletes every Live key in space. Tombstones are retained.
func (s *SceneMap) Clear(space Space) {
	s.mu.Lock()
	deleted := s.clearSpaceLocked(space)
	s.mu.Unlock()

	for _, key := range deleted {
		s.lifecycle.Deleted(key)
	}
}

// ClearAll deletes every Live key in every space. Tombstones are
// retained.
func (s *SceneMap) ClearAll() {
	s.mu.Lock()
	var deleted []Key
	for space := range s.spaces {
		deleted = append(deleted, s.clearSpaceLocked(space)...)
	}
	s.mu.Unlock()

	slices.SortFunc(deleted, Key.Compare)
	for _, key := range deleted {
		s.lifecycle.Deleted(key)
	}
}

func (s *SceneMap) clearSpaceLocked(space Space) []Key {
	var deleted []Key
	for id, entry := range s.spaces[space] {
		if entry.state != slotLive {
			continue
		}
		key := Key{Space: space, ID: id}
		s.deleteLocked(key)
		deleted = append(deleted, key)
	}
	slices.SortFunc(deleted, Key.Compare)
	return deleted
}

// Reset tears down every Live entity and forgets every tombstone, as
// for a new match or level. Generations keep increasing across resets
// so stale handles stay invalid.
func (s *SceneMap) Reset() {
	s.mu.Lock()
	var live []Key
	for space, ids := range s.spaces {
		for id, entry := range ids {
			if entry.state == slotLive {
				live = append(live, Key{Space: space, ID: id})
			}
		}
	}
	s.spaces = make(map[Space]map[ID]*slot)
	s.mu.Unlock()

	slices.SortFunc(live, Key.Compare)
	for _, key := range live {
		s.lifecycle.Deleted(key)
	}
}

// Sweep deletes every Live entity for which expired returns true and
// returns how many were deleted. This is how an entity that reports
// itself expired leaves the registry. expired runs under the lock and
// must not call into the SceneMap.
func (s *SceneMap) Sweep(expired func(Key, Snapshot) bool) int {
	s.mu.Lock()
	var deleted []Key
	for space, ids := range s.spaces {
		for id, entry := range ids {
			if entry.state != slotLive {
				continue
			}
			key := Key{Space: space, ID: id}
			if expired(key, entry.entity.properties.Data()) {
				deleted = append(deleted, key)
			}
		}
	}
	for _, key := range deleted {
		s.deleteLocked(key)
	}
	s.mu.Unlock()

	slices.SortFunc(deleted, Key.Compare)
	for _, key := range deleted {
		s.lifecycle.Deleted(key)
	}
	return len(deleted)
}

// Keys returns the Live keys in space, ordered by id.
func (s *SceneMap) Keys(space Space) []Key {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []Key
	for id, entry := range s.spaces[space] {
		if entry.state == slotLive {
			keys = append(keys, Key{Space: space, ID: id})
		}
	}
	slices.SortFunc(keys, Key.Compare)
	return keys
}

// Len returns the number of Live entities across all spaces.
func (s *SceneMap) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, ids := range s.spaces {
		for _, entry := range ids {
			if entry.state == slotLive {
				count++
			}
		}
	}
	return count
}

// Tombstones returns the number of Tombstoned keys in space.
func (s *SceneMap) Tombstones(space Space) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, entry := range s.spaces[space] {
		if entry.state == slotTombstoned {
			count++
		}
	}
	return count
}

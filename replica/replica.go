// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package replica

import (
	"errors"
	"io"
	"log/slog"
	"maps"
	"sync"

	"github.com/bureau-foundation/netplay/lib/config"
	"github.com/bureau-foundation/netplay/peer"
	"github.com/bureau-foundation/netplay/protocol"
	"github.com/bureau-foundation/netplay/transport"
	"github.com/bureau-foundation/netplay/world"
)

// ErrAttached is returned by Attach when the Replica is already
// attached to a connection.
var ErrAttached = errors.New("replica already attached")

// Input supplies the local player's input and motion for the periodic
// senders. Both methods are called on sender goroutines.
type Input interface {
	// Keys returns the current key-state set. A released key may be
	// reported as false or omitted.
	Keys() map[int32]bool

	// State returns the local player's motion properties to publish,
	// typically position and velocity. An empty result skips the tick.
	State() map[world.Property]world.Value
}

// Options configures a Replica.
type Options struct {
	// Scene receives the server's world. Required.
	Scene *world.SceneMap

	// Mesh, if set, receives join and leave notifications and the
	// signaling of other players.
	Mesh *peer.Mesh

	// Input, if set, feeds the Keys and State senders.
	Input Input

	Logger *slog.Logger
}

// Replica keeps a SceneMap in step with the server. It applies
// snapshots, deltas and deletes from the connection, forwards player
// presence and voice signaling to the mesh, and publishes local input.
type Replica struct {
	scene  *world.SceneMap
	mesh   *peer.Mesh
	input  Input
	logger *slog.Logger

	mu          sync.Mutex
	local       world.Key
	hasLocal    bool
	snapshotSeq uint64
	hasSnapshot bool
	connection  *transport.Connection
	removers    []func()
}

// New creates a Replica. It does nothing until attached.
func New(options Options) *Replica {
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Replica{
		scene:  options.Scene,
		mesh:   options.Mesh,
		input:  options.Input,
		logger: options.Logger,
	}
}

// TuningFromConfig converts the sync section of the configuration into
// blend tuning for a SceneMap.
func TuningFromConfig(settings config.SyncConfig) world.Tuning {
	return world.Tuning{
		FrameInterval:       settings.FrameInterval,
		ExtrapolationFrames: settings.ExtrapolationFrames,
		ExtrapolationWeight: settings.ExtrapolationWeight,
	}
}

// Attach registers the replica's handlers on connection and, when an
// Input is configured, its Keys and State senders at the intervals in
// timing. A zero interval leaves that sender off.
func (r *Replica) Attach(connection *transport.Connection, timing config.TimingConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.connection != nil {
		return ErrAttached
	}
	r.connection = connection

	r.removers = append(r.removers,
		transport.Handle(connection, func(identity *protocol.Identity) { r.HandleIdentity(identity) }),
		transport.Handle(connection, func(snapshot *protocol.Snapshot) { r.HandleSnapshot(snapshot) }),
		transport.Handle(connection, func(delta *protocol.Delta) { r.HandleDelta(delta) }),
		transport.Handle(connection, func(del *protocol.Delete) { r.HandleDelete(del) }),
		transport.Handle(connection, func(join *protocol.Join) { r.HandleJoin(join) }),
		transport.Handle(connection, func(leave *protocol.Leave) { r.HandleLeave(leave) }),
	)
	if r.mesh != nil {
		r.removers = append(r.removers,
			transport.Handle(connection, func(description *protocol.Description) {
				if description.From == protocol.ServerID {
					return
				}
				if err := r.mesh.HandleDescription(description); err != nil {
					r.logger.Warn("voice negotiation failed", "peer", description.From, "error", err)
				}
			}),
			transport.Handle(connection, func(candidate *protocol.Candidate) {
				if candidate.From == protocol.ServerID {
					return
				}
				if err := r.mesh.HandleCandidate(candidate); err != nil {
					r.logger.Warn("applying voice candidate failed", "peer", candidate.From, "error", err)
				}
			}),
		)
	}

	if r.input != nil {
		if !connection.AddSender(protocol.TypeKeys, r.nextKeys, timing.KeysInterval) && timing.KeysInterval > 0 {
			r.logger.Warn("keys sender already registered")
		}
		if !connection.AddSender(protocol.TypeState, r.nextState, timing.StateInterval) && timing.StateInterval > 0 {
			r.logger.Warn("state sender already registered")
		}
	}
	return nil
}

// Detach removes everything Attach registered.
func (r *Replica) Detach() {
	r.mu.Lock()
	connection, removers := r.connection, r.removers
	r.connection, r.removers = nil, nil
	r.mu.Unlock()

	if connection == nil {
		return
	}
	for _, remove := range removers {
		remove()
	}
	if r.input != nil {
		connection.DeleteSender(protocol.TypeKeys)
		connection.DeleteSender(protocol.TypeState)
	}
}

// Local returns the local player's entity key, once an identity has
// been assigned.
func (r *Replica) Local() (world.Key, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.local, r.hasLocal
}

// SnapshotSeq returns the sequence number of the last applied snapshot.
func (r *Replica) SnapshotSeq() (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotSeq, r.hasSnapshot
}

// HandleIdentity records the local player's key.
func (r *Replica) HandleIdentity(identity *protocol.Identity) {
	key := world.K(world.SpacePlayer, identity.ID)
	r.mu.Lock()
	previous, had := r.local, r.hasLocal
	r.local, r.hasLocal = key, true
	r.mu.Unlock()

	if had && previous != key {
		r.logger.Info("local player changed", "previous", previous, "key", key)
	}
	if r.mesh != nil {
		r.mesh.SetLocal(identity.ID)
	}
}

// HandleSnapshot applies a full snapshot. Snapshots are ordered by
// their sequence number: one not newer than the last applied is
// dropped whole. Each entity is created if absent, skipped if
// tombstoned, and updated with the snapshot's sequence number, which
// also gates every property it carries. Entities that report
// themselves expired are then deleted. It reports whether the snapshot
// was applied.
func (r *Replica) HandleSnapshot(snapshot *protocol.Snapshot) bool {
	r.mu.Lock()
	if r.hasSnapshot && snapshot.Seq <= r.snapshotSeq {
		last := r.snapshotSeq
		r.mu.Unlock()
		r.logger.Debug("dropping stale snapshot", "seq", snapshot.Seq, "last", last)
		return false
	}
	r.snapshotSeq, r.hasSnapshot = snapshot.Seq, true
	r.mu.Unlock()

	seq := snapshot.Seq
	for _, state := range snapshot.Entities {
		if r.scene.Deleted(state.Key) {
			continue
		}
		if !r.scene.Has(state.Key) {
			if _, err := r.scene.Add(state.Key); err != nil {
				r.logger.Debug("skipping snapshot entity", "key", state.Key, "error", err)
				continue
			}
		}
		r.scene.Update(state.Key, state.Values, &seq)
	}

	if expired := r.scene.Sweep(isExpired); expired > 0 {
		r.logger.Debug("expired entities removed", "count", expired)
	}
	return true
}

func isExpired(_ world.Key, data world.Snapshot) bool {
	value, ok := data[world.PropExpired]
	return ok && value.Kind == world.KindBool && value.Bool
}

// HandleDelta applies a sequenced partial update to a Live entity. It
// reports whether the entity exists.
func (r *Replica) HandleDelta(delta *protocol.Delta) bool {
	seq := delta.Seq
	if !r.scene.Update(delta.Key, delta.Values, &seq) {
		r.logger.Debug("delta for unknown entity", "key", delta.Key, "seq", seq)
		return false
	}
	return true
}

// HandleDelete tombstones the entity.
func (r *Replica) HandleDelete(del *protocol.Delete) {
	r.scene.Delete(del.Key)
}

// HandleJoin starts voice negotiation with a player who joined.
func (r *Replica) HandleJoin(join *protocol.Join) {
	if r.mesh == nil {
		return
	}
	if err := r.mesh.Join(join.ID); err != nil {
		r.logger.Warn("starting voice link failed", "peer", join.ID, "error", err)
	}
}

// HandleLeave closes the voice link of a player who left and deletes
// their entity.
func (r *Replica) HandleLeave(leave *protocol.Leave) {
	if r.mesh != nil {
		r.mesh.Leave(leave.ID)
	}
	r.scene.Delete(world.K(world.SpacePlayer, leave.ID))
}

// Predict applies a local, unsequenced update: motion vectors are
// blended into the server's values and flag sets merged. It reports
// whether the entity exists.
func (r *Replica) Predict(key world.Key, values map[world.Property]world.Value) bool {
	return r.scene.Update(key, values, nil)
}

// Reset forgets the world and the snapshot ordering, for a new session
// with a server whose sequence numbers start over.
func (r *Replica) Reset() {
	r.mu.Lock()
	r.snapshotSeq, r.hasSnapshot = 0, false
	r.local, r.hasLocal = world.Key{}, false
	r.mu.Unlock()

	r.scene.Reset()
}

// nextKeys produces the Keys frame and predicts the key state onto the
// local player.
func (r *Replica) nextKeys() protocol.Message {
	pressed := maps.Clone(r.input.Keys())
	if pressed == nil {
		pressed = map[int32]bool{}
	}
	if local, ok := r.Local(); ok {
		r.Predict(local, map[world.Property]world.Value{world.PropKeys: world.Set(pressed)})
	}
	return &protocol.Keys{Pressed: pressed}
}

// nextState produces the State frame for the local player.
func (r *Replica) nextState() protocol.Message {
	local, ok := r.Local()
	if !ok {
		return nil
	}
	values := r.input.State()
	if len(values) == 0 {
		return nil
	}
	return &protocol.State{Key: local, Values: values}
}

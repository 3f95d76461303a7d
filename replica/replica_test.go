// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package replica

import (
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/bureau-foundation/netplay/lib/clock"
	"github.com/bureau-foundation/netplay/lib/config"
	"github.com/bureau-foundation/netplay/peer"
	"github.com/bureau-foundation/netplay/protocol"
	"github.com/bureau-foundation/netplay/world"
)

var (
	player7  = world.K(world.SpacePlayer, 7)
	player9  = world.K(world.SpacePlayer, 9)
	rocket1  = world.K(world.SpaceProjectile, 1)
	testTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
)

func newTestReplica(options Options) (*Replica, *world.SceneMap) {
	fake := clock.Fake(testTime)
	scene := world.NewSceneMap(world.DefaultTuning(), fake, world.NopLifecycle{}, nil)
	options.Scene = scene
	return New(options), scene
}

func values(pairs ...any) map[world.Property]world.Value {
	result := make(map[world.Property]world.Value)
	for i := 0; i < len(pairs); i += 2 {
		result[pairs[i].(world.Property)] = pairs[i+1].(world.Value)
	}
	return result
}

func property(t *testing.T, scene *world.SceneMap, key world.Key, p world.Property) world.Value {
	t.Helper()
	data, ok := scene.Data(key)
	if !ok {
		t.Fatalf("entity %s is not live", key)
	}
	return data[p]
}

func TestSnapshotCreatesAndUpdates(t *testing.T) {
	replica, scene := newTestReplica(Options{})

	applied := replica.HandleSnapshot(&protocol.Snapshot{Seq: 1, Entities: []protocol.EntityState{
		{Key: player7, Values: values(world.PropPosition, world.Vec(1, 2), world.PropHealth, world.Number(100))},
		{Key: rocket1, Values: values(world.PropVelocity, world.Vec(5, 0))},
	}})
	if !applied {
		t.Fatal("first snapshot dropped")
	}

	if !scene.Has(player7) || !scene.Has(rocket1) {
		t.Fatalf("snapshot entities missing: keys %v %v", scene.Keys(world.SpacePlayer), scene.Keys(world.SpaceProjectile))
	}
	if got := property(t, scene, player7, world.PropHealth); !got.Equal(world.Number(100)) {
		t.Errorf("health = %v, want 100", got)
	}
	if seq, _ := scene.Sequence(player7, world.PropPosition); seq != 1 {
		t.Errorf("position seq = %d, want the snapshot seq 1", seq)
	}
}

func TestSnapshotOrdering(t *testing.T) {
	replica, scene := newTestReplica(Options{})
	replica.HandleSnapshot(&protocol.Snapshot{Seq: 5, Entities: []protocol.EntityState{
		{Key: player7, Values: values(world.PropHealth, world.Number(50))},
	}})

	for _, seq := range []uint64{5, 4} {
		if replica.HandleSnapshot(&protocol.Snapshot{Seq: seq, Entities: []protocol.EntityState{
			{Key: player7, Values: values(world.PropHealth, world.Number(1))},
			{Key: player9, Values: values(world.PropHealth, world.Number(1))},
		}}) {
			t.Errorf("snapshot seq %d applied after seq 5", seq)
		}
	}

	if got := property(t, scene, player7, world.PropHealth); !got.Equal(world.Number(50)) {
		t.Errorf("health = %v, want 50", got)
	}
	if scene.Has(player9) {
		t.Error("stale snapshot created an entity")
	}
	if seq, _ := replica.SnapshotSeq(); seq != 5 {
		t.Errorf("SnapshotSeq = %d, want 5", seq)
	}
}

func TestSnapshotGatesNewerDelta(t *testing.T) {
	replica, scene := newTestReplica(Options{})
	replica.HandleSnapshot(&protocol.Snapshot{Seq: 1, Entities: []protocol.EntityState{
		{Key: player7, Values: values(world.PropHealth, world.Number(100))},
	}})
	replica.HandleDelta(&protocol.Delta{Key: player7, Seq: 3, Values: values(world.PropHealth, world.Number(60))})

	// A snapshot sequenced between the two leaves the newer delta alone.
	replica.HandleSnapshot(&protocol.Snapshot{Seq: 2, Entities: []protocol.EntityState{
		{Key: player7, Values: values(world.PropHealth, world.Number(90), world.PropScore, world.Number(4))},
	}})

	if got := property(t, scene, player7, world.PropHealth); !got.Equal(world.Number(60)) {
		t.Errorf("health = %v, want the seq 3 delta's 60", got)
	}
	if got := property(t, scene, player7, world.PropScore); !got.Equal(world.Number(4)) {
		t.Errorf("score = %v, want 4", got)
	}
}

func TestSnapshotSkipsTombstonesAndInvalidKeys(t *testing.T) {
	replica, scene := newTestReplica(Options{})
	scene.Delete(player9)

	replica.HandleSnapshot(&protocol.Snapshot{Seq: 1, Entities: []protocol.EntityState{
		{Key: player9, Values: values(world.PropHealth, world.Number(1))},
		{Key: world.K(0, 3), Values: values(world.PropHealth, world.Number(1))},
		{Key: player7, Values: values(world.PropHealth, world.Number(1))},
	}})

	if scene.Has(player9) || !scene.Deleted(player9) {
		t.Error("tombstoned key resurrected by snapshot")
	}
	if scene.Len() != 1 || !scene.Has(player7) {
		t.Errorf("Len = %d, want only %s", scene.Len(), player7)
	}
}

func TestSnapshotSweepsExpired(t *testing.T) {
	replica, scene := newTestReplica(Options{})
	replica.HandleSnapshot(&protocol.Snapshot{Seq: 1, Entities: []protocol.EntityState{
		{Key: rocket1, Values: values(world.PropExpired, world.Bool(true))},
		{Key: player7, Values: values(world.PropExpired, world.Bool(false))},
	}})

	if scene.Has(rocket1) || !scene.Deleted(rocket1) {
		t.Error("expired entity not tombstoned")
	}
	if !scene.Has(player7) {
		t.Error("unexpired entity removed")
	}
}

func TestDeltaForUnknownEntity(t *testing.T) {
	replica, scene := newTestReplica(Options{})
	if replica.HandleDelta(&protocol.Delta{Key: player7, Seq: 1, Values: values(world.PropHealth, world.Number(1))}) {
		t.Error("delta for an absent entity reported applied")
	}
	if scene.Has(player7) {
		t.Error("delta created an entity")
	}
}

// The end-to-end data path of a session with identity 7.
func TestSessionScenario(t *testing.T) {
	replica, scene := newTestReplica(Options{})

	replica.HandleIdentity(&protocol.Identity{ID: 7, Token: "t"})
	if local, ok := replica.Local(); !ok || local != player7 {
		t.Fatalf("Local = %v, %v; want %s", local, ok, player7)
	}

	replica.HandleSnapshot(&protocol.Snapshot{Seq: 1, Entities: []protocol.EntityState{
		{Key: player7, Values: values(world.PropPosition, world.Vec(0, 0), world.PropHealth, world.Number(100))},
	}})
	if !scene.Has(player7) {
		t.Fatal("snapshot seq 1 did not create the player")
	}

	replica.HandleDelta(&protocol.Delta{Key: player7, Seq: 2, Values: values(world.PropHealth, world.Number(75))})
	if got := property(t, scene, player7, world.PropHealth); !got.Equal(world.Number(75)) {
		t.Fatalf("health after seq 2 = %v, want 75", got)
	}

	replica.HandleDelta(&protocol.Delta{Key: player7, Seq: 1, Values: values(world.PropHealth, world.Number(10))})
	if got := property(t, scene, player7, world.PropHealth); !got.Equal(world.Number(75)) {
		t.Errorf("health after stale seq 1 = %v, want 75", got)
	}

	replica.HandleDelete(&protocol.Delete{Key: player7})
	if scene.Has(player7) {
		t.Fatal("delete left the entity live")
	}

	replica.HandleSnapshot(&protocol.Snapshot{Seq: 3, Entities: []protocol.EntityState{
		{Key: player7, Values: values(world.PropHealth, world.Number(100))},
	}})
	if scene.Has(player7) || !scene.Deleted(player7) {
		t.Error("stray snapshot resurrected the deleted player")
	}
}

func TestPredictBlendsMotion(t *testing.T) {
	replica, scene := newTestReplica(Options{})
	replica.HandleSnapshot(&protocol.Snapshot{Seq: 1, Entities: []protocol.EntityState{
		{Key: player7, Values: values(world.PropVelocity, world.Vec(0, 0))},
	}})

	if !replica.Predict(player7, values(world.PropVelocity, world.Vec(0.5, 0))) {
		t.Fatal("Predict on a live entity returned false")
	}
	if seq, _ := scene.Sequence(player7, world.PropVelocity); seq != 1 {
		t.Errorf("prediction changed the sequence to %d", seq)
	}
	if replica.Predict(player9, values(world.PropVelocity, world.Vec(1, 1))) {
		t.Error("Predict on an absent entity returned true")
	}
}

func TestReset(t *testing.T) {
	replica, scene := newTestReplica(Options{})
	replica.HandleIdentity(&protocol.Identity{ID: 7})
	replica.HandleSnapshot(&protocol.Snapshot{Seq: 9, Entities: []protocol.EntityState{{Key: player7}}})
	replica.HandleDelete(&protocol.Delete{Key: player7})

	replica.Reset()

	if _, ok := replica.Local(); ok {
		t.Error("local key survived Reset")
	}
	if !replica.HandleSnapshot(&protocol.Snapshot{Seq: 1, Entities: []protocol.EntityState{{Key: player7}}}) {
		t.Fatal("snapshot ordering survived Reset")
	}
	if !scene.Has(player7) {
		t.Error("tombstone survived Reset")
	}
}

type scriptedInput struct {
	mu    sync.Mutex
	keys  map[int32]bool
	state map[world.Property]world.Value
}

func (i *scriptedInput) Keys() map[int32]bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.keys
}

func (i *scriptedInput) State() map[world.Property]world.Value {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

func TestKeysSenderPredictsLocally(t *testing.T) {
	input := &scriptedInput{keys: map[int32]bool{32: true}}
	replica, scene := newTestReplica(Options{Input: input})
	replica.HandleIdentity(&protocol.Identity{ID: 7})
	replica.HandleSnapshot(&protocol.Snapshot{Seq: 1, Entities: []protocol.EntityState{{Key: player7}}})

	keys, ok := replica.nextKeys().(*protocol.Keys)
	if !ok || !keys.Pressed[32] {
		t.Fatalf("nextKeys = %+v", keys)
	}
	if got := property(t, scene, player7, world.PropKeys); !got.Equal(world.Set(map[int32]bool{32: true})) {
		t.Errorf("predicted keys = %v", got)
	}

	input.mu.Lock()
	input.keys = map[int32]bool{32: false, 87: true}
	input.mu.Unlock()
	replica.nextKeys()
	if got := property(t, scene, player7, world.PropKeys); !got.Equal(world.Set(map[int32]bool{32: false, 87: true})) {
		t.Errorf("merged keys = %v", got)
	}
}

func TestStateSenderNeedsIdentity(t *testing.T) {
	input := &scriptedInput{state: values(world.PropPosition, world.Vec(3, 4))}
	replica, _ := newTestReplica(Options{Input: input})

	if msg := replica.nextState(); msg != nil {
		t.Errorf("nextState before identity = %+v, want nil", msg)
	}
	replica.HandleIdentity(&protocol.Identity{ID: 7})
	state, ok := replica.nextState().(*protocol.State)
	if !ok || state.Key != player7 || !state.Values[world.PropPosition].Equal(world.Vec(3, 4)) {
		t.Errorf("nextState = %+v", state)
	}

	input.mu.Lock()
	input.state = nil
	input.mu.Unlock()
	if msg := replica.nextState(); msg != nil {
		t.Errorf("nextState with no motion = %+v, want nil", msg)
	}
}

// stubVoice is a VoiceConnection whose negotiation always succeeds.
type stubVoice struct {
	mu     sync.Mutex
	closed bool
}

func (s *stubVoice) CreateOffer(*webrtc.OfferOptions) (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer"}, nil
}

func (s *stubVoice) CreateAnswer(*webrtc.AnswerOptions) (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer"}, nil
}

func (s *stubVoice) SetLocalDescription(webrtc.SessionDescription) error      { return nil }
func (s *stubVoice) SetRemoteDescription(webrtc.SessionDescription) error     { return nil }
func (s *stubVoice) AddICECandidate(webrtc.ICECandidateInit) error            { return nil }
func (s *stubVoice) OnICECandidate(func(*webrtc.ICECandidate))                {}
func (s *stubVoice) OnConnectionStateChange(func(webrtc.PeerConnectionState)) {}

func (s *stubVoice) AddTrack(webrtc.TrackLocal) (*webrtc.RTPSender, error) { return nil, nil }

func (s *stubVoice) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type sentFrames struct {
	mu     sync.Mutex
	frames []protocol.Message
}

func (s *sentFrames) Send(msg protocol.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, msg)
	return nil
}

func TestJoinAndLeaveDriveMesh(t *testing.T) {
	signaler := &sentFrames{}
	mesh := peer.NewMesh(peer.MeshOptions{
		NewConnection: func() (peer.VoiceConnection, error) { return &stubVoice{}, nil },
		Signaler:      signaler,
	})
	replica, scene := newTestReplica(Options{Mesh: mesh})

	replica.HandleIdentity(&protocol.Identity{ID: 7})
	replica.HandleSnapshot(&protocol.Snapshot{Seq: 1, Entities: []protocol.EntityState{{Key: player9}}})
	replica.HandleJoin(&protocol.Join{ID: 9})

	if !slices.Equal(mesh.Peers(), []world.ID{9}) {
		t.Fatalf("mesh peers = %v, want [9]", mesh.Peers())
	}
	signaler.mu.Lock()
	offered := len(signaler.frames) == 1
	signaler.mu.Unlock()
	if !offered {
		t.Error("smaller identity did not offer to the joining player")
	}

	replica.HandleLeave(&protocol.Leave{ID: 9})
	if len(mesh.Peers()) != 0 {
		t.Errorf("mesh peers after leave = %v", mesh.Peers())
	}
	if scene.Has(player9) {
		t.Error("leaving player's entity still live")
	}
}

func TestTuningFromConfig(t *testing.T) {
	tuning := TuningFromConfig(config.SyncConfig{
		FrameInterval:       10 * time.Millisecond,
		ExtrapolationFrames: 2,
		ExtrapolationWeight: 1,
	})

	if tuning.Weight(20*time.Millisecond) != 1 {
		t.Errorf("Weight(20ms) = %v, want 1", tuning.Weight(20*time.Millisecond))
	}
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package peer

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/bureau-foundation/netplay/protocol"
)

// fakeConnection is a scripted PeerConnection that records the order
// of calls made on it.
type fakeConnection struct {
	mu sync.Mutex

	calls      []string
	candidates []string
	tracks     int
	closed     bool

	// Errors to return from the corresponding calls.
	remoteErr    error
	candidateErr map[string]error

	onCandidate func(*webrtc.ICECandidate)
	onState     func(webrtc.PeerConnectionState)
}

func newFakeConnection() *fakeConnection {
	return &fakeConnection{candidateErr: make(map[string]error)}
}

func (f *fakeConnection) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeConnection) CreateOffer(*webrtc.OfferOptions) (webrtc.SessionDescription, error) {
	f.record("create-offer")
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer-sdp"}, nil
}

func (f *fakeConnection) CreateAnswer(*webrtc.AnswerOptions) (webrtc.SessionDescription, error) {
	f.record("create-answer")
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-sdp"}, nil
}

func (f *fakeConnection) SetLocalDescription(description webrtc.SessionDescription) error {
	f.record("set-local " + description.Type.String())
	return nil
}

func (f *fakeConnection) SetRemoteDescription(description webrtc.SessionDescription) error {
	f.record("set-remote " + description.Type.String())
	return f.remoteErr
}

func (f *fakeConnection) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	f.record("add-candidate " + candidate.Candidate)
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.candidateErr[candidate.Candidate]; err != nil {
		return err
	}
	f.candidates = append(f.candidates, candidate.Candidate)
	return nil
}

func (f *fakeConnection) OnICECandidate(handler func(*webrtc.ICECandidate)) {
	f.onCandidate = handler
}

func (f *fakeConnection) OnConnectionStateChange(handler func(webrtc.PeerConnectionState)) {
	f.onState = handler
}

func (f *fakeConnection) AddTrack(webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracks++
	return nil, nil
}

func (f *fakeConnection) Close() error {
	f.record("close")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConnection) applied() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.candidates...)
}

func (f *fakeConnection) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// recordingSignaler collects every frame sent through it.
type recordingSignaler struct {
	mu   sync.Mutex
	sent []protocol.Message
	err  error
}

func (s *recordingSignaler) Send(msg protocol.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func (s *recordingSignaler) messages() []protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Message(nil), s.sent...)
}

// fakeMedia is a MediaSource returning fixed tracks or an error.
type fakeMedia struct {
	tracks []webrtc.TrackLocal
	err    error
}

func (m *fakeMedia) Open(context.Context) ([]webrtc.TrackLocal, error) {
	return m.tracks, m.err
}

var errScripted = errors.New("scripted failure")

func candidate(name string) *protocol.Candidate {
	return &protocol.Candidate{From: protocol.ServerID, Candidate: name}
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package peer

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/bureau-foundation/netplay/protocol"
	"github.com/bureau-foundation/netplay/world"
)

var (
	// ErrUnexpectedAnswer is returned when an answer arrives for a link
	// that has no outstanding local offer.
	ErrUnexpectedAnswer = errors.New("answer without a pending local offer")

	// ErrUnexpectedOffer is returned when an offer arrives for a link
	// that already has a description exchange under way.
	ErrUnexpectedOffer = errors.New("offer on a link that is already negotiating")

	// ErrInvalidState is returned by Offer on a link that is past New.
	ErrInvalidState = errors.New("invalid link state for operation")

	// ErrFailed is returned by every operation on a link that failed.
	ErrFailed = errors.New("link failed")

	// ErrClosed is returned by every operation on a closed link.
	ErrClosed = errors.New("link closed")
)

// Compile-time interface check.
var _ PeerConnection = (*webrtc.PeerConnection)(nil)

// PeerConnection is the subset of *webrtc.PeerConnection that a Link
// drives. Tests substitute a scripted implementation.
type PeerConnection interface {
	CreateOffer(options *webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer(options *webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(description webrtc.SessionDescription) error
	SetRemoteDescription(description webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	OnICECandidate(f func(*webrtc.ICECandidate))
	OnConnectionStateChange(f func(webrtc.PeerConnectionState))
	Close() error
}

// Signaler delivers negotiation frames to the remote peer over the
// reliable signaling path. *transport.Connection implements it for the
// client; the dev server implements it per session.
type Signaler interface {
	Send(msg protocol.Message) error
}

// State is the negotiation state of a Link.
type State int

const (
	// StateNew: no description exchanged yet.
	StateNew State = iota
	// StateHaveLocalOffer: our offer is sent, waiting for the answer.
	StateHaveLocalOffer
	// StateHaveRemoteOffer: the remote offer is applied, answer pending.
	StateHaveRemoteOffer
	// StateStable: both descriptions are applied.
	StateStable
	// StateFailed: a description or candidate was rejected. Terminal.
	StateFailed
	// StateClosed: Close was called. Terminal.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateHaveLocalOffer:
		return "have-local-offer"
	case StateHaveRemoteOffer:
		return "have-remote-offer"
	case StateStable:
		return "stable"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// LinkOptions configures a Link.
type LinkOptions struct {
	// Local and Remote are the peer ids written into outbound
	// Description and Candidate frames. protocol.ServerID addresses the
	// game server.
	Local  world.ID
	Remote world.ID

	// Connection is the peer connection being negotiated. The Link
	// takes over its ICE candidate and connection state callbacks.
	Connection PeerConnection

	// Signaler carries outbound descriptions and candidates.
	Signaler Signaler

	// OnConnectionState, if set, receives every connection state
	// change after the Link has processed it.
	OnConnectionState func(webrtc.PeerConnectionState)

	Logger *slog.Logger
}

// Link is the offer/answer/ICE state machine for one peer connection.
//
// Remote candidates that arrive before the remote description are
// buffered in receipt order. The buffer is drained in that order and
// discarded the moment the remote description is applied; later
// candidates go straight to the connection.
//
// A rejected description or candidate moves the Link to StateFailed.
// Failure is local to this Link. Calls that are illegal in the current
// state return a typed error and leave the state unchanged.
//
// Link is safe for concurrent use. Methods are serialized; local ICE
// candidates are signaled from pion's callback goroutine.
type Link struct {
	local      world.ID
	remote     world.ID
	connection PeerConnection
	signaler   Signaler
	onState    func(webrtc.PeerConnectionState)
	logger     *slog.Logger

	mu        sync.Mutex
	state     State
	remoteSet bool
	pending   []webrtc.ICECandidateInit
}

// NewLink wraps a peer connection in a Link and starts trickling local
// candidates to the signaler.
func NewLink(options LinkOptions) *Link {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	link := &Link{
		local:      options.Local,
		remote:     options.Remote,
		connection: options.Connection,
		signaler:   options.Signaler,
		onState:    options.OnConnectionState,
		logger:     logger.With("remote", options.Remote),
	}
	link.connection.OnICECandidate(link.handleLocalCandidate)
	link.connection.OnConnectionStateChange(link.handleConnectionState)
	return link
}

// Remote returns the id of the peer at the other end.
func (l *Link) Remote() world.ID { return l.remote }

// State returns the current negotiation state.
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Pending returns the number of buffered remote candidates.
func (l *Link) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Offer creates the local offer, applies it and sends it. Valid only in
// StateNew.
func (l *Link) Offer() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkUsableLocked(); err != nil {
		return err
	}
	if l.state != StateNew {
		return fmt.Errorf("%w: offer in state %s", ErrInvalidState, l.state)
	}

	offer, err := l.connection.CreateOffer(nil)
	if err != nil {
		return l.failLocked(fmt.Errorf("creating SDP offer: %w", err))
	}
	if err := l.connection.SetLocalDescription(offer); err != nil {
		return l.failLocked(fmt.Errorf("setting local description: %w", err))
	}
	l.state = StateHaveLocalOffer

	if err := l.signaler.Send(&protocol.Description{
		From: l.local,
		To:   l.remote,
		Kind: protocol.DescriptionOffer,
		SDP:  offer.SDP,
	}); err != nil {
		return l.failLocked(fmt.Errorf("sending SDP offer: %w", err))
	}

	l.logger.Debug("offer sent")
	return nil
}

// HandleDescription applies a remote offer (and answers it) or a remote
// answer to our offer.
func (l *Link) HandleDescription(description *protocol.Description) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkUsableLocked(); err != nil {
		return err
	}

	switch description.Kind {
	case protocol.DescriptionOffer:
		return l.handleOfferLocked(description.SDP)
	case protocol.DescriptionAnswer:
		return l.handleAnswerLocked(description.SDP)
	default:
		return fmt.Errorf("unknown description kind %q", description.Kind)
	}
}

func (l *Link) handleOfferLocked(sdp string) error {
	if l.state != StateNew {
		return fmt.Errorf("%w: state %s", ErrUnexpectedOffer, l.state)
	}

	if err := l.setRemoteLocked(webrtc.SDPTypeOffer, sdp); err != nil {
		return err
	}
	l.state = StateHaveRemoteOffer

	answer, err := l.connection.CreateAnswer(nil)
	if err != nil {
		return l.failLocked(fmt.Errorf("creating SDP answer: %w", err))
	}
	if err := l.connection.SetLocalDescription(answer); err != nil {
		return l.failLocked(fmt.Errorf("setting local description: %w", err))
	}
	l.state = StateStable

	if err := l.signaler.Send(&protocol.Description{
		From: l.local,
		To:   l.remote,
		Kind: protocol.DescriptionAnswer,
		SDP:  answer.SDP,
	}); err != nil {
		return l.failLocked(fmt.Errorf("sending SDP answer: %w", err))
	}

	l.logger.Debug("offer answered")
	return nil
}

func (l *Link) handleAnswerLocked(sdp string) error {
	if l.state != StateHaveLocalOffer {
		return fmt.Errorf("%w: state %s", ErrUnexpectedAnswer, l.state)
	}
	if err := l.setRemoteLocked(webrtc.SDPTypeAnswer, sdp); err != nil {
		return err
	}
	l.state = StateStable
	l.logger.Debug("answer applied")
	return nil
}

// setRemoteLocked applies the remote description and drains the
// candidate buffer in receipt order.
func (l *Link) setRemoteLocked(kind webrtc.SDPType, sdp string) error {
	if err := l.connection.SetRemoteDescription(webrtc.SessionDescription{Type: kind, SDP: sdp}); err != nil {
		return l.failLocked(fmt.Errorf("setting remote %s: %w", kind, err))
	}
	l.remoteSet = true

	pending := l.pending
	l.pending = nil
	for index, candidate := range pending {
		if err := l.connection.AddICECandidate(candidate); err != nil {
			return l.failLocked(fmt.Errorf("applying buffered candidate %d of %d: %w", index+1, len(pending), err))
		}
	}
	if len(pending) > 0 {
		l.logger.Debug("buffered candidates applied", "count", len(pending))
	}
	return nil
}

// HandleCandidate applies a remote candidate, or buffers it until the
// remote description is set.
func (l *Link) HandleCandidate(candidate *protocol.Candidate) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.checkUsableLocked(); err != nil {
		return err
	}

	candidateInit := webrtc.ICECandidateInit{
		Candidate:     candidate.Candidate,
		SDPMid:        candidate.SDPMid,
		SDPMLineIndex: candidate.SDPMLineIndex,
	}
	if !l.remoteSet {
		l.pending = append(l.pending, candidateInit)
		return nil
	}
	if err := l.connection.AddICECandidate(candidateInit); err != nil {
		return l.failLocked(fmt.Errorf("applying candidate: %w", err))
	}
	return nil
}

// Close closes the peer connection. Further calls return ErrClosed.
func (l *Link) Close() error {
	l.mu.Lock()
	if l.state == StateClosed {
		l.mu.Unlock()
		return nil
	}
	l.state = StateClosed
	l.pending = nil
	l.mu.Unlock()

	return l.connection.Close()
}

func (l *Link) checkUsableLocked() error {
	switch l.state {
	case StateClosed:
		return ErrClosed
	case StateFailed:
		return ErrFailed
	}
	return nil
}

// failLocked marks the link failed, logs err and returns it.
func (l *Link) failLocked(err error) error {
	l.state = StateFailed
	l.pending = nil
	l.logger.Warn("peer negotiation failed", "error", err)
	return err
}

func (l *Link) handleLocalCandidate(candidate *webrtc.ICECandidate) {
	// nil marks the end of gathering.
	if candidate == nil {
		return
	}

	candidateInit := candidate.ToJSON()
	err := l.signaler.Send(&protocol.Candidate{
		From:          l.local,
		To:            l.remote,
		Candidate:     candidateInit.Candidate,
		SDPMid:        candidateInit.SDPMid,
		SDPMLineIndex: candidateInit.SDPMLineIndex,
	})
	if err != nil {
		l.logger.Debug("sending local candidate failed", "error", err)
	}
}

func (l *Link) handleConnectionState(state webrtc.PeerConnectionState) {
	l.logger.Debug("peer connection state change", "state", state.String())

	if state == webrtc.PeerConnectionStateFailed {
		l.mu.Lock()
		if l.state != StateClosed {
			l.state = StateFailed
			l.pending = nil
		}
		l.mu.Unlock()
	}

	if l.onState != nil {
		l.onState(state)
	}
}

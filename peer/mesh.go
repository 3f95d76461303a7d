// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package peer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/bureau-foundation/netplay/protocol"
	"github.com/bureau-foundation/netplay/world"
)

// ErrUnknownPeer is returned for an answer from a peer the mesh has no
// link to.
var ErrUnknownPeer = errors.New("no voice link to peer")

// Compile-time interface check.
var _ VoiceConnection = (*webrtc.PeerConnection)(nil)

// VoiceConnection is a PeerConnection that can carry local media.
type VoiceConnection interface {
	PeerConnection
	AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error)
}

// MediaSource acquires local media for voice. Acquisition may block on
// a device or a permission prompt.
type MediaSource interface {
	Open(ctx context.Context) ([]webrtc.TrackLocal, error)
}

// MeshOptions configures a Mesh.
type MeshOptions struct {
	// NewConnection creates the peer connection for a new voice link.
	NewConnection func() (VoiceConnection, error)

	// Signaler carries descriptions and candidates to voice peers,
	// addressed by the To field.
	Signaler Signaler

	// Media supplies local tracks when voice is enabled. Nil means
	// voice cannot be enabled.
	Media MediaSource

	Logger *slog.Logger
}

// Mesh keeps one Link per remote player for voice. Each Link fails
// independently; a failed link never affects other links or the
// primary connection.
//
// For each pair of players the smaller id offers and the larger id
// answers, so both sides agree on roles without a round-trip.
type Mesh struct {
	newConnection func() (VoiceConnection, error)
	signaler      Signaler
	media         MediaSource
	logger        *slog.Logger

	mu      sync.Mutex
	local   world.ID
	links   map[world.ID]*Link
	enabled bool
	tracks  []webrtc.TrackLocal
}

// NewMesh creates an empty voice mesh. SetLocal must be called with the
// assigned identity before links are created.
func NewMesh(options MeshOptions) *Mesh {
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Mesh{
		newConnection: options.NewConnection,
		signaler:      options.Signaler,
		media:         options.Media,
		logger:        logger,
		links:         make(map[world.ID]*Link),
	}
}

// SetLocal records the local player's id.
func (m *Mesh) SetLocal(id world.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.local = id
}

// Enable acquires local media. On failure voice stays disabled, the
// error is logged and returned, and existing links are unaffected.
func (m *Mesh) Enable(ctx context.Context) error {
	m.mu.Lock()
	if m.enabled {
		m.mu.Unlock()
		return nil
	}
	m.enabled = true
	m.mu.Unlock()

	tracks, err := m.openMedia(ctx)
	if err != nil {
		m.mu.Lock()
		m.enabled = false
		m.mu.Unlock()
		m.logger.Warn("enabling voice failed", "error", err)
		return err
	}

	m.mu.Lock()
	m.tracks = tracks
	m.mu.Unlock()
	m.logger.Info("voice enabled", "tracks", len(tracks))
	return nil
}

func (m *Mesh) openMedia(ctx context.Context) ([]webrtc.TrackLocal, error) {
	if m.media == nil {
		return nil, fmt.Errorf("no media source configured")
	}
	tracks, err := m.media.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring local media: %w", err)
	}
	return tracks, nil
}

// Disable releases the local tracks. Existing links keep running.
func (m *Mesh) Disable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.enabled = false
	m.tracks = nil
}

// Enabled reports whether local media is available.
func (m *Mesh) Enabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enabled && m.tracks != nil
}

// Join creates the link to a newly joined player. When the local id is
// the smaller one, the local side sends the offer.
func (m *Mesh) Join(id world.ID) error {
	m.mu.Lock()
	local := m.local
	if id == local || id == protocol.ServerID {
		m.mu.Unlock()
		return nil
	}
	if _, exists := m.links[id]; exists {
		m.mu.Unlock()
		return nil
	}
	link, err := m.createLinkLocked(id)
	m.mu.Unlock()
	if err != nil {
		return err
	}

	if local < id {
		if err := link.Offer(); err != nil {
			return fmt.Errorf("offering to peer %d: %w", id, err)
		}
	}
	return nil
}

// Leave closes and removes the link to id.
func (m *Mesh) Leave(id world.ID) {
	m.mu.Lock()
	link, ok := m.links[id]
	delete(m.links, id)
	m.mu.Unlock()

	if ok {
		if err := link.Close(); err != nil {
			m.logger.Debug("closing voice link", "remote", id, "error", err)
		}
	}
}

// HandleDescription routes a description from a voice peer to its
// link. An offer from an unknown peer, or from a peer whose link
// failed, starts a fresh answering link. An answer from an unknown
// peer returns ErrUnknownPeer and creates nothing.
func (m *Mesh) HandleDescription(description *protocol.Description) error {
	var link *Link
	if description.Kind == protocol.DescriptionOffer {
		var err error
		if link, err = m.linkFor(description.From, true); err != nil {
			return err
		}
	} else {
		var ok bool
		if link, ok = m.Link(description.From); !ok {
			return fmt.Errorf("voice peer %d: %w", description.From, ErrUnknownPeer)
		}
	}
	if err := link.HandleDescription(description); err != nil {
		return fmt.Errorf("voice peer %d: %w", description.From, err)
	}
	return nil
}

// HandleCandidate routes a candidate from a voice peer to its link,
// creating the link so the candidate is buffered when it overtakes the
// offer.
func (m *Mesh) HandleCandidate(candidate *protocol.Candidate) error {
	link, err := m.linkFor(candidate.From, false)
	if err != nil {
		return err
	}
	if err := link.HandleCandidate(candidate); err != nil {
		return fmt.Errorf("voice peer %d: %w", candidate.From, err)
	}
	return nil
}

func (m *Mesh) linkFor(id world.ID, replaceFailed bool) (*Link, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	link, ok := m.links[id]
	if ok && !(replaceFailed && link.State() == StateFailed) {
		return link, nil
	}
	if ok {
		link.Close()
	}
	return m.createLinkLocked(id)
}

func (m *Mesh) createLinkLocked(id world.ID) (*Link, error) {
	if m.newConnection == nil {
		return nil, fmt.Errorf("no voice connection factory configured")
	}
	connection, err := m.newConnection()
	if err != nil {
		m.logger.Warn("creating voice peer connection failed", "remote", id, "error", err)
		return nil, fmt.Errorf("creating peer connection for %d: %w", id, err)
	}
	for _, track := range m.tracks {
		if _, err := connection.AddTrack(track); err != nil {
			m.logger.Warn("adding local track failed", "remote", id, "track", track.ID(), "error", err)
		}
	}

	link := NewLink(LinkOptions{
		Local:      m.local,
		Remote:     id,
		Connection: connection,
		Signaler:   m.signaler,
		OnConnectionState: func(state webrtc.PeerConnectionState) {
			switch state {
			case webrtc.PeerConnectionStateFailed,
				webrtc.PeerConnectionStateDisconnected,
				webrtc.PeerConnectionStateClosed:
				m.drop(id, connection, state)
			}
		},
		Logger: m.logger,
	})
	m.links[id] = link
	return link, nil
}

// drop removes and closes the link to id if it still runs over
// connection.
func (m *Mesh) drop(id world.ID, connection VoiceConnection, state webrtc.PeerConnectionState) {
	m.mu.Lock()
	link, ok := m.links[id]
	if !ok || link.connection != PeerConnection(connection) {
		m.mu.Unlock()
		return
	}
	delete(m.links, id)
	m.mu.Unlock()

	m.logger.Info("voice link lost", "remote", id, "state", state.String())
	if err := link.Close(); err != nil {
		m.logger.Debug("closing voice link", "remote", id, "error", err)
	}
}

// Link returns the link to id.
func (m *Mesh) Link(id world.ID) (*Link, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	link, ok := m.links[id]
	return link, ok
}

// Peers returns the ids of every linked peer in ascending order.
func (m *Mesh) Peers() []world.ID {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]world.ID, 0, len(m.links))
	for id := range m.links {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Close closes every link.
func (m *Mesh) Close() {
	m.mu.Lock()
	links := m.links
	m.links = make(map[world.ID]*Link)
	m.mu.Unlock()

	for _, link := range links {
		link.Close()
	}
}

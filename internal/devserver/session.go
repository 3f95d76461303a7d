// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package devserver

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/bureau-foundation/netplay/lib/netutil"
	"github.com/bureau-foundation/netplay/lib/version"
	"github.com/bureau-foundation/netplay/peer"
	"github.com/bureau-foundation/netplay/protocol"
	"github.com/bureau-foundation/netplay/world"
)

// ErrChannelClosed is returned by Session.Send for an unreliable frame
// when the session's data channel is not open.
var ErrChannelClosed = errors.New("session data channel not open")

// Compile-time interface check.
var _ peer.Signaler = (*Session)(nil)

// Session is one connected client.
type Session struct {
	server *Server
	socket *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex

	mu          sync.Mutex
	id          world.ID
	assigned    bool
	link        *peer.Link
	channel     *webrtc.DataChannel
	channelOpen chan struct{}
	keys        map[int32]bool
	state       map[world.Property]world.Value
	pings       int
	closed      bool
}

func newSession(server *Server, socket *websocket.Conn) *Session {
	return &Session{
		server:      server,
		socket:      socket,
		logger:      server.logger.With("remote", socket.RemoteAddr().String()),
		channelOpen: make(chan struct{}),
		keys:        make(map[int32]bool),
		state:       make(map[world.Property]world.Value),
	}
}

// ID returns the session's identity once assigned.
func (s *Session) ID() (world.ID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id, s.assigned
}

// ChannelOpen is closed when the session's data channel opens.
func (s *Session) ChannelOpen() <-chan struct{} {
	return s.channelOpen
}

// Keys returns the last key-state set received from the client.
func (s *Session) Keys() map[int32]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.keys)
}

// State returns the last motion state received from the client.
func (s *Session) State() world.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return world.Snapshot(s.state).Clone()
}

// Pings returns the number of pings answered.
func (s *Session) Pings() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pings
}

// Send encodes msg and sends it on the socket or, for unreliable types,
// the data channel.
func (s *Session) Send(msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}

	if !msg.Type().Reliable() {
		select {
		case <-s.channelOpen:
		default:
			return ErrChannelClosed
		}
		s.mu.Lock()
		channel := s.channel
		s.mu.Unlock()
		return channel.Send(data)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.socket.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("writing %s: %w", msg.Type(), err)
	}
	return nil
}

// Close closes the socket and the peer connection.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	link := s.link
	s.mu.Unlock()

	s.socket.Close()
	if link != nil {
		link.Close()
	}
}

// run reads frames until the socket fails.
func (s *Session) run() {
	for {
		messageType, data, err := s.socket.ReadMessage()
		if err != nil {
			if netutil.IsExpectedCloseError(err) {
				s.logger.Debug("session socket closed")
			} else {
				s.logger.Warn("session socket failed", "error", err)
			}
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		s.handleFrame(data)
	}
}

func (s *Session) handleFrame(data []byte) {
	msg, err := protocol.Decode(data)
	if err != nil {
		s.logger.Debug("dropping undecodable frame", "error", err)
		return
	}

	switch msg := msg.(type) {
	case *protocol.Hello:
		s.handleHello(msg)
	case *protocol.Description:
		s.handleDescription(msg)
	case *protocol.Candidate:
		s.handleCandidate(msg)
	case *protocol.Ping:
		s.mu.Lock()
		s.pings++
		s.mu.Unlock()
		if err := s.Send(&protocol.Pong{Nonce: msg.Nonce, Sent: msg.Sent}); err != nil {
			s.logger.Debug("pong not sent", "error", err)
		}
	case *protocol.Keys:
		s.mu.Lock()
		s.keys = maps.Clone(msg.Pressed)
		s.mu.Unlock()
	case *protocol.State:
		s.handleState(msg)
	default:
		s.logger.Debug("ignoring frame", "type", msg.Type())
	}
}

func (s *Session) handleHello(hello *protocol.Hello) {
	if _, assigned := s.ID(); assigned {
		s.logger.Warn("duplicate hello ignored")
		return
	}
	if hello.Protocol != version.Protocol {
		s.logger.Warn("rejecting hello with unsupported protocol", "protocol", hello.Protocol, "want", version.Protocol)
		s.Close()
		return
	}

	id, token, resumed, others := s.server.assignIdentity(s, hello)
	s.mu.Lock()
	s.id = id
	s.assigned = true
	s.mu.Unlock()

	s.logger.Info("player joined", "id", id, "resumed", resumed)
	if err := s.Send(&protocol.Identity{ID: id, Token: token}); err != nil {
		s.logger.Warn("sending identity failed", "error", err)
		return
	}
	for _, other := range others {
		s.Send(&protocol.Join{ID: other})
	}
	s.server.broadcastExcept(&protocol.Join{ID: id}, id)
}

// primaryLink returns the link negotiating this session's data channel,
// creating it on the first description or candidate.
func (s *Session) primaryLink() (*peer.Link, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.link != nil {
		return s.link, nil
	}

	connection, err := peer.NewPeerConnection(s.server.ice)
	if err != nil {
		return nil, fmt.Errorf("creating peer connection: %w", err)
	}
	connection.OnDataChannel(func(channel *webrtc.DataChannel) {
		channel.OnOpen(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			select {
			case <-s.channelOpen:
				return
			default:
			}
			s.channel = channel
			close(s.channelOpen)
		})
		channel.OnMessage(func(message webrtc.DataChannelMessage) {
			s.handleFrame(message.Data)
		})
	})

	s.link = peer.NewLink(peer.LinkOptions{
		Local:      protocol.ServerID,
		Remote:     s.id,
		Connection: connection,
		Signaler:   s,
		Logger:     s.logger,
	})
	return s.link, nil
}

func (s *Session) handleDescription(description *protocol.Description) {
	if description.To != protocol.ServerID {
		s.relay(description.To, &protocol.Description{
			From: s.mustID(), To: description.To, Kind: description.Kind, SDP: description.SDP,
		})
		return
	}
	link, err := s.primaryLink()
	if err != nil {
		s.logger.Warn("data channel setup failed", "error", err)
		return
	}
	if err := link.HandleDescription(description); err != nil {
		s.logger.Warn("data channel negotiation failed", "error", err)
	}
}

func (s *Session) handleCandidate(candidate *protocol.Candidate) {
	if candidate.To != protocol.ServerID {
		relayed := *candidate
		relayed.From = s.mustID()
		s.relay(candidate.To, &relayed)
		return
	}
	link, err := s.primaryLink()
	if err != nil {
		s.logger.Warn("data channel setup failed", "error", err)
		return
	}
	if err := link.HandleCandidate(candidate); err != nil {
		s.logger.Warn("applying client candidate failed", "error", err)
	}
}

// relay forwards voice signaling to another player.
func (s *Session) relay(to world.ID, msg protocol.Message) {
	target, ok := s.server.Session(to)
	if !ok {
		s.logger.Debug("relay target not connected", "to", to, "type", msg.Type())
		return
	}
	if err := target.Send(msg); err != nil {
		s.logger.Debug("relay failed", "to", to, "error", err)
	}
}

func (s *Session) mustID() world.ID {
	id, _ := s.ID()
	return id
}

// handleState records the client's motion and folds it into the
// server's world as the player's entity.
func (s *Session) handleState(state *protocol.State) {
	id, assigned := s.ID()
	if !assigned || state.Key != world.K(world.SpacePlayer, id) {
		s.logger.Debug("state for foreign entity ignored", "key", state.Key)
		return
	}
	s.mu.Lock()
	for property, value := range state.Values {
		s.state[property] = value.Clone()
	}
	s.mu.Unlock()
	s.server.SetEntity(state.Key, state.Values)
}

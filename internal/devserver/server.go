// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package devserver

import (
	"io"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/bureau-foundation/netplay/lib/clock"
	"github.com/bureau-foundation/netplay/peer"
	"github.com/bureau-foundation/netplay/protocol"
	"github.com/bureau-foundation/netplay/world"
)

// Options configures a Server.
type Options struct {
	// ICE is used for every session's peer connection.
	ICE peer.ICEConfig

	// Clock drives the snapshot broadcast loop. Defaults to
	// clock.Real().
	Clock clock.Clock

	// TickInterval is how often a snapshot is broadcast to every
	// session. Zero disables the loop; BroadcastSnapshot can still be
	// called directly.
	TickInterval time.Duration

	// FirstID is the identity assigned to the first new player.
	// Defaults to 1.
	FirstID world.ID

	Logger *slog.Logger
}

// Server is a minimal authoritative game server speaking the netplay
// protocol. It assigns identities (resuming them for a matching token),
// answers data channel offers, relays voice signaling between players,
// answers pings, records each player's input and broadcasts snapshots
// of its world.
//
// Server is an http.Handler for the WebSocket upgrade path.
type Server struct {
	ice          peer.ICEConfig
	clock        clock.Clock
	tickInterval time.Duration
	logger       *slog.Logger
	upgrader     websocket.Upgrader

	mu       sync.Mutex
	closed   bool
	nextID   world.ID
	tokens   map[world.ID]string
	sessions map[world.ID]*Session
	pending  map[*Session]struct{}
	entities map[world.Key]map[world.Property]world.Value
	seq      uint64
	ticker   *clock.Timer
}

// New creates a Server. With a positive TickInterval the snapshot loop
// starts immediately.
func New(options Options) *Server {
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if options.FirstID <= 0 {
		options.FirstID = 1
	}
	server := &Server{
		ice:          options.ICE,
		clock:        options.Clock,
		tickInterval: options.TickInterval,
		logger:       options.Logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(*http.Request) bool {
				return true
			},
		},
		nextID:   options.FirstID,
		tokens:   make(map[world.ID]string),
		sessions: make(map[world.ID]*Session),
		pending:  make(map[*Session]struct{}),
		entities: make(map[world.Key]map[world.Property]world.Value),
	}
	if server.tickInterval > 0 {
		server.mu.Lock()
		server.scheduleTickLocked()
		server.mu.Unlock()
	}
	return server
}

func (s *Server) scheduleTickLocked() {
	s.ticker = s.clock.AfterFunc(s.tickInterval, func() {
		s.BroadcastSnapshot()
		s.mu.Lock()
		defer s.mu.Unlock()
		if !s.closed {
			s.scheduleTickLocked()
		}
	})
}

// ServeHTTP upgrades the request to a WebSocket and runs the session
// until the socket closes.
func (s *Server) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	socket, err := s.upgrader.Upgrade(writer, request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", request.RemoteAddr, "error", err)
		return
	}

	session := newSession(s, socket)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		socket.Close()
		return
	}
	s.pending[session] = struct{}{}
	s.mu.Unlock()

	session.run()
	s.removeSession(session)
}

// assignIdentity returns the identity for a Hello: the requested one
// when its token matches and no live session holds it, a fresh one
// otherwise.
func (s *Server) assignIdentity(session *Session, hello *protocol.Hello) (world.ID, string, bool, []world.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := hello.ID
	token := hello.Token
	_, live := s.sessions[id]
	resumed := id > 0 && token != "" && s.tokens[id] == token && !live
	if !resumed {
		id = s.nextID
		s.nextID++
		token = uuid.NewString()
		s.tokens[id] = token
	}

	delete(s.pending, session)
	others := slices.Sorted(maps.Keys(s.sessions))
	s.sessions[id] = session
	return id, token, resumed, others
}

func (s *Server) removeSession(session *Session) {
	s.mu.Lock()
	delete(s.pending, session)
	id, assigned := session.ID()
	if assigned && s.sessions[id] == session {
		delete(s.sessions, id)
	} else {
		assigned = false
	}
	s.mu.Unlock()

	session.Close()
	if assigned {
		s.logger.Info("player left", "id", id)
		s.Broadcast(&protocol.Leave{ID: id})
	}
}

// Session returns the live session for id.
func (s *Server) Session(id world.ID) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	return session, ok
}

// Sessions returns the ids of every live session in ascending order.
func (s *Server) Sessions() []world.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Sorted(maps.Keys(s.sessions))
}

// Broadcast sends msg to every live session. Send failures are logged.
func (s *Server) Broadcast(msg protocol.Message) {
	s.broadcastExcept(msg, 0)
}

func (s *Server) broadcastExcept(msg protocol.Message, except world.ID) {
	s.mu.Lock()
	sessions := make([]*Session, 0, len(s.sessions))
	for id, session := range s.sessions {
		if id != except {
			sessions = append(sessions, session)
		}
	}
	s.mu.Unlock()

	for _, session := range sessions {
		if err := session.Send(msg); err != nil {
			id, _ := session.ID()
			s.logger.Debug("broadcast send failed", "id", id, "type", msg.Type(), "error", err)
		}
	}
}

// SetEntity merges values into the server's copy of key. The change
// reaches clients with the next snapshot.
func (s *Server) SetEntity(key world.Key, values map[world.Property]world.Value) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entity, ok := s.entities[key]
	if !ok {
		entity = make(map[world.Property]world.Value)
		s.entities[key] = entity
	}
	for property, value := range values {
		entity[property] = value.Clone()
	}
}

// DeleteEntity removes key from the world and tells every client.
func (s *Server) DeleteEntity(key world.Key) {
	s.mu.Lock()
	delete(s.entities, key)
	s.mu.Unlock()
	s.Broadcast(&protocol.Delete{Key: key})
}

// NextSeq advances and returns the server's sequence counter. Snapshots
// and deltas share it.
func (s *Server) NextSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

// SendDelta sends a delta for key to every client with the next
// sequence number and records it in the world.
func (s *Server) SendDelta(key world.Key, values map[world.Property]world.Value) {
	s.SetEntity(key, values)
	s.Broadcast(&protocol.Delta{Key: key, Seq: s.NextSeq(), Values: values})
}

// BroadcastSnapshot sends the whole world to every client.
func (s *Server) BroadcastSnapshot() {
	s.mu.Lock()
	s.seq++
	snapshot := &protocol.Snapshot{Seq: s.seq}
	keys := slices.SortedFunc(maps.Keys(s.entities), world.Key.Compare)
	for _, key := range keys {
		values := make(map[world.Property]world.Value, len(s.entities[key]))
		for property, value := range s.entities[key] {
			values[property] = value.Clone()
		}
		snapshot.Entities = append(snapshot.Entities, protocol.EntityState{Key: key, Values: values})
	}
	s.mu.Unlock()

	s.Broadcast(snapshot)
}

// Close stops the snapshot loop and closes every session.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	if s.ticker != nil {
		s.ticker.Stop()
	}
	sessions := slices.Collect(maps.Values(s.sessions))
	for session := range s.pending {
		sessions = append(sessions, session)
	}
	s.mu.Unlock()

	for _, session := range sessions {
		session.Close()
	}
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"github.com/bureau-foundation/netplay/lib/clock"
	"github.com/bureau-foundation/netplay/lib/version"
	"github.com/bureau-foundation/netplay/peer"
	"github.com/bureau-foundation/netplay/protocol"
	"github.com/bureau-foundation/netplay/world"
)

var (
	// ErrNotConnected is returned when a reliable frame is sent with no
	// open signaling socket.
	ErrNotConnected = errors.New("signaling socket not connected")

	// ErrChannelClosed is returned when an unreliable frame is sent
	// with no open data channel. The frame is dropped.
	ErrChannelClosed = errors.New("data channel not open")

	// ErrClosed is returned by Connect after Close.
	ErrClosed = errors.New("connection closed")
)

// Compile-time interface check.
var _ peer.Signaler = (*Connection)(nil)

// channelLabel labels the unreliable data channel.
const channelLabel = "state"

// State is the connection's position in its lifecycle.
type State int

const (
	StateDisconnected State = iota
	StateSocketConnecting
	StateSocketOpen
	StatePeerNegotiating
	StateReady
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateSocketConnecting:
		return "socket-connecting"
	case StateSocketOpen:
		return "socket-open"
	case StatePeerNegotiating:
		return "peer-negotiating"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type socketState int

const (
	socketClosed socketState = iota
	socketConnecting
	socketOpen
)

// Hooks are optional notifications from a Connection. They run on
// internal goroutines without any Connection lock held, and may call
// back into the Connection.
type Hooks struct {
	// Identity is called when the server assigns or confirms the
	// client's identity.
	Identity func(id world.ID)

	// Ready is called each time Ready becomes true.
	Ready func()

	// Disconnected is called once per socket session when the socket
	// closes, whichever side closed it. The identity survives, so the
	// application may call Connect again to resume.
	Disconnected func()
}

// Options configures a Connection.
type Options struct {
	// Clock drives the periodic senders. Defaults to clock.Real().
	Clock clock.Clock

	// PeerFactory creates the peer connection for each negotiation.
	// Defaults to DefaultPeerFactory with no ICE servers.
	PeerFactory PeerFactory

	// Dialer opens the signaling socket. Defaults to
	// websocket.DefaultDialer.
	Dialer *websocket.Dialer

	Hooks Hooks

	Logger *slog.Logger
}

// Connection is the client's hybrid link to a game server: a WebSocket
// signaling socket for reliable frames and an unordered, zero-retransmit
// WebRTC data channel for loss-tolerant frames.
//
// Lifecycle: Connect dials the socket, sends Hello and offers the data
// channel. The connection is Ready once the socket is open, the data
// channel is open, and the server has assigned an identity. Losing the
// socket, the data channel or the peer connection tears everything
// down to Disconnected and fires Hooks.Disconnected once. The identity
// is kept and re-sent by the next Connect; only Reset forgets it.
// There is no automatic reconnect.
//
// Inbound frames from both channels are decoded and dispatched to
// handlers (see AddHandler) one at a time. Periodic outbound frames are
// produced by senders (see AddSender).
type Connection struct {
	clock   clock.Clock
	factory PeerFactory
	dialer  *websocket.Dialer
	hooks   Hooks
	logger  *slog.Logger

	mu          sync.Mutex
	closed      bool
	socketState socketState
	socket      *websocket.Conn
	generation  uint64
	link        *peer.Link
	peerConn    *webrtc.PeerConnection
	channel     *webrtc.DataChannel
	channelOpen bool
	readyFired  bool
	identity    world.ID
	token       string
	assigned    bool
	handshake   bool

	// writeMu serializes socket writes; gorilla allows one concurrent
	// writer.
	writeMu sync.Mutex

	dispatchMu sync.Mutex
	handlersMu sync.Mutex
	handlers   map[protocol.Type][]*handlerEntry

	sendersMu sync.Mutex
	senders   map[protocol.Type]*sender
}

// New creates a disconnected Connection.
func New(options Options) *Connection {
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.PeerFactory == nil {
		options.PeerFactory = DefaultPeerFactory(peer.ICEConfig{})
	}
	if options.Dialer == nil {
		options.Dialer = websocket.DefaultDialer
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Connection{
		clock:    options.Clock,
		factory:  options.PeerFactory,
		dialer:   options.Dialer,
		hooks:    options.Hooks,
		logger:   options.Logger,
		handlers: make(map[protocol.Type][]*handlerEntry),
		senders:  make(map[protocol.Type]*sender),
	}
}

// Connect opens the signaling socket to endpoint and starts negotiating
// the data channel. It returns once the socket is open and the offer is
// sent; Ready reports when negotiation completes.
//
// Connect is a no-op while a socket is connecting, or while the socket
// is open and a negotiation exists. With the socket open and no
// negotiation (the previous one failed or was torn down) it only
// renegotiates the data channel.
func (c *Connection) Connect(ctx context.Context, endpoint string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	switch c.socketState {
	case socketConnecting:
		c.mu.Unlock()
		return nil
	case socketOpen:
		negotiating := c.link != nil
		c.mu.Unlock()
		if negotiating {
			return nil
		}
		return c.negotiate()
	}
	c.socketState = socketConnecting
	c.mu.Unlock()

	c.logger.Info("connecting", "endpoint", endpoint)
	socket, _, err := c.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		c.mu.Lock()
		c.socketState = socketClosed
		c.mu.Unlock()
		return fmt.Errorf("dialing %s: %w", endpoint, err)
	}

	c.mu.Lock()
	if c.closed {
		c.socketState = socketClosed
		c.mu.Unlock()
		socket.Close()
		return ErrClosed
	}
	c.generation++
	generation := c.generation
	c.socket = socket
	c.socketState = socketOpen
	registerHandshake := !c.handshake
	c.handshake = true
	hello := &protocol.Hello{ID: c.identity, Token: c.token, Protocol: version.Protocol}
	c.mu.Unlock()

	if registerHandshake {
		c.registerHandshake()
	}
	go c.readLoop(socket, generation)

	c.logger.Info("signaling socket open", "endpoint", endpoint, "resume", hello.ID)
	if err := c.Send(hello); err != nil {
		return fmt.Errorf("sending hello: %w", err)
	}
	return c.negotiate()
}

// negotiate creates a peer connection with the unreliable data channel
// and sends the offer.
func (c *Connection) negotiate() error {
	peerConn, err := c.factory()
	if err != nil {
		c.logger.Warn("creating peer connection failed", "error", err)
		return fmt.Errorf("creating peer connection: %w", err)
	}

	ordered := false
	retransmits := uint16(0)
	channel, err := peerConn.CreateDataChannel(channelLabel, &webrtc.DataChannelInit{
		Ordered:        &ordered,
		MaxRetransmits: &retransmits,
	})
	if err != nil {
		peerConn.Close()
		return fmt.Errorf("creating data channel: %w", err)
	}

	c.mu.Lock()
	if c.socketState != socketOpen || c.link != nil {
		linkExists := c.link != nil
		c.mu.Unlock()
		peerConn.Close()
		if linkExists {
			return nil
		}
		return ErrNotConnected
	}
	generation := c.generation
	link := peer.NewLink(peer.LinkOptions{
		Local:      c.identity,
		Remote:     protocol.ServerID,
		Connection: peerConn,
		Signaler:   c,
		OnConnectionState: func(state webrtc.PeerConnectionState) {
			c.handlePeerState(generation, peerConn, state)
		},
		Logger: c.logger,
	})
	c.link = link
	c.peerConn = peerConn
	c.channel = channel
	c.channelOpen = false
	c.mu.Unlock()

	channel.OnOpen(func() { c.handleChannelOpen(channel) })
	channel.OnClose(func() { c.handleChannelClose(generation, channel) })
	channel.OnMessage(func(message webrtc.DataChannelMessage) {
		c.dispatch(message.Data, channelLabel)
	})

	if err := link.Offer(); err != nil {
		c.teardownPeer(link)
		return fmt.Errorf("offering data channel: %w", err)
	}
	return nil
}

// registerHandshake installs the handlers for identity assignment and
// for negotiation of the primary data channel. Descriptions and
// candidates from other peers are left to other handlers.
func (c *Connection) registerHandshake() {
	Handle(c, func(identity *protocol.Identity) {
		c.mu.Lock()
		c.identity = identity.ID
		c.token = identity.Token
		c.assigned = true
		c.mu.Unlock()

		c.logger.Info("identity assigned", "id", identity.ID)
		if c.hooks.Identity != nil {
			c.hooks.Identity(identity.ID)
		}
		c.checkReady()
	})

	Handle(c, func(description *protocol.Description) {
		if description.From != protocol.ServerID {
			return
		}
		link := c.currentLink()
		if link == nil {
			c.logger.Debug("description with no negotiation in progress", "kind", description.Kind)
			return
		}
		if err := link.HandleDescription(description); err != nil {
			c.logger.Warn("data channel negotiation failed", "error", err)
			if link.State() == peer.StateFailed {
				c.teardownPeer(link)
			}
		}
	})

	Handle(c, func(candidate *protocol.Candidate) {
		if candidate.From != protocol.ServerID {
			return
		}
		link := c.currentLink()
		if link == nil {
			return
		}
		if err := link.HandleCandidate(candidate); err != nil {
			c.logger.Warn("applying server candidate failed", "error", err)
			if link.State() == peer.StateFailed {
				c.teardownPeer(link)
			}
		}
	})
}

func (c *Connection) currentLink() *peer.Link {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.link
}

func (c *Connection) handleChannelOpen(channel *webrtc.DataChannel) {
	c.mu.Lock()
	if c.channel != channel {
		c.mu.Unlock()
		return
	}
	c.channelOpen = true
	c.mu.Unlock()

	c.logger.Debug("data channel open")
	c.checkReady()
}

func (c *Connection) handleChannelClose(generation uint64, channel *webrtc.DataChannel) {
	c.mu.Lock()
	current := c.channel == channel
	c.mu.Unlock()
	if current {
		c.closeSocket(generation, "data channel closed")
	}
}

func (c *Connection) handlePeerState(generation uint64, peerConn *webrtc.PeerConnection, state webrtc.PeerConnectionState) {
	switch state {
	case webrtc.PeerConnectionStateFailed,
		webrtc.PeerConnectionStateDisconnected,
		webrtc.PeerConnectionStateClosed:
	default:
		return
	}
	c.mu.Lock()
	current := c.peerConn == peerConn
	c.mu.Unlock()
	if current {
		c.closeSocket(generation, "peer connection "+state.String())
	}
}

// teardownPeer closes link and clears the negotiation if it is still
// the current one, leaving the socket open so Connect can renegotiate.
func (c *Connection) teardownPeer(link *peer.Link) {
	c.mu.Lock()
	if c.link != link {
		c.mu.Unlock()
		return
	}
	c.link = nil
	c.peerConn = nil
	c.channel = nil
	c.channelOpen = false
	c.readyFired = false
	c.mu.Unlock()

	link.Close()
}

// closeSocket tears the session down to Disconnected. It acts once per
// socket generation.
func (c *Connection) closeSocket(generation uint64, reason string) {
	c.mu.Lock()
	if generation != c.generation || c.socketState != socketOpen {
		c.mu.Unlock()
		return
	}
	socket := c.socket
	link := c.link
	c.socket = nil
	c.socketState = socketClosed
	c.link = nil
	c.peerConn = nil
	c.channel = nil
	c.channelOpen = false
	c.readyFired = false
	c.mu.Unlock()

	socket.Close()
	if link != nil {
		link.Close()
	}

	c.logger.Info("disconnected", "reason", reason)
	if c.hooks.Disconnected != nil {
		c.hooks.Disconnected()
	}
}

// checkReady fires Hooks.Ready on the transition to Ready.
func (c *Connection) checkReady() {
	c.mu.Lock()
	fire := c.readyLocked() && !c.readyFired
	if fire {
		c.readyFired = true
	}
	identity := c.identity
	c.mu.Unlock()

	if fire {
		c.logger.Info("connection ready", "id", identity)
		if c.hooks.Ready != nil {
			c.hooks.Ready()
		}
	}
}

func (c *Connection) readyLocked() bool {
	return c.socketState == socketOpen && c.channelOpen && c.assigned
}

// Ready reports whether the socket is open, the data channel is open
// and an identity is assigned.
func (c *Connection) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readyLocked()
}

// State returns the current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.socketState == socketConnecting:
		return StateSocketConnecting
	case c.socketState == socketClosed:
		return StateDisconnected
	case c.readyLocked():
		return StateReady
	case c.link != nil:
		return StatePeerNegotiating
	default:
		return StateSocketOpen
	}
}

// Identity returns the identity assigned by the server.
func (c *Connection) Identity() (world.ID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity, c.assigned
}

// Reset forgets the assigned identity. The next Connect starts a new
// logical session instead of resuming.
func (c *Connection) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identity = 0
	c.token = ""
	c.assigned = false
	c.readyFired = false
}

// Close stops every sender and closes the socket. The Connection cannot
// be reused.
func (c *Connection) Close() error {
	c.stopSenders()

	c.mu.Lock()
	c.closed = true
	socket := c.socket
	generation := c.generation
	c.mu.Unlock()

	if socket != nil {
		c.writeMu.Lock()
		err := socket.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		if err != nil {
			c.logger.Debug("sending close frame failed", "error", err)
		}
		c.closeSocket(generation, "closed by client")
	}
	return nil
}

// Send encodes msg and sends it on the channel its type calls for:
// reliable types on the signaling socket, the rest on the data channel.
func (c *Connection) Send(msg protocol.Message) error {
	data, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	if msg.Type().Reliable() {
		return c.writeSocket(data)
	}

	c.mu.Lock()
	channel := c.channel
	open := c.channelOpen
	c.mu.Unlock()
	if channel == nil || !open {
		return ErrChannelClosed
	}
	if err := channel.Send(data); err != nil {
		return fmt.Errorf("sending %s on data channel: %w", msg.Type(), err)
	}
	return nil
}

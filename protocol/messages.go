// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"github.com/bureau-foundation/netplay/lib/codec"
	"github.com/bureau-foundation/netplay/world"
)

// Message is the closed set of frame payloads. Every concrete type in
// this file implements it, plus Unrecognized for tags this build does
// not know.
type Message interface {
	Type() Type
}

// ServerID is the peer id of the game server in Description and
// Candidate frames. Frames addressed from or to ServerID negotiate the
// primary data channel; any other id is a voice peer.
const ServerID world.ID = 0

// Hello opens a session. ID and Token are zero on first connect and
// carry the last Identity when resuming.
type Hello struct {
	ID       world.ID `cbor:"1,keyasint,omitempty"`
	Token    string   `cbor:"2,keyasint,omitempty"`
	Protocol int      `cbor:"3,keyasint,omitempty"`
}

// Identity assigns the client's player id. Token authorizes resuming
// the same id on a later socket.
type Identity struct {
	ID    world.ID `cbor:"1,keyasint"`
	Token string   `cbor:"2,keyasint,omitempty"`
}

// Description kinds.
const (
	DescriptionOffer  = "offer"
	DescriptionAnswer = "answer"
)

// Description carries an SDP offer or answer between From and To.
type Description struct {
	From world.ID `cbor:"1,keyasint,omitempty"`
	To   world.ID `cbor:"2,keyasint,omitempty"`
	Kind string   `cbor:"3,keyasint"`
	SDP  string   `cbor:"4,keyasint"`
}

// Candidate carries one ICE candidate from From to To.
type Candidate struct {
	From          world.ID `cbor:"1,keyasint,omitempty"`
	To            world.ID `cbor:"2,keyasint,omitempty"`
	Candidate     string   `cbor:"3,keyasint"`
	SDPMid        *string  `cbor:"4,keyasint,omitempty"`
	SDPMLineIndex *uint16  `cbor:"5,keyasint,omitempty"`
}

// Join announces player ID joining.
type Join struct {
	ID world.ID `cbor:"1,keyasint"`
}

// Leave announces player ID leaving.
type Leave struct {
	ID world.ID `cbor:"1,keyasint"`
}

// Ping is a round-trip probe. Sent is the sender's clock in Unix
// nanoseconds.
type Ping struct {
	Nonce uint32 `cbor:"1,keyasint"`
	Sent  int64  `cbor:"2,keyasint"`
}

// Pong echoes the Nonce and Sent of a Ping.
type Pong struct {
	Nonce uint32 `cbor:"1,keyasint"`
	Sent  int64  `cbor:"2,keyasint"`
}

// EntityState is one entity's properties inside a Snapshot.
type EntityState struct {
	Key    world.Key                      `cbor:"1,keyasint"`
	Values map[world.Property]world.Value `cbor:"2,keyasint,omitempty"`
}

// Snapshot is the full authoritative state. Seq is one counter for
// whole snapshots; a snapshot not newer than the last applied one is
// ignored. The same Seq gates each property it writes.
type Snapshot struct {
	Seq      uint64        `cbor:"1,keyasint"`
	Entities []EntityState `cbor:"2,keyasint,omitempty"`
}

// Delta updates the properties of one existing entity. Seq gates each
// property independently.
type Delta struct {
	Key    world.Key                      `cbor:"1,keyasint"`
	Seq    uint64                         `cbor:"2,keyasint"`
	Values map[world.Property]world.Value `cbor:"3,keyasint,omitempty"`
}

// Delete removes one entity.
type Delete struct {
	Key world.Key `cbor:"1,keyasint"`
}

// Keys carries the full current key-state set.
type Keys struct {
	Pressed map[int32]bool `cbor:"1,keyasint,omitempty"`
}

// State carries the local player's predicted motion.
type State struct {
	Key    world.Key                      `cbor:"1,keyasint"`
	Values map[world.Property]world.Value `cbor:"2,keyasint,omitempty"`
}

// Unrecognized is a frame whose type tag this build does not know. Body
// is the undecoded payload.
type Unrecognized struct {
	Tag  Type
	Body codec.RawMessage
}

func (*Hello) Type() Type       { return TypeHello }
func (*Identity) Type() Type    { return TypeIdentity }
func (*Description) Type() Type { return TypeDescription }
func (*Candidate) Type() Type   { return TypeCandidate }
func (*Join) Type() Type        { return TypeJoin }
func (*Leave) Type() Type       { return TypeLeave }
func (*Ping) Type() Type        { return TypePing }
func (*Pong) Type() Type        { return TypePong }
func (*Snapshot) Type() Type    { return TypeSnapshot }
func (*Delta) Type() Type       { return TypeDelta }
func (*Delete) Type() Type      { return TypeDelete }
func (*Keys) Type() Type        { return TypeKeys }
func (*State) Type() Type       { return TypeState }

func (u *Unrecognized) Type() Type { return u.Tag }

// newMessage returns an empty payload for t, or nil when t is unknown.
func newMessage(t Type) Message {
	switch t {
	case TypeHello:
		return &Hello{}
	case TypeIdentity:
		return &Identity{}
	case TypeDescription:
		return &Description{}
	case TypeCandidate:
		return &Candidate{}
	case TypeJoin:
		return &Join{}
	case TypeLeave:
		return &Leave{}
	case TypePing:
		return &Ping{}
	case TypePong:
		return &Pong{}
	case TypeSnapshot:
		return &Snapshot{}
	case TypeDelta:
		return &Delta{}
	case TypeDelete:
		return &Delete{}
	case TypeKeys:
		return &Keys{}
	case TypeState:
		return &State{}
	default:
		return nil
	}
}

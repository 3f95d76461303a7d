// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import "fmt"

// Type is the integer tag carried by every frame.
type Type uint16

// Frame types. Zero is reserved: a frame with type 0 has no type.
const (
	// TypeHello is the first frame a client sends on a new socket. It
	// carries the previously assigned identity when resuming.
	TypeHello Type = iota + 1

	// TypeIdentity assigns (or confirms) the client's identity.
	TypeIdentity

	// TypeDescription carries an SDP offer or answer.
	TypeDescription

	// TypeCandidate carries one trickled ICE candidate.
	TypeCandidate

	// TypeJoin announces a player joining the session.
	TypeJoin

	// TypeLeave announces a player leaving the session.
	TypeLeave

	// TypePing is a round-trip probe sent by the client.
	TypePing

	// TypePong echoes a Ping.
	TypePong

	// TypeSnapshot is a full authoritative world snapshot.
	TypeSnapshot

	// TypeDelta is an incremental update of one entity.
	TypeDelta

	// TypeDelete removes one entity.
	TypeDelete

	// TypeKeys carries the client's current key-state set.
	TypeKeys

	// TypeState carries the local player's predicted motion state.
	TypeState
)

var typeNames = map[Type]string{
	TypeHello:       "hello",
	TypeIdentity:    "identity",
	TypeDescription: "description",
	TypeCandidate:   "candidate",
	TypeJoin:        "join",
	TypeLeave:       "leave",
	TypePing:        "ping",
	TypePong:        "pong",
	TypeSnapshot:    "snapshot",
	TypeDelta:       "delta",
	TypeDelete:      "delete",
	TypeKeys:        "keys",
	TypeState:       "state",
}

func (t Type) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("type(%d)", uint16(t))
}

// Known reports whether t is one of the frame types defined above.
func (t Type) Known() bool {
	_, ok := typeNames[t]
	return ok
}

// Reliable reports whether frames of type t travel on the signaling
// socket. Signaling, membership and authoritative control frames are
// reliable. High-rate loss-tolerant frames go on the unreliable data
// channel. Unknown types are treated as reliable.
func (t Type) Reliable() bool {
	switch t {
	case TypePing, TypePong, TypeDelta, TypeKeys, TypeState:
		return false
	default:
		return true
	}
}

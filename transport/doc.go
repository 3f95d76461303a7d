// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport is the client side of the netplay wire: one
// [Connection] per game server, carrying reliable frames on a WebSocket
// signaling socket and loss-tolerant frames on an unordered,
// zero-retransmit WebRTC data channel labelled "state".
//
// Frame routing is by type. [protocol.Type.Reliable] types (identity,
// negotiation, join/leave, snapshots and deletes) go on the socket; the
// rest (pings, deltas, input and client state) go on the data channel
// and are dropped while it is closed. Both channels feed one dispatcher
// that decodes each frame and runs the handlers registered for its
// type, in registration order, one frame at a time. [Handle] registers
// a handler with a typed payload.
//
// Connect dials the socket, sends Hello (carrying the previous identity
// and token, if any) and offers the data channel through a [peer.Link]
// addressed to [protocol.ServerID]. Answers and candidates from the
// server complete the negotiation; descriptions and candidates from
// other peers are left to other handlers (the voice mesh). The
// connection is Ready once the socket and channel are open and an
// identity is assigned.
//
// Periodic outbound frames come from senders: [Connection.AddSender]
// registers at most one function per type, called on the connection's
// clock while the connection is Ready.
package transport

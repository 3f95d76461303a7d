// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package protocol defines the netplay wire format.
//
// Every frame, on the WebSocket signaling channel and on the unreliable
// data channel alike, is a CBOR map {0: type, 1: body}. The body is the
// CBOR encoding of the payload struct for that type. [Decode] turns a
// frame into one variant of the closed [Message] union; a type tag this
// build does not know becomes [Unrecognized] so callers can log and
// drop it without touching untyped data.
//
// [Type.Reliable] decides which channel a frame travels on. Signaling,
// membership, snapshots and deletes need delivery; pings, deltas and
// client input tolerate loss and are sent unordered with no
// retransmission.
package protocol

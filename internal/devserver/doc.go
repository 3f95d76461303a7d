// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package devserver is a small authoritative netplay server for local
// play and tests.
//
// It speaks the same protocol as a production game server: a client
// connects over WebSocket, sends Hello, and receives an Identity. The
// client offers a data channel and the server answers with a
// [peer.Link]. Voice signaling addressed to another player is relayed
// with the sender's id filled in. Pings are answered with pongs, Keys
// and State frames are recorded per [Session], and [Server.BroadcastSnapshot]
// sends the server's world to every client.
//
// Identities are resumable: Identity carries a random token, and a
// later Hello presenting the same id and token gets the same id back as
// long as no live session holds it.
package devserver

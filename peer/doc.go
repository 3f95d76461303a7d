// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package peer negotiates WebRTC peer connections over netplay's
// signaling channel.
//
// A [Link] is the offer/answer state machine for one peer connection.
// The offerer calls [Link.Offer]; descriptions and candidates received
// from the other side go to [Link.HandleDescription] and
// [Link.HandleCandidate]. Local candidates are trickled to the
// [Signaler] as pion discovers them. Remote candidates that arrive
// before the remote description are buffered and applied in order once
// it is set. Calls that are illegal in the current state return typed
// errors ([ErrUnexpectedAnswer], [ErrUnexpectedOffer], [ErrClosed]).
//
// The client's primary data channel is one Link to the game server
// ([protocol.ServerID]). Voice is a [Mesh] of Links, one per remote
// player, where the player with the smaller id offers.
//
// [NewPeerConnection] builds the pion PeerConnection used in both
// roles, with loopback candidates enabled for same-host play and tests.
package peer

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds netplay's shared CBOR configuration.
//
// Every frame on both channels (the WebSocket signaling channel and the
// unreliable data channel) is a CBOR item produced by this package, so
// client and dev server encode identically without repeating options.
//
// Wire structs use integer map keys (`cbor:"1,keyasint"`) rather than
// field names: the unreliable channel carries tens of frames per second
// per client, and a one-byte key is the difference between a delta
// fitting in a single small datagram or not.
//
//	data, err := codec.Marshal(frame)
//	err = codec.Unmarshal(data, &frame)
package codec

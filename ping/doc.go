// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ping estimates round-trip time over the unreliable data
// channel. A [Pinger] is a ping sender and pong handler pair attached
// to a transport.Connection.
package ping

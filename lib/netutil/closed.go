// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil classifies the errors that end a signaling socket.
package netutil

import (
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/gorilla/websocket"
)

// IsExpectedCloseError reports whether err is an ordinary end of a
// WebSocket session rather than a fault. Expected are close frames with
// a normal, going-away or no-status code, the abnormal-closure code
// gorilla reports when the peer drops the TCP connection without a
// close frame, EOF, a locally closed connection, a broken pipe, and a
// connection reset.
func IsExpectedCloseError(err error) bool {
	if err == nil {
		return false
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
		websocket.CloseAbnormalClosure,
	) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.EPIPE || errno == syscall.ECONNRESET
	}
	return false
}

// CloseReason returns a short description of why a session ended, for
// logging: "closed" for expected closes, the error text otherwise.
func CloseReason(err error) string {
	if err == nil || IsExpectedCloseError(err) {
		return "closed"
	}
	return err.Error()
}

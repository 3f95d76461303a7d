// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/bureau-foundation/netplay/lib/netutil"
)

// maxFrameSize bounds a single signaling frame. Snapshots are the
// largest frames.
const maxFrameSize = 1 << 20

// readLoop reads frames from socket until it fails, then tears the
// session down. generation identifies the session the socket belongs
// to, so a stale loop cannot close a newer session.
func (c *Connection) readLoop(socket *websocket.Conn, generation uint64) {
	socket.SetReadLimit(maxFrameSize)
	for {
		messageType, data, err := socket.ReadMessage()
		if err != nil {
			c.closeSocket(generation, "socket "+netutil.CloseReason(err))
			return
		}
		if messageType != websocket.BinaryMessage {
			c.logger.Debug("dropping non-binary signaling frame", "message_type", messageType)
			continue
		}
		c.dispatch(data, "socket")
	}
}

func (c *Connection) writeSocket(data []byte) error {
	c.mu.Lock()
	socket := c.socket
	c.mu.Unlock()
	if socket == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := socket.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("writing signaling frame: %w", err)
	}
	return nil
}

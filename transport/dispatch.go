// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"slices"

	"github.com/bureau-foundation/netplay/lib/codec"
	"github.com/bureau-foundation/netplay/protocol"
)

// Handler receives one decoded inbound frame.
type Handler func(msg protocol.Message)

type handlerEntry struct {
	handler Handler
}

// AddHandler registers handler for frames of type t and returns a
// function that removes it. Handlers for one type run in registration
// order. Registration and removal are safe from inside a handler; the
// change takes effect from the next frame.
func (c *Connection) AddHandler(t protocol.Type, handler Handler) (remove func()) {
	entry := &handlerEntry{handler: handler}

	c.handlersMu.Lock()
	list := slices.Clone(c.handlers[t])
	c.handlers[t] = append(list, entry)
	c.handlersMu.Unlock()

	return func() {
		c.handlersMu.Lock()
		defer c.handlersMu.Unlock()
		list := c.handlers[t]
		index := slices.Index(list, entry)
		if index < 0 {
			return
		}
		list = slices.Delete(slices.Clone(list), index, index+1)
		if len(list) == 0 {
			delete(c.handlers, t)
			return
		}
		c.handlers[t] = list
	}
}

// Handle registers a handler typed by its frame struct:
//
//	transport.Handle(connection, func(delta *protocol.Delta) { ... })
func Handle[T protocol.Message](c *Connection, handler func(T)) (remove func()) {
	var zero T
	return c.AddHandler(zero.Type(), func(msg protocol.Message) {
		if typed, ok := msg.(T); ok {
			handler(typed)
		}
	})
}

// dispatch decodes data and runs the handlers for its type. Frames from
// the socket and the data channel are dispatched one at a time.
// Undecodable frames, frames without a type and frames nobody handles
// are logged and dropped.
func (c *Connection) dispatch(data []byte, source string) {
	msg, err := protocol.Decode(data)
	if err != nil {
		c.logger.Debug("dropping undecodable frame", "source", source, "error", err, "frame", diagnose(data))
		return
	}
	if unrecognized, ok := msg.(*protocol.Unrecognized); ok {
		c.logger.Debug("dropping frame of unknown type", "source", source, "type", unrecognized.Type())
		return
	}

	c.handlersMu.Lock()
	handlers := c.handlers[msg.Type()]
	c.handlersMu.Unlock()

	if len(handlers) == 0 {
		c.logger.Debug("no handler for frame", "source", source, "type", msg.Type())
		return
	}

	c.dispatchMu.Lock()
	defer c.dispatchMu.Unlock()
	for _, entry := range handlers {
		entry.handler(msg)
	}
}

// diagnose renders a frame for a log line, bounded in size.
func diagnose(data []byte) string {
	const limit = 256
	text, err := codec.Diagnose(data)
	if err != nil {
		return "invalid CBOR"
	}
	if len(text) > limit {
		return text[:limit] + "..."
	}
	return text
}

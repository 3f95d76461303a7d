// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/netplay/lib/clock"
	"github.com/bureau-foundation/netplay/protocol"
)

// SenderFunc produces the frame for one sender tick, or nil to skip the
// tick.
type SenderFunc func() protocol.Message

// sender is one periodic sender registration. A tick holds mu while it
// checks stopped and calls fn, and stop takes mu before setting
// stopped, so fn is never called once stop has returned. running marks
// a tick inside fn, where stop must not take mu.
type sender struct {
	mu      sync.Mutex
	stopped atomic.Bool
	running atomic.Bool
	timer   *clock.Timer
}

// produce calls fn unless the sender is stopped or ready reports
// false.
func (entry *sender) produce(ready func() bool, fn SenderFunc) protocol.Message {
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.stopped.Load() || !ready() {
		return nil
	}
	entry.running.Store(true)
	defer entry.running.Store(false)
	return fn()
}

// stop prevents every later call of fn. Called from inside fn it
// returns at once; otherwise it waits for a call in progress.
func (entry *sender) stop() {
	if entry.running.Load() {
		entry.stopped.Store(true)
	} else {
		entry.mu.Lock()
		entry.stopped.Store(true)
		entry.mu.Unlock()
	}
	entry.timer.Stop()
}

// AddSender registers fn to run every interval and send the frame it
// returns. At most one sender exists per type: a second registration
// for t returns false and leaves the first in place. Ticks that occur
// while the connection is not Ready are skipped without calling fn.
func (c *Connection) AddSender(t protocol.Type, fn SenderFunc, interval time.Duration) bool {
	if interval <= 0 {
		return false
	}

	c.sendersMu.Lock()
	defer c.sendersMu.Unlock()
	if _, exists := c.senders[t]; exists {
		return false
	}
	entry := &sender{}
	c.senders[t] = entry
	c.scheduleLocked(t, entry, fn, interval)
	return true
}

func (c *Connection) scheduleLocked(t protocol.Type, entry *sender, fn SenderFunc, interval time.Duration) {
	entry.timer = c.clock.AfterFunc(interval, func() {
		c.tick(t, entry, fn, interval)
	})
}

func (c *Connection) tick(t protocol.Type, entry *sender, fn SenderFunc, interval time.Duration) {
	if msg := entry.produce(c.Ready, fn); msg != nil {
		if err := c.Send(msg); err != nil && !errors.Is(err, ErrChannelClosed) {
			c.logger.Debug("sender tick failed", "type", t, "error", err)
		}
	}

	c.sendersMu.Lock()
	defer c.sendersMu.Unlock()
	if !entry.stopped.Load() && c.senders[t] == entry {
		c.scheduleLocked(t, entry, fn, interval)
	}
}

// DeleteSender stops the sender for t, including a tick already
// scheduled or waiting to call the sender function. Once it returns
// the function is not called again. It reports whether a sender was
// registered.
func (c *Connection) DeleteSender(t protocol.Type) bool {
	c.sendersMu.Lock()
	entry, ok := c.senders[t]
	delete(c.senders, t)
	c.sendersMu.Unlock()

	if !ok {
		return false
	}
	entry.stop()
	return true
}

// HasSender reports whether a sender is registered for t.
func (c *Connection) HasSender(t protocol.Type) bool {
	c.sendersMu.Lock()
	defer c.sendersMu.Unlock()
	_, ok := c.senders[t]
	return ok
}

func (c *Connection) stopSenders() {
	c.sendersMu.Lock()
	entries := make([]*sender, 0, len(c.senders))
	for t, entry := range c.senders {
		entries = append(entries, entry)
		delete(c.senders, t)
	}
	c.sendersMu.Unlock()

	for _, entry := range entries {
		entry.stop()
	}
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ping

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/netplay/lib/clock"
	"github.com/bureau-foundation/netplay/protocol"
	"github.com/bureau-foundation/netplay/transport"
)

// maxOutstanding bounds the pings awaiting a pong. Older ones are
// forgotten and their pongs dropped.
const maxOutstanding = 16

// smoothing is the weight of a new sample in the smoothed estimate.
const smoothing = 1.0 / 8

// Transport is the part of a transport.Connection the Pinger uses.
type Transport interface {
	AddHandler(t protocol.Type, handler transport.Handler) (remove func())
	AddSender(t protocol.Type, fn transport.SenderFunc, interval time.Duration) bool
	DeleteSender(t protocol.Type) bool
}

var _ Transport = (*transport.Connection)(nil)

// Options configures a Pinger.
type Options struct {
	// Clock stamps pings and measures round trips. Defaults to
	// clock.Real().
	Clock clock.Clock

	Logger *slog.Logger
}

// Pinger estimates the round-trip time to the server. Each ping carries
// a fresh nonce and the send time; the server echoes both in a pong.
// A pong is accepted only for an outstanding nonce, and accepting it
// retires every older nonce, so reordered pongs never produce a sample.
type Pinger struct {
	clock  clock.Clock
	logger *slog.Logger

	mu          sync.Mutex
	nonce       uint32
	outstanding []outstandingPing
	last        time.Duration
	smoothed    time.Duration
	samples     int

	remove    func()
	transport Transport
}

type outstandingPing struct {
	nonce uint32
	sent  time.Time
}

// New creates a Pinger that is not attached to any transport. Use
// Attach to start pinging, or drive Next and HandlePong directly.
func New(options Options) *Pinger {
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Pinger{clock: options.Clock, logger: options.Logger}
}

// Attach registers the pong handler and a ping sender ticking every
// interval on t. It returns false if t already has a ping sender, in
// which case nothing is registered.
func (p *Pinger) Attach(t Transport, interval time.Duration) bool {
	if !t.AddSender(protocol.TypePing, func() protocol.Message { return p.Next() }, interval) {
		return false
	}
	remove := t.AddHandler(protocol.TypePong, func(msg protocol.Message) {
		if pong, ok := msg.(*protocol.Pong); ok {
			p.HandlePong(pong)
		}
	})

	p.mu.Lock()
	p.transport = t
	p.remove = remove
	p.mu.Unlock()
	return true
}

// Detach removes the handler and sender registered by Attach.
func (p *Pinger) Detach() {
	p.mu.Lock()
	t, remove := p.transport, p.remove
	p.transport, p.remove = nil, nil
	p.mu.Unlock()

	if t == nil {
		return
	}
	t.DeleteSender(protocol.TypePing)
	remove()
}

// Next returns the next ping to send and records it as outstanding.
func (p *Pinger) Next() *protocol.Ping {
	now := p.clock.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.nonce++
	p.outstanding = append(p.outstanding, outstandingPing{nonce: p.nonce, sent: now})
	if len(p.outstanding) > maxOutstanding {
		p.outstanding = p.outstanding[len(p.outstanding)-maxOutstanding:]
	}
	return &protocol.Ping{Nonce: p.nonce, Sent: now.UnixNano()}
}

// HandlePong records a round-trip sample if pong answers an outstanding
// ping. It reports whether a sample was taken.
func (p *Pinger) HandlePong(pong *protocol.Pong) bool {
	now := p.clock.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	index := -1
	for i, pending := range p.outstanding {
		if pending.nonce == pong.Nonce {
			index = i
			break
		}
	}
	if index < 0 {
		p.logger.Debug("dropping pong with unknown nonce", "nonce", pong.Nonce)
		return false
	}
	pending := p.outstanding[index]
	if pending.sent.UnixNano() != pong.Sent {
		p.logger.Debug("dropping pong with mismatched send time", "nonce", pong.Nonce)
		return false
	}
	p.outstanding = p.outstanding[index+1:]

	sample := now.Sub(pending.sent)
	p.last = sample
	if p.samples == 0 {
		p.smoothed = sample
	} else {
		p.smoothed += time.Duration(smoothing * float64(sample-p.smoothed))
	}
	p.samples++
	return true
}

// Last returns the most recent round-trip sample, or zero before the
// first pong.
func (p *Pinger) Last() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Smoothed returns the exponentially weighted average of the samples.
func (p *Pinger) Smoothed() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.smoothed
}

// Samples returns the number of samples taken.
func (p *Pinger) Samples() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.samples
}

// Reset forgets every sample and outstanding ping.
func (p *Pinger) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outstanding = nil
	p.last, p.smoothed, p.samples = 0, 0, 0
}

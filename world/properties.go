// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package world

import (
	"time"

	"github.com/bureau-foundation/netplay/lib/clock"
)

// Properties is the sequenced property store of one entity: the current
// value of every property, and independently the highest sequence
// number applied to each property.
//
// Ordering is per property. A sequenced write to a property is dropped
// when its sequence number is below the last one applied to that same
// property; writes to other properties are unaffected. This lets cheap
// high-rate fields such as position ride the unreliable channel while
// rarer authoritative fields stay correct under reordering.
//
// Properties is not safe for concurrent use. SceneMap serializes access
// to the stores it owns.
type Properties struct {
	tuning      Tuning
	clock       clock.Clock
	values      map[Property]Value
	sequence    map[Property]uint64
	lastApplied time.Time
}

// NewProperties returns an empty store. The clock measures the time
// since the last applied update for the motion blend weight.
func NewProperties(tuning Tuning, clk clock.Clock) *Properties {
	return &Properties{
		tuning:   tuning,
		clock:    clk,
		values:   make(map[Property]Value),
		sequence: make(map[Property]uint64),
	}
}

// Update merges values into the store and returns how many properties
// changed.
//
// With seq nil the values are local extrapolation: a vector replaces a
// prior vector by blending toward it (or not at all past the teleport
// threshold), a set merges its flags into a prior set, and anything
// else overwrites. Unsequenced writes never touch recorded sequence
// numbers.
//
// With seq set the values are authoritative: each property is
// overwritten verbatim when it has no recorded sequence number or seq
// is at least the recorded one, and seq is recorded. Older writes are
// dropped.
func (p *Properties) Update(values map[Property]Value, seq *uint64) int {
	now := p.clock.Now()
	applied := 0

	if seq != nil {
		for property, value := range values {
			if last, ok := p.sequence[property]; ok && *seq < last {
				continue
			}
			p.values[property] = value.Clone()
			p.sequence[property] = *seq
			applied++
		}
	} else {
		weight := p.tuning.Weight(now.Sub(p.lastApplied))
		for property, value := range values {
			if p.mergeUnsequenced(property, value, weight) {
				applied++
			}
		}
	}

	if applied > 0 {
		p.lastApplied = now
	}
	return applied
}

func (p *Properties) mergeUnsequenced(property Property, value Value, weight float64) bool {
	prior, ok := p.values[property]
	switch {
	case ok && value.Kind == KindVector && prior.Kind == KindVector:
		blended, accepted := Blend(prior.Vector, value.Vector, weight)
		if !accepted {
			return false
		}
		prior.Vector = blended
		p.values[property] = prior

	case ok && value.Kind == KindSet && prior.Kind == KindSet:
		merged := prior.Clone()
		if merged.Set == nil {
			merged.Set = make(map[int32]bool, len(value.Set))
		}
		for flag, on := range value.Set {
			merged.Set[flag] = on
		}
		p.values[property] = merged

	default:
		p.values[property] = value.Clone()
	}
	return true
}

// Get returns the current value of property.
func (p *Properties) Get(property Property) (Value, bool) {
	value, ok := p.values[property]
	if !ok {
		return Value{}, false
	}
	return value.Clone(), true
}

// Has reports whether property has a value.
func (p *Properties) Has(property Property) bool {
	_, ok := p.values[property]
	return ok
}

// Sequence returns the last sequence number applied to property.
func (p *Properties) Sequence(property Property) (uint64, bool) {
	seq, ok := p.sequence[property]
	return seq, ok
}

// Len returns the number of properties with a value.
func (p *Properties) Len() int { return len(p.values) }

// Data returns a deep copy of every current value.
func (p *Properties) Data() Snapshot {
	return Snapshot(p.values).Clone()
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package world

import (
	"fmt"
	"maps"
)

// Property is a small-integer property key within an entity.
type Property uint16

// Properties the protocol assigns. Games may use further values; the
// store treats unknown properties like any other.
const (
	PropPosition     Property = 1
	PropVelocity     Property = 2
	PropAcceleration Property = 3
	PropKeys         Property = 4
	PropAttributes   Property = 5
	PropHealth       Property = 6
	PropScore        Property = 7
	PropTeam         Property = 8
	PropName         Property = 9
	PropExpired      Property = 10
)

// Kind tags the variant held by a Value.
type Kind uint8

const (
	KindNone Kind = iota
	KindNumber
	KindBool
	KindText
	// KindVector values are motion vectors: unsequenced updates are
	// blended into the prior value instead of replacing it.
	KindVector
	// KindSet values are flag sets: unsequenced updates are merged key
	// by key instead of replacing the whole set.
	KindSet
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindText:
		return "text"
	case KindVector:
		return "vector"
	case KindSet:
		return "set"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Vector is a 2-D motion vector.
type Vector struct {
	_ struct{} `cbor:",toarray"`
	X float64
	Y float64
}

// V is shorthand for a Vector literal.
func V(x, y float64) Vector { return Vector{X: x, Y: y} }

// Sub returns v - other.
func (v Vector) Sub(other Vector) Vector { return Vector{X: v.X - other.X, Y: v.Y - other.Y} }

// LengthSquared returns |v|².
func (v Vector) LengthSquared() float64 { return v.X*v.X + v.Y*v.Y }

// Lerp returns v·(1−w) + other·w.
func (v Vector) Lerp(other Vector, w float64) Vector {
	return Vector{X: v.X*(1-w) + other.X*w, Y: v.Y*(1-w) + other.Y*w}
}

// Value is the closed union of property values. Kind selects which
// field is meaningful.
type Value struct {
	Kind   Kind           `cbor:"0,keyasint"`
	Number float64        `cbor:"1,keyasint,omitempty"`
	Bool   bool           `cbor:"2,keyasint,omitempty"`
	Text   string         `cbor:"3,keyasint,omitempty"`
	Vector Vector         `cbor:"4,keyasint,omitempty"`
	Set    map[int32]bool `cbor:"5,keyasint,omitempty"`
}

// Number returns a KindNumber value.
func Number(n float64) Value { return Value{Kind: KindNumber, Number: n} }

// Bool returns a KindBool value.
func Bool(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// Text returns a KindText value.
func Text(s string) Value { return Value{Kind: KindText, Text: s} }

// Vec returns a KindVector value.
func Vec(x, y float64) Value { return Value{Kind: KindVector, Vector: V(x, y)} }

// Set returns a KindSet value holding a copy of flags.
func Set(flags map[int32]bool) Value { return Value{Kind: KindSet, Set: maps.Clone(flags)} }

// Clone returns a deep copy of v.
func (v Value) Clone() Value {
	if v.Set != nil {
		v.Set = maps.Clone(v.Set)
	}
	return v
}

// Equal reports whether v and other hold the same variant and payload.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	switch v.Kind {
	case KindNumber:
		return v.Number == other.Number
	case KindBool:
		return v.Bool == other.Bool
	case KindText:
		return v.Text == other.Text
	case KindVector:
		return v.Vector.X == other.Vector.X && v.Vector.Y == other.Vector.Y
	case KindSet:
		return maps.Equal(v.Set, other.Set)
	default:
		return true
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KindNumber:
		return fmt.Sprintf("%g", v.Number)
	case KindBool:
		return fmt.Sprintf("%t", v.Bool)
	case KindText:
		return fmt.Sprintf("%q", v.Text)
	case KindVector:
		return fmt.Sprintf("(%g, %g)", v.Vector.X, v.Vector.Y)
	case KindSet:
		return fmt.Sprintf("set%v", v.Set)
	default:
		return v.Kind.String()
	}
}

// Snapshot is a detached copy of an entity's values, safe to hand to
// render and prediction code.
type Snapshot map[Property]Value

// Get returns the value of p, or the zero Value.
func (s Snapshot) Get(p Property) Value { return s[p] }

// Clone returns a deep copy of s.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for property, value := range s {
		out[property] = value.Clone()
	}
	return out
}

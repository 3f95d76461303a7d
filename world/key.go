// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package world

import (
	"cmp"
	"fmt"
)

// Space is the category tag that partitions the entity ID namespace.
// IDs are unique only within one space.
type Space int

// Spaces the protocol defines. Games may use further positive values.
const (
	SpacePlayer     Space = 1
	SpaceProjectile Space = 2
	SpaceItem       Space = 3
)

var spaceNames = map[Space]string{
	SpacePlayer:     "player",
	SpaceProjectile: "projectile",
	SpaceItem:       "item",
}

func (s Space) String() string {
	if name, ok := spaceNames[s]; ok {
		return name
	}
	return fmt.Sprintf("space(%d)", int(s))
}

// ID identifies an entity within its space.
type ID int64

// Key addresses one entity: (space, id).
type Key struct {
	Space Space `cbor:"1,keyasint"`
	ID    ID    `cbor:"2,keyasint"`
}

// K is shorthand for Key{Space: space, ID: id}.
func K(space Space, id ID) Key { return Key{Space: space, ID: id} }

// Valid reports whether the key can name an entity. Space must be
// positive and ID non-negative.
func (k Key) Valid() bool { return k.Space > 0 && k.ID >= 0 }

func (k Key) String() string { return fmt.Sprintf("%s/%d", k.Space, k.ID) }

// Compare orders keys by space, then id.
func (k Key) Compare(other Key) int {
	if c := cmp.Compare(k.Space, other.Space); c != 0 {
		return c
	}
	return cmp.Compare(k.ID, other.ID)
}

// Handle is a generation-checked reference to an entity. A handle taken
// before a delete (or before a Reset and re-creation under the same
// key) never resolves to the newer entity.
type Handle struct {
	Key        Key
	Generation uint32
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"github.com/fxamacker/cbor/v2"
)

// encMode writes Core Deterministic Encoding with floats shrunk to the
// shortest width that round-trips exactly. Positions and velocities
// that land on half-precision values cost three bytes on the wire.
var encMode cbor.EncMode

// decMode reads frames from the network. Duplicate map keys are
// rejected so a frame cannot carry two values for one property and
// have the last one win silently. Nesting and container sizes are
// bounded well above what any frame needs. Unknown struct fields are
// ignored so newer peers can add fields.
var decMode cbor.DecMode

var diagMode cbor.DiagMode

// Decoding limits. A snapshot is the largest frame: one array of
// entities, each a map of properties, a set value one level deeper.
const (
	maxNestedLevels = 16
	maxArrayLength  = 1 << 16
	maxMapPairs     = 1 << 16
)

func init() {
	encOptions := cbor.CoreDetEncOptions()
	encOptions.ShortestFloat = cbor.ShortestFloat16
	encOptions.NaNConvert = cbor.NaNConvert7e00
	encOptions.InfConvert = cbor.InfConvertFloat16
	var err error
	if encMode, err = encOptions.EncMode(); err != nil {
		panic("codec: building CBOR encoder: " + err.Error())
	}

	decOptions := cbor.DecOptions{
		DupMapKey:        cbor.DupMapKeyEnforcedAPF,
		MaxNestedLevels:  maxNestedLevels,
		MaxArrayElements: maxArrayLength,
		MaxMapPairs:      maxMapPairs,
	}
	if decMode, err = decOptions.DecMode(); err != nil {
		panic("codec: building CBOR decoder: " + err.Error())
	}

	diagOptions := cbor.DiagOptions{
		ByteStringEncoding: cbor.ByteStringBase16Encoding,
		MaxNestedLevels:    maxNestedLevels,
		MaxArrayElements:   maxArrayLength,
		MaxMapPairs:        maxMapPairs,
	}
	if diagMode, err = diagOptions.DiagMode(); err != nil {
		panic("codec: building CBOR diagnoser: " + err.Error())
	}
}

// Marshal encodes v to CBOR.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// RawMessage is an encoded CBOR item whose decoding is deferred. Frame
// bodies travel as RawMessage until the frame type is known. Type alias
// so callers import only lib/codec.
type RawMessage = cbor.RawMessage

// Diagnose renders data in CBOR diagnostic notation for the logs of
// frames that could not be dispatched. Byte strings are shown as hex.
func Diagnose(data []byte) (string, error) {
	return diagMode.Diagnose(data)
}

// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package protocol

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/netplay/lib/codec"
)

// ErrMissingType is returned by Decode for a frame with no type tag.
var ErrMissingType = errors.New("frame has no type")

// envelope is the wire form of every frame: {0: type, 1: body}.
type envelope struct {
	Type Type             `cbor:"0,keyasint"`
	Body codec.RawMessage `cbor:"1,keyasint,omitempty"`
}

// Encode serializes msg as a frame.
func Encode(msg Message) ([]byte, error) {
	t := msg.Type()
	if t == 0 {
		return nil, ErrMissingType
	}

	var body []byte
	if unrecognized, ok := msg.(*Unrecognized); ok {
		body = unrecognized.Body
	} else {
		var err error
		body, err = codec.Marshal(msg)
		if err != nil {
			return nil, fmt.Errorf("encoding %s body: %w", t, err)
		}
	}

	data, err := codec.Marshal(envelope{Type: t, Body: body})
	if err != nil {
		return nil, fmt.Errorf("encoding %s frame: %w", t, err)
	}
	return data, nil
}

// Decode parses a frame. A frame with an unknown type decodes to
// *Unrecognized without error; a frame with no type returns
// ErrMissingType.
func Decode(data []byte) (Message, error) {
	var frame envelope
	if err := codec.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}
	if frame.Type == 0 {
		return nil, ErrMissingType
	}

	msg := newMessage(frame.Type)
	if msg == nil {
		return &Unrecognized{Tag: frame.Type, Body: frame.Body}, nil
	}
	if len(frame.Body) > 0 {
		if err := codec.Unmarshal(frame.Body, msg); err != nil {
			return nil, fmt.Errorf("decoding %s body: %w", frame.Type, err)
		}
	}
	return msg, nil
}

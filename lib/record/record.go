// Copyright 2026 The Sessionlog Authors
// SPDX-License-Identifier: Apache-2.0

package record

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// MarkerID is the reserved command id for the initial-state marker.
// The storage backend appends a marker record itself when running in
// marker mode; callers must never supply it.
const MarkerID byte = 0xFF

// SizePrefixLength is the length of the uint16 frame prefix.
const SizePrefixLength = 2

// IDLength is the length of the command id within a frame.
const IDLength = 1

// MaxPayloadSize is the largest payload that fits an unencrypted
// frame: the uint16 prefix covers the id plus the payload.
const MaxPayloadSize = math.MaxUint16 - IDLength

// EncryptionOverhead is the AEAD authentication tag length added to
// every encrypted record.
const EncryptionOverhead = 16

// MaxEncryptedPayloadSize is the largest payload that fits an
// encrypted frame once the id and the authentication tag are
// accounted for. Larger payloads are chopped, not rejected.
const MaxEncryptedPayloadSize = math.MaxUint16 - IDLength - EncryptionOverhead

// ErrPayloadTooLarge is returned when a plaintext payload cannot fit
// the uint16 frame.
var ErrPayloadTooLarge = errors.New("record: payload exceeds frame size")

// ErrNoncesExhausted is returned when the record counter has wrapped
// negative. Writing past this point would reuse a nonce; reading past
// it means the file was written by something that did.
var ErrNoncesExhausted = errors.New("record: record counter exhausted")

// ErrEmpty is returned for a zero-length frame. A well-formed record
// always contains at least the id byte.
var ErrEmpty = errors.New("record: empty record")

// Command is one session command: an id and an opaque payload. The
// payload bytes are owned by the Command and are not copied.
type Command struct {
	ID      byte
	Payload []byte
}

// New returns a Command with the given id and payload.
func New(id byte, payload []byte) Command {
	return Command{ID: id, Payload: payload}
}

// SerializedSize returns the value written to the frame's length
// prefix: the id byte plus the payload.
func (c Command) SerializedSize() int {
	return IDLength + len(c.Payload)
}

// EncodePlain serializes a command as an unencrypted frame:
//
//	uint16 total_size (little-endian, = 1 + len(payload))
//	uint8  id
//	bytes  payload
//
// Returns ErrPayloadTooLarge if the payload does not fit.
func EncodePlain(c Command) ([]byte, error) {
	if len(c.Payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(c.Payload))
	}
	frame := make([]byte, SizePrefixLength+IDLength+len(c.Payload))
	binary.LittleEndian.PutUint16(frame, uint16(c.SerializedSize()))
	frame[SizePrefixLength] = c.ID
	copy(frame[SizePrefixLength+IDLength:], c.Payload)
	return frame, nil
}

// DecodePlain parses the body of an unencrypted frame (the bytes
// after the length prefix) into a Command. The payload is copied out
// of body.
func DecodePlain(body []byte) (Command, error) {
	if len(body) < IDLength {
		return Command{}, ErrEmpty
	}
	payload := make([]byte, len(body)-IDLength)
	copy(payload, body[IDLength:])
	return Command{ID: body[0], Payload: payload}, nil
}

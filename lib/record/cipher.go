// Copyright 2026 The Sessionlog Authors
// SPDX-License-Identifier: Apache-2.0

package record

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"fmt"

	"github.com/bureau-foundation/sessionlog/lib/secret"
)

// KeySize is the AES-256 key length.
const KeySize = 32

// NonceSize is the GCM nonce length. The low four bytes hold the
// little-endian record counter; the remaining eight are zero.
const NonceSize = 12

// Cipher is the AEAD state for one session file: an AES-256-GCM
// instance bound to a single key. A Cipher carries no counter of its
// own; the caller passes the record counter to Seal and Open so that
// the writer and the reader stay in lockstep.
//
// A key change always means a new Cipher and a new file. Reusing a
// Cipher across files would reuse the counter-derived nonce sequence
// under the same key.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from a 32-byte key. The key bytes are
// read from the buffer at construction time only; the AES key
// schedule is what persists.
func NewCipher(key *secret.Buffer) (*Cipher, error) {
	if key.Len() != KeySize {
		return nil, fmt.Errorf("record: key must be %d bytes, got %d", KeySize, key.Len())
	}
	block, err := aes.NewCipher(key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("record: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("record: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// nonce derives the 12-byte nonce for a record counter.
func nonce(counter int32) []byte {
	n := make([]byte, NonceSize)
	binary.LittleEndian.PutUint32(n, uint32(counter))
	return n
}

// Seal serializes a command as an encrypted frame: a uint16 length
// prefix followed by the AEAD seal of (id || payload) under the nonce
// derived from counter. A payload too large for the frame once the
// tag is added is chopped to MaxEncryptedPayloadSize rather than
// rejected, matching the write-side contract that oversized commands
// degrade instead of failing the whole batch.
//
// Returns ErrNoncesExhausted if counter is negative.
func (c *Cipher) Seal(counter int32, cmd Command) ([]byte, error) {
	if counter < 0 {
		return nil, ErrNoncesExhausted
	}
	payload := cmd.Payload
	if len(payload) > MaxEncryptedPayloadSize {
		payload = payload[:MaxEncryptedPayloadSize]
	}
	plaintext := make([]byte, IDLength+len(payload))
	plaintext[0] = cmd.ID
	copy(plaintext[IDLength:], payload)

	ciphertext := c.aead.Seal(nil, nonce(counter), plaintext, nil)
	frame := make([]byte, SizePrefixLength+len(ciphertext))
	binary.LittleEndian.PutUint16(frame, uint16(len(ciphertext)))
	copy(frame[SizePrefixLength:], ciphertext)
	return frame, nil
}

// Open decrypts the body of an encrypted frame (the bytes after the
// length prefix) using the nonce derived from counter and parses the
// plaintext into a Command.
//
// Returns ErrNoncesExhausted if counter is negative: the writer never
// produces that many records, so a reader that reaches this point
// must stop rather than re-derive an already-used nonce.
func (c *Cipher) Open(counter int32, body []byte) (Command, error) {
	if counter < 0 {
		return Command{}, ErrNoncesExhausted
	}
	plaintext, err := c.aead.Open(nil, nonce(counter), body, nil)
	if err != nil {
		return Command{}, fmt.Errorf("record: decrypt: %w", err)
	}
	if len(plaintext) < IDLength {
		return Command{}, ErrEmpty
	}
	return Command{ID: plaintext[0], Payload: plaintext[IDLength:]}, nil
}

// Copyright 2026 The Sessionlog Authors
// SPDX-License-Identifier: Apache-2.0

// Package record defines the command record: the unit of data stored
// in a session log file. A record is an 8-bit id plus an opaque
// payload, framed with a little-endian uint16 length prefix that
// covers the id and the payload together.
//
// Records are written either in the clear or as an AES-256-GCM
// envelope. [Cipher] holds the AEAD state for one file: a 32-byte key
// and nothing else. The per-record nonce is derived from the record
// counter maintained by the caller (the file writer on the write
// side, the file reader on the read side), so both sides derive the
// same nonce sequence without storing nonces on disk. The counter is
// a signed 32-bit value; a counter that has gone negative means the
// nonce space is exhausted and both sides must stop.
package record

// Copyright 2026 The Sessionlog Authors
// SPDX-License-Identifier: Apache-2.0

// Package keyfile manages the 32-byte AES-256-GCM keys session logs
// are sealed under.
//
// Keys live in lib/secret buffers (mlocked, dump-excluded, zeroed on
// close) from the moment they exist. A deployment typically holds one
// master key and derives an independent per-session-type key from it
// with HKDF-SHA256 under a domain-separated info string; compromising
// one derived key reveals nothing about its siblings.
//
// At rest a key is an age envelope encrypted to a passphrase (scrypt
// recipient), so an operator can move a key file between machines
// with nothing but the passphrase.
package keyfile

import (
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"os"

	"filippo.io/age"
	"golang.org/x/crypto/hkdf"

	"github.com/bureau-foundation/sessionlog/lib/secret"
)

// KeySize is the AES-256 key length.
const KeySize = 32

// hkdfInfo is the domain-separation prefix for per-session-type key
// derivation. Changing it invalidates every derived key.
const hkdfInfo = "sessionlog.key."

// Generate returns a fresh random 32-byte key.
func Generate() (*secret.Buffer, error) {
	raw := make([]byte, KeySize)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("keyfile: %w", err)
	}
	return secret.NewFromBytes(raw)
}

// Derive computes the per-session-type key for a master key using
// HKDF-SHA256 with the info string "sessionlog.key.<type>.v1". The
// master key is borrowed, not closed. The caller must close the
// returned buffer.
func Derive(master *secret.Buffer, sessionType string) (*secret.Buffer, error) {
	if sessionType == "" {
		return nil, fmt.Errorf("keyfile: session type required")
	}
	reader := hkdf.New(sha256.New, master.Bytes(), nil, []byte(hkdfInfo+sessionType+".v1"))
	derived := make([]byte, KeySize)
	if _, err := io.ReadFull(reader, derived); err != nil {
		return nil, fmt.Errorf("keyfile: hkdf: %w", err)
	}
	return secret.NewFromBytes(derived)
}

// Seal writes key to path as an age envelope encrypted to the
// passphrase. The file is created with mode 0600.
func Seal(key *secret.Buffer, passphrase string, path string) error {
	if key.Len() != KeySize {
		return fmt.Errorf("keyfile: key must be %d bytes, got %d", KeySize, key.Len())
	}
	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("keyfile: %w", err)
	}

	var envelope bytes.Buffer
	writer, err := age.Encrypt(&envelope, recipient)
	if err != nil {
		return fmt.Errorf("keyfile: %w", err)
	}
	if _, err := writer.Write(key.Bytes()); err != nil {
		return fmt.Errorf("keyfile: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("keyfile: %w", err)
	}

	if err := os.WriteFile(path, envelope.Bytes(), 0o600); err != nil {
		return fmt.Errorf("keyfile: %w", err)
	}
	return nil
}

// Unseal reads an age envelope from path and decrypts it with the
// passphrase. The caller must close the returned buffer.
func Unseal(path, passphrase string) (*secret.Buffer, error) {
	envelope, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("keyfile: %w", err)
	}
	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("keyfile: %w", err)
	}
	reader, err := age.Decrypt(bytes.NewReader(envelope), identity)
	if err != nil {
		return nil, fmt.Errorf("keyfile: decrypt: %w", err)
	}
	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("keyfile: decrypt: %w", err)
	}
	if len(raw) != KeySize {
		secret.Zero(raw)
		return nil, fmt.Errorf("keyfile: sealed key is %d bytes, want %d", len(raw), KeySize)
	}
	return secret.NewFromBytes(raw)
}

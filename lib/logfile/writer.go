// Copyright 2026 The Sessionlog Authors
// SPDX-License-Identifier: Apache-2.0

package logfile

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/bureau-foundation/sessionlog/lib/record"
)

// Writer appends command records to one session log file. It owns the
// file handle and the record counter; the counter starts at zero for
// a newly created (or in-place truncated) file and increments once
// per appended record, so the counter-derived AEAD nonces are never
// reused within the file.
//
// A Writer is confined to the backend sequence and is not safe for
// concurrent use.
type Writer struct {
	file            *os.File
	path            string
	cipher          *record.Cipher
	marker          bool
	commandsWritten int32
}

// Create opens path with create-always semantics (an existing file is
// truncated) and writes the header selected by the cipher presence
// and marker mode. A nil cipher means plaintext records.
func Create(path string, cipher *record.Cipher, marker bool) (*Writer, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("logfile: create %s: %w", path, err)
	}

	header := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(header, Magic)
	binary.LittleEndian.PutUint32(header[4:], versionFor(cipher != nil, marker))
	if _, err := file.Write(header); err != nil {
		file.Close()
		return nil, fmt.Errorf("logfile: write header: %w", err)
	}

	return &Writer{file: file, path: path, cipher: cipher, marker: marker}, nil
}

// Path returns the file's path.
func (w *Writer) Path() string { return w.path }

// Encrypted reports whether the writer seals records.
func (w *Writer) Encrypted() bool { return w.cipher != nil }

// AppendCommands writes each command in order, then flushes. On error
// the file contents are undefined past the last flush and the caller
// should drop the Writer.
//
// Writes are issued sequentially and followed by a single sync, so
// within one call the records are durable in submission order.
func (w *Writer) AppendCommands(commands []record.Command) error {
	for _, command := range commands {
		frame, err := w.encode(command)
		if err != nil {
			return err
		}
		if _, err := w.file.Write(frame); err != nil {
			return fmt.Errorf("logfile: append: %w", err)
		}
		w.commandsWritten++
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("logfile: flush: %w", err)
	}
	return nil
}

func (w *Writer) encode(command record.Command) ([]byte, error) {
	if w.cipher == nil {
		return record.EncodePlain(command)
	}
	// A negative counter means the int32 wrapped: the next seal would
	// reuse nonce zero.
	if w.commandsWritten < 0 {
		return nil, record.ErrNoncesExhausted
	}
	return w.cipher.Seal(w.commandsWritten, command)
}

// TruncateInPlace cuts the file back to just its header and resets
// the record counter, avoiding a close-and-recreate cycle (on-access
// scanners can hold a closed file hostage). Keeping the cipher across
// the truncation is sound: the header is unchanged and the old
// ciphertext is gone, so restarting the counter repeats no (key,
// nonce) pair on anything still on disk.
//
// Durability is best-effort: there is no sync between the truncation
// and the next append, so a crash in between can leave the file at
// either length. Both states parse (the old tail becomes a partial
// tail at worst).
func (w *Writer) TruncateInPlace() error {
	if _, err := w.file.Seek(HeaderSize, io.SeekStart); err != nil {
		return fmt.Errorf("logfile: seek: %w", err)
	}
	if err := w.file.Truncate(HeaderSize); err != nil {
		return fmt.Errorf("logfile: truncate: %w", err)
	}
	w.commandsWritten = 0
	return nil
}

// ResetCipher swaps the AEAD state after an in-place truncation. The
// encryption presence must match the file's header: a key change is
// allowed, adding or removing encryption is not (that requires a new
// file with a new header).
func (w *Writer) ResetCipher(cipher *record.Cipher) {
	if (cipher == nil) != (w.cipher == nil) {
		panic("logfile: cipher presence must match the file header")
	}
	w.cipher = cipher
}

// Close releases the file handle. The path on disk is untouched.
func (w *Writer) Close() error {
	return w.file.Close()
}

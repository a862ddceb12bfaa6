// Copyright 2026 The Sessionlog Authors
// SPDX-License-Identifier: Apache-2.0

// Package archive preserves expired session files as compressed
// blobs before the storage backend deletes them.
//
// Each archived file becomes <dir>/<blake3-prefix>.zst, named by the
// hash of the raw contents so re-archiving identical data is a no-op
// on disk. An append-only index file records one deterministic-CBOR
// entry per archived file: the original name, session type, parsed
// timestamp, content hash, sizes, and when it was archived.
//
// Archiving is strictly best-effort from the backend's point of view:
// retention wins over preservation, and a failure here never blocks
// deletion of the source file.
package archive

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"
)

// IndexName is the name of the index file inside the archive
// directory.
const IndexName = "archive.index"

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2) so the
// same entry always produces identical bytes.
var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("archive: CBOR encoder initialization failed: " + err.Error())
	}
}

// Entry is one index record.
type Entry struct {
	// OriginalName is the base name of the archived session file.
	OriginalName string `cbor:"original_name"`

	// SessionType is the session type name ("session", "tab", ...).
	SessionType string `cbor:"session_type"`

	// TimestampMicros is the timestamp parsed from the filename, as
	// microseconds since the Unix epoch. Zero for legacy files.
	TimestampMicros int64 `cbor:"timestamp_us"`

	// Hash is the lowercase hex BLAKE3-256 of the raw file contents.
	Hash string `cbor:"blake3"`

	// RawSize and CompressedSize are byte counts before and after
	// compression.
	RawSize        int64 `cbor:"raw_size"`
	CompressedSize int64 `cbor:"compressed_size"`

	// ArchivedAtMicros is when the file was archived, as microseconds
	// since the Unix epoch.
	ArchivedAtMicros int64 `cbor:"archived_at_us"`
}

// Archiver writes expired session files into one archive directory.
// It is confined to the backend sequence of whichever backend owns
// it; sharing one Archiver between backends requires external
// serialization.
type Archiver struct {
	dir     string
	encoder *zstd.Encoder
}

// New creates the archive directory if needed and returns an
// Archiver. Close releases the compressor.
func New(dir string) (*Archiver, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	return &Archiver{dir: dir, encoder: encoder}, nil
}

// Dir returns the archive directory.
func (a *Archiver) Dir() string { return a.dir }

// Archive compresses the file at path into the archive directory and
// appends an index entry. The source file is left in place; deleting
// it is the caller's business.
func (a *Archiver) Archive(path, sessionType string, timestamp, now time.Time) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}

	sum := blake3.Sum256(raw)
	hash := hex.EncodeToString(sum[:])
	blobPath := filepath.Join(a.dir, hash[:16]+".zst")

	compressed := a.encoder.EncodeAll(raw, nil)
	if err := os.WriteFile(blobPath, compressed, 0o600); err != nil {
		return fmt.Errorf("archive: %w", err)
	}

	return a.appendIndex(Entry{
		OriginalName:     filepath.Base(path),
		SessionType:      sessionType,
		TimestampMicros:  timestamp.UnixMicro(),
		Hash:             hash,
		RawSize:          int64(len(raw)),
		CompressedSize:   int64(len(compressed)),
		ArchivedAtMicros: now.UnixMicro(),
	})
}

func (a *Archiver) appendIndex(entry Entry) error {
	encoded, err := encMode.Marshal(entry)
	if err != nil {
		return fmt.Errorf("archive: encode index entry: %w", err)
	}
	file, err := os.OpenFile(filepath.Join(a.dir, IndexName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	defer file.Close()
	if _, err := file.Write(encoded); err != nil {
		return fmt.Errorf("archive: append index: %w", err)
	}
	return nil
}

// Close releases the compressor.
func (a *Archiver) Close() {
	a.encoder.Close()
}

// ReadIndex decodes every entry in the archive index, oldest first.
// A missing index reads as empty.
func ReadIndex(dir string) ([]Entry, error) {
	file, err := os.Open(filepath.Join(dir, IndexName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("archive: %w", err)
	}
	defer file.Close()

	var entries []Entry
	decoder := cbor.NewDecoder(file)
	for {
		var entry Entry
		if err := decoder.Decode(&entry); err != nil {
			if err == io.EOF {
				return entries, nil
			}
			return entries, fmt.Errorf("archive: decode index: %w", err)
		}
		entries = append(entries, entry)
	}
}

// Extract decompresses one archived blob by its hash prefix (the blob
// filename without extension) and returns the raw session file bytes.
func Extract(dir, hashPrefix string) ([]byte, error) {
	compressed, err := os.ReadFile(filepath.Join(dir, hashPrefix+".zst"))
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("archive: %w", err)
	}
	defer decoder.Close()
	raw, err := decoder.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("archive: decompress: %w", err)
	}
	return raw, nil
}

// Copyright 2026 The Sessionlog Authors
// SPDX-License-Identifier: Apache-2.0

package logfile

import (
	"encoding/binary"
	"io"
	"log/slog"
	"os"

	"github.com/bureau-foundation/sessionlog/lib/record"
	"github.com/bureau-foundation/sessionlog/lib/secret"
)

// readBufferSize is the initial read buffer capacity. The buffer
// grows in whole KiB steps when a record exceeds it.
const readBufferSize = 1024

// ReadResult is the outcome of reading a session file. Commands holds
// every record decoded before the first problem, marker records
// excluded. ErrorReading is set when the file ended mid-record or a
// record failed to decode; the commands gathered up to that point are
// still returned so that at least a prefix of the session survives.
type ReadResult struct {
	Commands     []record.Command
	ErrorReading bool
}

// IsHeaderValid reports whether path begins with a well-formed header
// whose version matches the key presence: encrypted versions require
// a key, plaintext versions require none.
func IsHeaderValid(path string, key *secret.Buffer) bool {
	r := open(path, key)
	defer r.close()
	return r.headerValid
}

// MarkerStatus reports whether the file's version expects the
// initial-state marker and, if so, whether the marker record is
// actually present. A marker-version file without the marker was
// abandoned before its initial state was fully written and must not
// be used.
func MarkerStatus(path string, key *secret.Buffer) (supportsMarker, hasMarker bool) {
	r := open(path, key)
	defer r.close()
	if !r.headerValid || !versionSupportsMarker(r.version) {
		return false, false
	}
	for {
		command, ok, _ := r.readCommand()
		if !ok {
			return true, false
		}
		if command.ID == record.MarkerID {
			return true, true
		}
	}
}

// ReadAll reads every command record in path. An invalid header
// yields an empty result: the file is simply not a usable session.
func ReadAll(path string, key *secret.Buffer) ReadResult {
	r := open(path, key)
	defer r.close()
	if !r.headerValid {
		return ReadResult{}
	}

	var result ReadResult
	for {
		command, ok, errorReading := r.readCommand()
		if !ok {
			result.ErrorReading = errorReading
			return result
		}
		if command.ID != record.MarkerID {
			result.Commands = append(result.Commands, command)
		}
	}
}

// reader iterates the records of one file. It keeps a growable buffer
// of file data and a record counter that mirrors the writer's, so the
// counter-derived nonce for each encrypted record matches the one it
// was sealed under.
type reader struct {
	file        *os.File
	cipher      *record.Cipher
	buffer      []byte
	position    int
	available   int
	counter     int32
	version     uint32
	headerValid bool
}

func open(path string, key *secret.Buffer) *reader {
	r := &reader{buffer: make([]byte, readBufferSize)}
	if key != nil {
		cipher, err := record.NewCipher(key)
		if err != nil {
			slog.Debug("logfile: unusable key", "path", path, "error", err)
			return r
		}
		r.cipher = cipher
	}
	file, err := os.Open(path)
	if err != nil {
		return r
	}
	r.file = file
	r.headerValid = r.readHeader()
	return r
}

func (r *reader) close() {
	if r.file != nil {
		r.file.Close()
	}
}

func (r *reader) readHeader() bool {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r.file, header); err != nil {
		return false
	}
	if binary.LittleEndian.Uint32(header) != Magic {
		return false
	}
	r.version = binary.LittleEndian.Uint32(header[4:])
	if r.cipher != nil {
		return versionIsEncrypted(r.version)
	}
	return r.version == VersionPlain || r.version == VersionPlainMarker
}

// readCommand decodes the next record. ok is false at end of input;
// errorReading is additionally true when the input ended mid-record
// or the record failed to decode. After any failure the reader is
// done: interior errors abandon the remainder of the file.
func (r *reader) readCommand() (command record.Command, ok, errorReading bool) {
	// Frame prefix.
	if r.available < record.SizePrefixLength {
		if !r.fillBuffer() {
			// Clean end of file only if nothing is left over.
			return record.Command{}, false, r.available > 0
		}
		if r.available < record.SizePrefixLength {
			slog.Debug("logfile: file incomplete")
			return record.Command{}, false, true
		}
	}
	size := int(binary.LittleEndian.Uint16(r.buffer[r.position:]))
	r.position += record.SizePrefixLength
	r.available -= record.SizePrefixLength

	if size == 0 {
		// A successful write never produces an empty frame.
		slog.Debug("logfile: empty record")
		return record.Command{}, false, true
	}

	// Frame body.
	if size > r.available {
		if size > len(r.buffer) {
			grown := make([]byte, (size/1024+1)*1024)
			copy(grown, r.buffer)
			r.buffer = grown
		}
		if !r.fillBuffer() || size > r.available {
			// Assume the file is fine and only the last chunk was lost.
			slog.Debug("logfile: last record truncated")
			return record.Command{}, false, true
		}
	}

	body := r.buffer[r.position : r.position+size]
	var err error
	if r.cipher != nil {
		command, err = r.cipher.Open(r.counter, body)
	} else {
		command, err = record.DecodePlain(body)
	}
	r.counter++
	r.position += size
	r.available -= size
	if err != nil {
		slog.Debug("logfile: record rejected", "error", err)
		return record.Command{}, false, true
	}
	return command, true, false
}

// fillBuffer shifts the unconsumed bytes to the front of the buffer
// and reads more file data after them. Returns false when the file
// yields nothing further.
func (r *reader) fillBuffer() bool {
	if r.available > 0 && r.position > 0 {
		copy(r.buffer, r.buffer[r.position:r.position+r.available])
	}
	r.position = 0
	if r.file == nil {
		return false
	}
	n, _ := r.file.Read(r.buffer[r.available:])
	if n <= 0 {
		return false
	}
	r.available += n
	return true
}

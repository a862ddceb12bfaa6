// Copyright 2026 The Sessionlog Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/bureau-foundation/sessionlog/lib/archive"
	"github.com/bureau-foundation/sessionlog/lib/clock"
	"github.com/bureau-foundation/sessionlog/lib/logfile"
	"github.com/bureau-foundation/sessionlog/lib/record"
	"github.com/bureau-foundation/sessionlog/lib/secret"
)

// ErrReservedID is returned when a caller-supplied command uses the
// initial-state marker id.
var ErrReservedID = errors.New("storage: command id 0xFF is reserved")

// ErrKeyOutsideTruncate is returned when a crypto key accompanies a
// non-truncating append. A key change always forces a new file, so a
// key is only meaningful with truncate.
var ErrKeyOutsideTruncate = errors.New("storage: crypto key is only accepted with truncate")

// ErrPromotionUnsupported is returned by promotion on an Other-type
// backend, which does not distinguish current from last.
var ErrPromotionUnsupported = errors.New("storage: promotion is unsupported for type other")

// Options configures a Backend.
type Options struct {
	// Path is the supplied base path. For Other it names the log file
	// itself; for every other type it is the directory that holds the
	// Sessions subdirectory.
	Path string

	// Type selects naming and directory layout.
	Type SessionType

	// UseMarker enables initial-state-marker gating: only files that
	// carry the marker record are adopted as the last generation.
	UseMarker bool

	// DecryptionKey decrypts the last generation on read. Nil means
	// the last generation is plaintext.
	DecryptionKey *secret.Buffer

	// Clock defaults to clock.Real().
	Clock clock.Clock

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Archiver, when set, receives expired session files before they
	// are deleted. Best-effort: archiving failures never block
	// deletion.
	Archiver *archive.Archiver
}

// Backend is the storage backend for one session type in one
// directory. Every method must run on the backend sequence; see
// Store. The on-disk directory is owned exclusively by one Backend
// per session type.
type Backend struct {
	sessionType SessionType
	supplied    string
	useMarker   bool
	initialKey  *secret.Buffer
	clk         clock.Clock
	logger      *slog.Logger
	archiver    *archive.Archiver

	inited bool
	writer *logfile.Writer
	cipher *record.Cipher

	// currentPath and timestamp describe the current generation. The
	// path is empty until the first open and after promotion.
	currentPath string
	timestamp   time.Time

	lastSession *SessionInfo

	// lastFileWithValidMarker is the most recent current file known
	// to contain the marker; it is what promotion adopts in marker
	// mode.
	lastFileWithValidMarker string
	didWriteMarker          bool

	// lastOperation is when a data-plane call last ran, for the
	// maintenance idle check.
	lastOperation time.Time

	forceAppendFailure bool
}

// NewBackend creates a Backend. No file access happens here; the
// directory scan is deferred to the first data-plane call.
func NewBackend(options Options) *Backend {
	clk := options.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		sessionType:   options.Type,
		supplied:      options.Path,
		useMarker:     options.UseMarker,
		initialKey:    options.DecryptionKey,
		clk:           clk,
		logger:        logger.With("component", "storage", "type", options.Type.String()),
		archiver:      options.Archiver,
		lastOperation: clk.Now(),
	}
}

// IsValidFile reports whether path has a valid plaintext session file
// header.
func IsValidFile(path string) bool {
	return logfile.IsHeaderValid(path, nil)
}

// ReadCommandsFromFile reads the commands of an arbitrary session
// file with an optional key.
func ReadCommandsFromFile(path string, key *secret.Buffer) logfile.ReadResult {
	return logfile.ReadAll(path, key)
}

// AppendCommands writes commands to the current file, creating or
// truncating it first when truncate is set. A non-nil key (allowed
// only with truncate) switches the file to encrypted records sealed
// under that key from a fresh counter.
//
// In marker mode a non-truncating append with no open file is a
// no-op: such a file would never carry the marker, so it must not be
// created. A truncating append in marker mode writes the marker
// record after the supplied batch.
//
// On a write error the file handle is dropped; the caller (Store)
// reports the returned error through the error callback.
func (b *Backend) AppendCommands(commands []record.Command, truncate bool, key *secret.Buffer) error {
	b.initIfNecessary()
	b.touch()

	for _, command := range commands {
		if command.ID == record.MarkerID {
			return ErrReservedID
		}
	}
	if key != nil && !truncate {
		return ErrKeyOutsideTruncate
	}

	if b.useMarker && !truncate && b.writer == nil {
		return nil
	}

	if truncate {
		wasEncrypted := b.cipher != nil
		encrypt := key != nil

		// The header differs when encrypting, so flipping the key
		// presence forces a new file. Marker mode always does.
		if b.useMarker || wasEncrypted != encrypt {
			b.closeFile()
		}

		if encrypt {
			cipher, err := record.NewCipher(key)
			if err != nil {
				return err
			}
			b.cipher = cipher
		} else {
			b.cipher = nil
		}

		if b.useMarker {
			commands = append(commands[:len(commands):len(commands)], record.New(record.MarkerID, nil))
		}
	}

	var openErr error
	if truncate || b.writer == nil {
		openErr = b.truncateOrOpenFile()
	}

	var appendErr error
	if b.writer != nil {
		appendErr = b.appendToWriter(commands)
		if appendErr != nil {
			b.closeFile()
		}
	}

	if b.useMarker && truncate && b.writer != nil {
		b.didWriteMarker = true
		if b.lastFileWithValidMarker != "" && b.lastFileWithValidMarker != b.currentPath {
			if err := os.Remove(b.lastFileWithValidMarker); err != nil && !os.IsNotExist(err) {
				b.logger.Debug("removing superseded marker file", "error", err)
			}
		}
		b.lastFileWithValidMarker = b.currentPath
	}

	if b.writer == nil {
		if appendErr != nil {
			return appendErr
		}
		return openErr
	}
	return nil
}

func (b *Backend) appendToWriter(commands []record.Command) error {
	if b.forceAppendFailure {
		b.forceAppendFailure = false
		return fmt.Errorf("storage: append forced to fail for testing")
	}
	return b.writer.AppendCommands(commands)
}

// ForceAppendFailureForTesting makes the next append fail, so tests
// can exercise the error-callback path without faulting the disk.
func (b *Backend) ForceAppendFailureForTesting() {
	b.forceAppendFailure = true
}

// ReadLastSessionCommands reads the last generation. A missing or
// unusable last generation reads as an empty session.
func (b *Backend) ReadLastSessionCommands() logfile.ReadResult {
	b.initIfNecessary()
	b.touch()
	if b.lastSession == nil {
		return logfile.ReadResult{}
	}
	return logfile.ReadAll(b.lastSession.Path, b.initialKey)
}

// DeleteLastSession unlinks the last-generation file and forgets it.
func (b *Backend) DeleteLastSession() {
	b.initIfNecessary()
	b.touch()
	if b.lastSession != nil {
		if err := os.Remove(b.lastSession.Path); err != nil && !os.IsNotExist(err) {
			b.logger.Debug("deleting last session", "error", err)
		}
		b.lastSession = nil
	}
}

// MoveCurrentSessionToLastSession promotes the current generation to
// last (deleting the prior last) and opens a fresh current file under
// a new timestamp. In marker mode only a current file whose marker
// was written is promoted; an unmarked current is discarded.
func (b *Backend) MoveCurrentSessionToLastSession() error {
	if b.sessionType == Other {
		return ErrPromotionUnsupported
	}
	b.initIfNecessary()
	b.touch()

	b.closeFile()
	if b.lastSession != nil {
		if err := os.Remove(b.lastSession.Path); err != nil && !os.IsNotExist(err) {
			b.logger.Debug("deleting last session", "error", err)
		}
		b.lastSession = nil
	}

	if b.useMarker {
		if b.lastFileWithValidMarker != "" {
			b.lastSession = &SessionInfo{Path: b.lastFileWithValidMarker, Timestamp: b.timestamp}
			b.lastFileWithValidMarker = ""
		}
	} else if pathExists(b.currentPath) {
		b.lastSession = &SessionInfo{Path: b.currentPath, Timestamp: b.timestamp}
	}

	// Forces truncateOrOpenFile to allocate a new timestamped path.
	b.currentPath = ""
	return b.truncateOrOpenFile()
}

// Close drops the file handle. In marker mode a current file whose
// marker was never written is deleted, so a half-described session
// can never be adopted later.
func (b *Backend) Close() {
	b.closeFile()
}

// initIfNecessary performs the deferred startup work: create the
// directory, adopt the newest usable file as the last generation, and
// clear out everything else.
func (b *Backend) initIfNecessary() {
	if b.inited {
		return
	}
	b.inited = true

	if err := os.MkdirAll(b.sessionType.dirName(b.supplied), 0o700); err != nil {
		b.logger.Warn("creating session directory", "error", err)
	}
	b.lastSession = b.findLastSessionFile()
	b.deleteStaleSessionFiles()
}

// findLastSessionFile picks the newest file usable as the last
// generation, falling back to the legacy timestampless current file
// (adopted with timestamp zero, older than anything timestamped).
func (b *Backend) findLastSessionFile() *SessionInfo {
	for _, session := range SessionFiles(b.sessionType, b.supplied) {
		if b.canUseFileForLastSession(session.Path) {
			return &session
		}
	}

	legacy := b.sessionType.legacyCurrentPath(b.supplied)
	if pathExists(legacy) {
		return &SessionInfo{Path: legacy, Timestamp: time.UnixMicro(0)}
	}
	return nil
}

// canUseFileForLastSession applies marker gating: in marker mode a
// marker-version file without the marker was abandoned mid-write and
// must not be restored from.
func (b *Backend) canUseFileForLastSession(path string) bool {
	if !b.useMarker {
		return true
	}
	supportsMarker, hasMarker := logfile.MarkerStatus(path, b.initialKey)
	return !supportsMarker || hasMarker
}

// deleteStaleSessionFiles removes every session file except the
// adopted last generation, plus superseded legacy files. Runs only at
// init, before currentPath is set.
func (b *Backend) deleteStaleSessionFiles() {
	for _, session := range SessionFiles(b.sessionType, b.supplied) {
		if b.lastSession != nil && session.Path == b.lastSession.Path {
			continue
		}
		b.removeStale(session)
	}

	legacyCurrent := b.sessionType.legacyCurrentPath(b.supplied)
	if pathExists(legacyCurrent) && (b.lastSession == nil || legacyCurrent != b.lastSession.Path) {
		b.removeStale(SessionInfo{Path: legacyCurrent, Timestamp: time.UnixMicro(0)})
	}
	if legacyLast := b.sessionType.legacyLastPath(b.supplied); legacyLast != "" {
		if pathExists(legacyLast) && (b.lastSession == nil || legacyLast != b.lastSession.Path) {
			b.removeStale(SessionInfo{Path: legacyLast, Timestamp: time.UnixMicro(0)})
		}
	}
}

// RunMaintenance performs the periodic full pass: expire any session
// file that is neither the current generation, the last generation,
// nor the marker-validated current. Before the first data-plane call
// it just performs initialization.
func (b *Backend) RunMaintenance() {
	if !b.inited {
		b.initIfNecessary()
		return
	}
	for _, session := range SessionFiles(b.sessionType, b.supplied) {
		if session.Path == b.currentPath || session.Path == b.lastFileWithValidMarker {
			continue
		}
		if b.lastSession != nil && session.Path == b.lastSession.Path {
			continue
		}
		b.removeStale(session)
	}
}

// removeStale expires one session file: archive it if an archiver is
// configured, then delete it. Retention wins over preservation; an
// archive failure is logged and the deletion happens anyway.
func (b *Backend) removeStale(session SessionInfo) {
	if b.archiver != nil {
		err := b.archiver.Archive(session.Path, b.sessionType.String(), session.Timestamp, b.clk.Now())
		if err != nil {
			b.logger.Warn("archiving expired session file", "path", session.Path, "error", err)
		}
	}
	if err := os.Remove(session.Path); err != nil && !os.IsNotExist(err) {
		b.logger.Debug("deleting expired session file", "path", session.Path, "error", err)
	}
}

// closeFile drops the writer. An unmarked current file in marker mode
// is deleted on the spot.
func (b *Backend) closeFile() {
	if b.writer != nil {
		b.writer.Close()
		b.writer = nil
	}
	if b.useMarker && !b.didWriteMarker && b.currentPath != "" {
		if err := os.Remove(b.currentPath); err != nil && !os.IsNotExist(err) {
			b.logger.Debug("deleting unmarked current file", "error", err)
		}
	}
}

// truncateOrOpenFile makes the current file ready for a fresh batch:
// allocate a timestamped path if there is none (always, in marker
// mode), truncate the open file in place when possible, and otherwise
// create it with the header for the active cipher and marker mode.
func (b *Backend) truncateOrOpenFile() error {
	if b.useMarker {
		b.closeFile()
	}
	if b.useMarker || b.currentPath == "" {
		newTimestamp := b.clk.Now()
		// Never reuse the current file's timestamp.
		if newTimestamp.Equal(b.timestamp) {
			newTimestamp = newTimestamp.Add(time.Microsecond)
		}
		// Keep the last generation strictly older even when the
		// system clock has stepped backward.
		if b.lastSession != nil && !b.lastSession.Timestamp.Before(newTimestamp) {
			newTimestamp = b.lastSession.Timestamp.Add(time.Microsecond)
		}
		b.timestamp = newTimestamp
		b.currentPath = FilePathFromTime(b.sessionType, b.supplied, newTimestamp)
	}

	if b.writer != nil {
		// Truncating in place avoids closing the file, which could
		// let an on-access scanner lock it out from under us. If it
		// fails, fall through and recreate.
		if err := b.writer.TruncateInPlace(); err != nil {
			b.logger.Debug("in-place truncate failed, recreating", "error", err)
			b.writer.Close()
			b.writer = nil
		} else {
			// The key may have changed; the encryption presence has
			// not (a flip closed the file earlier).
			b.writer.ResetCipher(b.cipher)
		}
	}

	var openErr error
	if b.writer == nil {
		b.writer, openErr = logfile.Create(b.currentPath, b.cipher, b.useMarker)
		if openErr != nil {
			b.logger.Warn("opening session file", "path", b.currentPath, "error", openErr)
			b.writer = nil
		}
	}
	b.didWriteMarker = false
	return openErr
}

// touch records a data-plane call for the maintenance idle check.
func (b *Backend) touch() {
	b.lastOperation = b.clk.Now()
}

func pathExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// Copyright 2026 The Sessionlog Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/sessionlog/lib/archive"
	"github.com/bureau-foundation/sessionlog/lib/clock"
	"github.com/bureau-foundation/sessionlog/lib/logfile"
	"github.com/bureau-foundation/sessionlog/lib/record"
	"github.com/bureau-foundation/sessionlog/lib/secret"
)

var testEpoch = time.Date(2026, time.March, 14, 9, 26, 53, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testKey(t *testing.T, fill byte) *secret.Buffer {
	t.Helper()
	raw := make([]byte, record.KeySize)
	for i := range raw {
		raw[i] = fill
	}
	key, err := secret.NewFromBytes(raw)
	if err != nil {
		t.Fatalf("allocating key: %v", err)
	}
	t.Cleanup(func() { key.Close() })
	return key
}

func testBackend(t *testing.T, dir string, mutate func(*Options)) (*Backend, *clock.FakeClock) {
	t.Helper()
	fake := clock.Fake(testEpoch)
	options := Options{
		Path:   dir,
		Type:   SessionRestore,
		Clock:  fake,
		Logger: quietLogger(),
	}
	if mutate != nil {
		mutate(&options)
	}
	backend := NewBackend(options)
	t.Cleanup(backend.Close)
	return backend, fake
}

func requireCommands(t *testing.T, got, want []record.Command) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %d commands, want %d", len(got), len(want))
	}
	for index := range want {
		if got[index].ID != want[index].ID || !bytes.Equal(got[index].Payload, want[index].Payload) {
			t.Errorf("command %d: got (%d, %q), want (%d, %q)",
				index, got[index].ID, got[index].Payload, want[index].ID, want[index].Payload)
		}
	}
}

func sessionFileNames(t *testing.T, sessionType SessionType, dir string) []string {
	t.Helper()
	var names []string
	for _, session := range SessionFiles(sessionType, dir) {
		names = append(names, filepath.Base(session.Path))
	}
	return names
}

func TestAppendAndReadAcrossRestarts(t *testing.T) {
	dir := t.TempDir()
	commands := []record.Command{
		record.New(1, []byte("window")),
		record.New(2, []byte("tab")),
	}

	first, _ := testBackend(t, dir, nil)
	if err := first.AppendCommands(commands, true, nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	more := []record.Command{record.New(3, []byte("navigate"))}
	if err := first.AppendCommands(more, false, nil); err != nil {
		t.Fatalf("second append: %v", err)
	}
	first.Close()

	second, _ := testBackend(t, dir, nil)
	result := second.ReadLastSessionCommands()
	if result.ErrorReading {
		t.Error("unexpected read error flag")
	}
	requireCommands(t, result.Commands, append(commands, more...))
}

func TestEncryptedReadWithCorrectAndWrongKey(t *testing.T) {
	dir := t.TempDir()
	key := testKey(t, 0x01)
	commands := []record.Command{record.New(7, []byte("secret state"))}

	writer, _ := testBackend(t, dir, nil)
	if err := writer.AppendCommands(commands, true, key); err != nil {
		t.Fatalf("append: %v", err)
	}
	writer.Close()

	reader, _ := testBackend(t, dir, func(o *Options) { o.DecryptionKey = key })
	result := reader.ReadLastSessionCommands()
	if result.ErrorReading {
		t.Error("unexpected read error flag with the correct key")
	}
	requireCommands(t, result.Commands, commands)
	reader.Close()

	// The directory was re-scanned and the file survived adoption, so a
	// third backend with the wrong key still finds it but cannot
	// decrypt any records.
	wrongDir := t.TempDir()
	rewriter, _ := testBackend(t, wrongDir, nil)
	if err := rewriter.AppendCommands(commands, true, key); err != nil {
		t.Fatalf("append: %v", err)
	}
	rewriter.Close()

	wrong, _ := testBackend(t, wrongDir, func(o *Options) { o.DecryptionKey = testKey(t, 0x02) })
	badResult := wrong.ReadLastSessionCommands()
	if len(badResult.Commands) != 0 {
		t.Errorf("wrong key decoded %d commands", len(badResult.Commands))
	}
	if !badResult.ErrorReading {
		t.Error("wrong key should set the read error flag")
	}
}

func TestReservedIDRejected(t *testing.T) {
	dir := t.TempDir()
	backend, _ := testBackend(t, dir, nil)

	err := backend.AppendCommands([]record.Command{record.New(record.MarkerID, nil)}, true, nil)
	if !errors.Is(err, ErrReservedID) {
		t.Fatalf("err = %v, want ErrReservedID", err)
	}
	if names := sessionFileNames(t, SessionRestore, dir); len(names) != 0 {
		t.Errorf("rejected append created files: %v", names)
	}
}

func TestKeyRequiresTruncate(t *testing.T) {
	dir := t.TempDir()
	backend, _ := testBackend(t, dir, nil)

	err := backend.AppendCommands([]record.Command{record.New(1, nil)}, false, testKey(t, 0x01))
	if !errors.Is(err, ErrKeyOutsideTruncate) {
		t.Fatalf("err = %v, want ErrKeyOutsideTruncate", err)
	}
}

func TestMarkerNonTruncateAppendIsNoOp(t *testing.T) {
	dir := t.TempDir()
	backend, _ := testBackend(t, dir, func(o *Options) { o.UseMarker = true })

	if err := backend.AppendCommands([]record.Command{record.New(1, []byte("x"))}, false, nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	if names := sessionFileNames(t, SessionRestore, dir); len(names) != 0 {
		t.Errorf("no-op append created files: %v", names)
	}
}

func TestMarkerTruncateWritesAdoptableFile(t *testing.T) {
	dir := t.TempDir()
	commands := []record.Command{record.New(1, []byte("described"))}

	writer, _ := testBackend(t, dir, func(o *Options) { o.UseMarker = true })
	if err := writer.AppendCommands(commands, true, nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	writer.Close()

	reader, _ := testBackend(t, dir, func(o *Options) { o.UseMarker = true })
	result := reader.ReadLastSessionCommands()
	requireCommands(t, result.Commands, commands)
}

func TestUnmarkedFileNotAdoptedAndDeleted(t *testing.T) {
	dir := t.TempDir()
	sessionsDir := filepath.Join(dir, "Sessions")
	if err := os.MkdirAll(sessionsDir, 0o700); err != nil {
		t.Fatal(err)
	}

	// A marker-version file without the marker record: the writer died
	// before the session was fully described.
	abandoned := filepath.Join(sessionsDir, "Session_100")
	writer, err := logfile.Create(abandoned, nil, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := writer.AppendCommands([]record.Command{record.New(1, []byte("partial"))}); err != nil {
		t.Fatal(err)
	}
	writer.Close()

	backend, _ := testBackend(t, dir, func(o *Options) { o.UseMarker = true })
	result := backend.ReadLastSessionCommands()
	if len(result.Commands) != 0 {
		t.Errorf("adopted an unmarked file: %d commands", len(result.Commands))
	}
	if _, err := os.Stat(abandoned); !os.IsNotExist(err) {
		t.Error("unmarked file survived initialization")
	}
}

func TestCloseDeletesUnmarkedCurrent(t *testing.T) {
	dir := t.TempDir()
	backend, _ := testBackend(t, dir, func(o *Options) { o.UseMarker = true })

	if err := backend.AppendCommands([]record.Command{record.New(1, []byte("a"))}, true, nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	marked := backend.currentPath

	// Promotion opens a fresh current file whose marker has not been
	// written yet.
	if err := backend.MoveCurrentSessionToLastSession(); err != nil {
		t.Fatalf("promotion: %v", err)
	}
	unmarked := backend.currentPath
	if unmarked == marked {
		t.Fatal("promotion did not allocate a new current file")
	}
	backend.Close()

	if _, err := os.Stat(marked); err != nil {
		t.Errorf("marked file should survive close: %v", err)
	}
	if _, err := os.Stat(unmarked); !os.IsNotExist(err) {
		t.Error("unmarked current file should be deleted on close")
	}
}

func TestMarkerTruncateTwiceKeepsOnlyNewest(t *testing.T) {
	dir := t.TempDir()
	backend, fake := testBackend(t, dir, func(o *Options) { o.UseMarker = true })

	if err := backend.AppendCommands([]record.Command{record.New(1, nil)}, true, nil); err != nil {
		t.Fatalf("first append: %v", err)
	}
	first := backend.currentPath

	fake.Advance(time.Second)
	if err := backend.AppendCommands([]record.Command{record.New(2, nil)}, true, nil); err != nil {
		t.Fatalf("second append: %v", err)
	}
	second := backend.currentPath
	if second == first {
		t.Fatal("marker-mode truncate reused the file path")
	}
	if _, err := os.Stat(first); !os.IsNotExist(err) {
		t.Error("superseded marker file should be deleted")
	}
	if names := sessionFileNames(t, SessionRestore, dir); len(names) != 1 {
		t.Errorf("directory holds %v, want one file", names)
	}
}

func TestPromotionMovesCurrentToLast(t *testing.T) {
	dir := t.TempDir()
	commands := []record.Command{record.New(4, []byte("state"))}
	backend, fake := testBackend(t, dir, nil)

	if err := backend.AppendCommands(commands, true, nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	promoted := backend.currentPath

	fake.Advance(time.Minute)
	if err := backend.MoveCurrentSessionToLastSession(); err != nil {
		t.Fatalf("promotion: %v", err)
	}

	result := backend.ReadLastSessionCommands()
	requireCommands(t, result.Commands, commands)
	if backend.lastSession == nil || backend.lastSession.Path != promoted {
		t.Error("promoted file is not the last generation")
	}
	if backend.currentPath == promoted {
		t.Error("promotion did not allocate a new current path")
	}

	sessions := SessionFiles(SessionRestore, dir)
	if len(sessions) != 2 {
		t.Fatalf("found %d session files, want 2", len(sessions))
	}
	if !sessions[0].Timestamp.After(sessions[1].Timestamp) {
		t.Error("current file is not newer than the promoted one")
	}
}

func TestPromotionTimestampMonotonicUnderClockRegression(t *testing.T) {
	dir := t.TempDir()
	backend, fake := testBackend(t, dir, nil)

	if err := backend.AppendCommands([]record.Command{record.New(1, nil)}, true, nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	promotedTimestamp := backend.timestamp

	// Step the clock backward, as an NTP correction would.
	fake.Set(testEpoch.Add(-time.Hour))
	if err := backend.MoveCurrentSessionToLastSession(); err != nil {
		t.Fatalf("promotion: %v", err)
	}

	want := promotedTimestamp.Add(time.Microsecond)
	if !backend.timestamp.Equal(want) {
		t.Errorf("new current timestamp %v, want %v", backend.timestamp, want)
	}
	sessions := SessionFiles(SessionRestore, dir)
	if len(sessions) != 2 {
		t.Fatalf("found %d session files, want 2", len(sessions))
	}
	if !sessions[0].Timestamp.Equal(want) {
		t.Errorf("newest on-disk timestamp %v, want %v", sessions[0].Timestamp, want)
	}
}

func TestPromotionUnsupportedForOther(t *testing.T) {
	backend, _ := testBackend(t, filepath.Join(t.TempDir(), "Commands"), func(o *Options) { o.Type = Other })
	if err := backend.MoveCurrentSessionToLastSession(); !errors.Is(err, ErrPromotionUnsupported) {
		t.Fatalf("err = %v, want ErrPromotionUnsupported", err)
	}
}

func TestDeleteLastSession(t *testing.T) {
	dir := t.TempDir()
	writer, _ := testBackend(t, dir, nil)
	if err := writer.AppendCommands([]record.Command{record.New(1, nil)}, true, nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	writer.Close()

	backend, _ := testBackend(t, dir, nil)
	if backend.ReadLastSessionCommands().Commands == nil {
		t.Fatal("expected an adopted last session")
	}
	lastPath := backend.lastSession.Path

	backend.DeleteLastSession()
	if _, err := os.Stat(lastPath); !os.IsNotExist(err) {
		t.Error("last session file should be unlinked")
	}
	if result := backend.ReadLastSessionCommands(); len(result.Commands) != 0 {
		t.Errorf("read %d commands after deletion", len(result.Commands))
	}
}

func TestInitDeletesStaleFiles(t *testing.T) {
	dir := t.TempDir()
	sessionsDir := filepath.Join(dir, "Sessions")
	if err := os.MkdirAll(sessionsDir, 0o700); err != nil {
		t.Fatal(err)
	}

	commands := []record.Command{record.New(9, []byte("newest"))}
	writeSessionFile(t, filepath.Join(sessionsDir, "Session_300"), commands)
	writeSessionFile(t, filepath.Join(sessionsDir, "Session_200"), nil)
	writeSessionFile(t, filepath.Join(sessionsDir, "Session_100"), nil)
	writeSessionFile(t, filepath.Join(sessionsDir, "Tabs_400"), nil)
	writeSessionFile(t, filepath.Join(dir, "Current Session"), nil)
	writeSessionFile(t, filepath.Join(dir, "Last Session"), nil)

	backend, _ := testBackend(t, dir, nil)
	result := backend.ReadLastSessionCommands()
	requireCommands(t, result.Commands, commands)

	if names := sessionFileNames(t, SessionRestore, dir); len(names) != 1 || names[0] != "Session_300" {
		t.Errorf("session files after init: %v, want [Session_300]", names)
	}
	for _, legacy := range []string{"Current Session", "Last Session"} {
		if _, err := os.Stat(filepath.Join(dir, legacy)); !os.IsNotExist(err) {
			t.Errorf("legacy file %q should be deleted", legacy)
		}
	}
	// Another type's files are not this backend's to clean.
	if _, err := os.Stat(filepath.Join(sessionsDir, "Tabs_400")); err != nil {
		t.Errorf("foreign-type file was touched: %v", err)
	}
}

func TestLegacyCurrentAdopted(t *testing.T) {
	dir := t.TempDir()
	commands := []record.Command{record.New(2, []byte("old layout"))}
	writeSessionFile(t, filepath.Join(dir, "Current Session"), commands)
	writeSessionFile(t, filepath.Join(dir, "Last Session"), nil)

	backend, _ := testBackend(t, dir, nil)
	result := backend.ReadLastSessionCommands()
	requireCommands(t, result.Commands, commands)
	if !backend.lastSession.Timestamp.Equal(time.UnixMicro(0)) {
		t.Errorf("legacy adoption timestamp = %v, want the epoch", backend.lastSession.Timestamp)
	}

	if _, err := os.Stat(filepath.Join(dir, "Current Session")); err != nil {
		t.Errorf("adopted legacy file should survive init: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "Last Session")); !os.IsNotExist(err) {
		t.Error("legacy last file should be deleted")
	}
}

func TestAppendFailureDropsFileAndRecovers(t *testing.T) {
	dir := t.TempDir()
	backend, _ := testBackend(t, dir, nil)

	backend.ForceAppendFailureForTesting()
	if err := backend.AppendCommands([]record.Command{record.New(1, nil)}, true, nil); err == nil {
		t.Fatal("forced append should fail")
	}
	if backend.writer != nil {
		t.Error("writer should be dropped after a failed append")
	}

	commands := []record.Command{record.New(2, []byte("recovered"))}
	if err := backend.AppendCommands(commands, true, nil); err != nil {
		t.Fatalf("append after recovery: %v", err)
	}
	result := ReadCommandsFromFile(backend.currentPath, nil)
	requireCommands(t, result.Commands, commands)
}

func TestTruncateReusesFileInPlace(t *testing.T) {
	dir := t.TempDir()
	backend, fake := testBackend(t, dir, nil)

	if err := backend.AppendCommands([]record.Command{record.New(1, []byte("first"))}, true, nil); err != nil {
		t.Fatalf("first append: %v", err)
	}
	first := backend.currentPath

	fake.Advance(time.Second)
	replacement := []record.Command{record.New(2, []byte("second"))}
	if err := backend.AppendCommands(replacement, true, nil); err != nil {
		t.Fatalf("second append: %v", err)
	}
	if backend.currentPath != first {
		t.Errorf("truncate switched files: %s -> %s", first, backend.currentPath)
	}
	backend.Close()

	result := ReadCommandsFromFile(first, nil)
	requireCommands(t, result.Commands, replacement)
}

func TestKeyChangeRewritesHeader(t *testing.T) {
	dir := t.TempDir()
	backend, _ := testBackend(t, dir, nil)

	if err := backend.AppendCommands([]record.Command{record.New(1, []byte("plain"))}, true, nil); err != nil {
		t.Fatalf("plain append: %v", err)
	}
	path := backend.currentPath

	key := testKey(t, 0x05)
	commands := []record.Command{record.New(2, []byte("sealed"))}
	if err := backend.AppendCommands(commands, true, key); err != nil {
		t.Fatalf("encrypted append: %v", err)
	}
	if backend.currentPath != path {
		t.Errorf("key change switched files: %s -> %s", path, backend.currentPath)
	}
	backend.Close()

	if IsValidFile(path) {
		t.Error("file should no longer have a plaintext header")
	}
	result := ReadCommandsFromFile(path, key)
	requireCommands(t, result.Commands, commands)
}

func TestRunMaintenanceExpiresStrays(t *testing.T) {
	dir := t.TempDir()
	archiveDir := t.TempDir()
	archiver, err := archive.New(archiveDir)
	if err != nil {
		t.Fatal(err)
	}
	defer archiver.Close()

	backend, fake := testBackend(t, dir, func(o *Options) { o.Archiver = archiver })
	if err := backend.AppendCommands([]record.Command{record.New(1, nil)}, true, nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	fake.Advance(time.Minute)
	if err := backend.MoveCurrentSessionToLastSession(); err != nil {
		t.Fatalf("promotion: %v", err)
	}

	// A file another process left behind after this backend
	// initialized.
	stray := filepath.Join(dir, "Sessions", "Session_1")
	writeSessionFile(t, stray, []record.Command{record.New(3, []byte("stray"))})

	backend.RunMaintenance()

	if _, err := os.Stat(stray); !os.IsNotExist(err) {
		t.Error("stray file should be expired")
	}
	if _, err := os.Stat(backend.currentPath); err != nil {
		t.Errorf("current file was expired: %v", err)
	}
	if _, err := os.Stat(backend.lastSession.Path); err != nil {
		t.Errorf("last file was expired: %v", err)
	}

	entries, err := archive.ReadIndex(archiveDir)
	if err != nil {
		t.Fatalf("reading archive index: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("archive holds %d entries, want 1", len(entries))
	}
	if entries[0].OriginalName != "Session_1" || entries[0].SessionType != "session" {
		t.Errorf("archived entry = %+v", entries[0])
	}
}

func TestOtherTypeUsesSuppliedPathNaming(t *testing.T) {
	dir := t.TempDir()
	supplied := filepath.Join(dir, "Commands")
	commands := []record.Command{record.New(1, []byte("custom"))}

	backend, _ := testBackend(t, supplied, func(o *Options) { o.Type = Other })
	if err := backend.AppendCommands(commands, true, nil); err != nil {
		t.Fatalf("append: %v", err)
	}
	if got := filepath.Dir(backend.currentPath); got != dir {
		t.Errorf("current file lives in %s, want %s", got, dir)
	}
	backend.Close()

	// The supplied path itself is the legacy file for caller-named
	// logs.
	legacyDir := t.TempDir()
	legacySupplied := filepath.Join(legacyDir, "Commands")
	writeSessionFile(t, legacySupplied, commands)

	legacy, _ := testBackend(t, legacySupplied, func(o *Options) { o.Type = Other })
	requireCommands(t, legacy.ReadLastSessionCommands().Commands, commands)
}

func TestMaintenanceBeforeFirstCallOnlyInitializes(t *testing.T) {
	dir := t.TempDir()
	sessionsDir := filepath.Join(dir, "Sessions")
	if err := os.MkdirAll(sessionsDir, 0o700); err != nil {
		t.Fatal(err)
	}
	commands := []record.Command{record.New(5, []byte("kept"))}
	writeSessionFile(t, filepath.Join(sessionsDir, "Session_100"), commands)

	backend, _ := testBackend(t, dir, nil)
	backend.RunMaintenance()

	if !backend.inited {
		t.Fatal("maintenance should have initialized the backend")
	}
	requireCommands(t, backend.ReadLastSessionCommands().Commands, commands)
}

// writeSessionFile writes a plaintext session file with the given
// commands directly, bypassing the backend.
func writeSessionFile(t *testing.T, path string, commands []record.Command) {
	t.Helper()
	writer, err := logfile.Create(path, nil, false)
	if err != nil {
		t.Fatalf("creating %s: %v", path, err)
	}
	if len(commands) > 0 {
		if err := writer.AppendCommands(commands); err != nil {
			t.Fatalf("writing %s: %v", path, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("closing %s: %v", path, err)
	}
}

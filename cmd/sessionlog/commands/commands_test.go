// Copyright 2026 The Sessionlog Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/bureau-foundation/sessionlog/lib/archive"
	"github.com/bureau-foundation/sessionlog/lib/logfile"
	"github.com/bureau-foundation/sessionlog/lib/record"
)

func writeLogFile(t *testing.T, path string, commands []record.Command) {
	t.Helper()
	writer, err := logfile.Create(path, nil, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(commands) > 0 {
		if err := writer.AppendCommands(commands); err != nil {
			t.Fatal(err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestInspectPlainFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Session_100")
	writeLogFile(t, path, nil)

	var out bytes.Buffer
	if err := runInspect(&out, path); err != nil {
		t.Fatalf("inspect: %v", err)
	}
	for _, want := range []string{"plaintext", "encrypted", "false"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestInspectRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage")
	if err := os.WriteFile(path, []byte("not a session"), 0o600); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	if err := runInspect(&out, path); err == nil {
		t.Fatal("expected an error for a file with bad magic")
	}
}

func TestDumpPrintsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Session_100")
	writeLogFile(t, path, []record.Command{
		record.New(1, []byte{0xDE, 0xAD}),
		record.New(2, nil),
	})

	var out bytes.Buffer
	if err := runDump(&out, path, "", false); err != nil {
		t.Fatalf("dump: %v", err)
	}
	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("dumped %d lines, want 2:\n%s", len(lines), out.String())
	}
	if !strings.Contains(lines[0], "dead") {
		t.Errorf("first line should carry the hex payload: %q", lines[0])
	}
}

func TestVerifyReportsPartialTail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Session_100")
	writeLogFile(t, path, []record.Command{record.New(1, []byte("complete"))})

	// Tear the last record.
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Truncate(path, info.Size()-1); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := runVerify(&out, path, ""); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !strings.Contains(out.String(), "partial tail") {
		t.Errorf("output should report the partial tail: %q", out.String())
	}
}

func TestVerifyRejectsInvalidHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage")
	if err := os.WriteFile(path, []byte("xx"), 0o600); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	if err := runVerify(&out, path, ""); err == nil {
		t.Fatal("expected an error for an invalid header")
	}
}

func TestCompactConfigValidation(t *testing.T) {
	dir := t.TempDir()

	path := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(path, []byte("stores: []\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := loadCompactConfig(path); err == nil {
		t.Error("empty store list should be rejected")
	}

	path = filepath.Join(dir, "badtype.yaml")
	if err := os.WriteFile(path, []byte("stores:\n  - path: /x\n    type: bogus\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := loadCompactConfig(path); err == nil {
		t.Error("unknown session type should be rejected")
	}

	path = filepath.Join(dir, "good.yaml")
	if err := os.WriteFile(path, []byte("archive_dir: /tmp/a\nstores:\n  - path: /x\n    type: session\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	config, err := loadCompactConfig(path)
	if err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	if config.Stores[0].Keep != 2 {
		t.Errorf("default keep = %d, want 2", config.Stores[0].Keep)
	}
}

func TestCompactExpiresOldGenerations(t *testing.T) {
	base := t.TempDir()
	sessionsDir := filepath.Join(base, "Sessions")
	if err := os.MkdirAll(sessionsDir, 0o700); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"Session_100", "Session_200", "Session_300", "Session_400"} {
		writeLogFile(t, filepath.Join(sessionsDir, name), []record.Command{record.New(1, []byte(name))})
	}

	archiveDir := t.TempDir()
	configPath := filepath.Join(t.TempDir(), "compact.yaml")
	config := "archive_dir: " + archiveDir + "\nstores:\n  - path: " + base + "\n    type: session\n"
	if err := os.WriteFile(configPath, []byte(config), 0o600); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := runCompact(&out, configPath); err != nil {
		t.Fatalf("compact: %v", err)
	}

	for _, kept := range []string{"Session_400", "Session_300"} {
		if _, err := os.Stat(filepath.Join(sessionsDir, kept)); err != nil {
			t.Errorf("%s should be kept: %v", kept, err)
		}
	}
	for _, expired := range []string{"Session_200", "Session_100"} {
		if _, err := os.Stat(filepath.Join(sessionsDir, expired)); !os.IsNotExist(err) {
			t.Errorf("%s should be expired", expired)
		}
	}

	entries, err := archive.ReadIndex(archiveDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("archive holds %d entries, want 2", len(entries))
	}
	for _, entry := range entries {
		if entry.TimestampMicros != 200 && entry.TimestampMicros != 100 {
			t.Errorf("unexpected archived timestamp %d", entry.TimestampMicros)
		}
	}
}

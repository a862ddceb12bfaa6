// Copyright 2026 The Sessionlog Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// SessionInfo identifies one session file and the timestamp parsed
// from its name. Timestamps order the generations: newest is current.
type SessionInfo struct {
	Path      string
	Timestamp time.Time
}

// FilePathFromTime builds the path for a session file written at the
// given time: <dir>/<prefix>_<microseconds since the Unix epoch>.
func FilePathFromTime(sessionType SessionType, suppliedPath string, t time.Time) string {
	name := sessionType.baseName(suppliedPath) + timestampSeparator + strconv.FormatInt(t.UnixMicro(), 10)
	return filepath.Join(sessionType.dirName(suppliedPath), name)
}

// TimestampFromPath parses the timestamp out of a session filename.
// Parsing is strict: the base name must be exactly one separator
// splitting a prefix from a run of decimal digits. Anything else is
// not a session file.
func TimestampFromPath(path string) (time.Time, bool) {
	parts := strings.Split(filepath.Base(path), timestampSeparator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return time.Time{}, false
	}
	for _, r := range parts[1] {
		if r < '0' || r > '9' {
			return time.Time{}, false
		}
	}
	micros, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.UnixMicro(micros), true
}

// SessionFiles enumerates the session files of one type, newest
// first. Names that fail strict timestamp parsing are ignored.
func SessionFiles(sessionType SessionType, suppliedPath string) []SessionInfo {
	entries, err := os.ReadDir(sessionType.dirName(suppliedPath))
	if err != nil {
		return nil
	}

	prefix := sessionType.baseName(suppliedPath) + timestampSeparator
	var sessions []SessionInfo
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}
		path := filepath.Join(sessionType.dirName(suppliedPath), entry.Name())
		if timestamp, ok := TimestampFromPath(path); ok {
			sessions = append(sessions, SessionInfo{Path: path, Timestamp: timestamp})
		}
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].Timestamp.After(sessions[j].Timestamp)
	})
	return sessions
}

// SessionFilePaths returns the set of session file paths of one type.
func SessionFilePaths(sessionType SessionType, suppliedPath string) map[string]struct{} {
	paths := make(map[string]struct{})
	for _, session := range SessionFiles(sessionType, suppliedPath) {
		paths[session.Path] = struct{}{}
	}
	return paths
}

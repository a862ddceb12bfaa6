// Copyright 2026 The Sessionlog Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import "path/filepath"

// SessionType selects the filename prefix, directory, and legacy
// filenames for one kind of session log.
type SessionType int

const (
	// SessionRestore holds window and tab state for session restore.
	SessionRestore SessionType = iota
	// TabRestore holds recently closed tabs.
	TabRestore
	// AppRestore holds app window state.
	AppRestore
	// Other is a caller-named log. The supplied path's base name is
	// the filename prefix, and current/last promotion is unsupported.
	Other
)

// sessionsSubdirectory is where Session, Tabs, and Apps files live
// under the supplied path.
const sessionsSubdirectory = "Sessions"

// timestampSeparator splits the filename prefix from the timestamp.
const timestampSeparator = "_"

// typeTraits is the per-type dispatch table. Zero-valued legacy names
// mean "the supplied path itself is the legacy current file" and
// "there is no legacy last file".
type typeTraits struct {
	prefix        string
	legacyCurrent string
	legacyLast    string
}

var sessionTypeTraits = [...]typeTraits{
	SessionRestore: {prefix: "Session", legacyCurrent: "Current Session", legacyLast: "Last Session"},
	TabRestore:     {prefix: "Tabs", legacyCurrent: "Current Tabs", legacyLast: "Last Tabs"},
	AppRestore:     {prefix: "Apps"},
	Other:          {},
}

// String returns the type's name for logs and archive index entries.
func (t SessionType) String() string {
	switch t {
	case SessionRestore:
		return "session"
	case TabRestore:
		return "tab"
	case AppRestore:
		return "app"
	case Other:
		return "other"
	default:
		return "unknown"
	}
}

// dirName returns the directory session files live in. Other logs
// share the supplied path's directory; everything else gets the
// Sessions subdirectory of the supplied path.
func (t SessionType) dirName(suppliedPath string) string {
	if t == Other {
		return filepath.Dir(suppliedPath)
	}
	return filepath.Join(suppliedPath, sessionsSubdirectory)
}

// baseName returns the filename prefix.
func (t SessionType) baseName(suppliedPath string) string {
	if t == Other {
		return filepath.Base(suppliedPath)
	}
	return sessionTypeTraits[t].prefix
}

// legacyCurrentPath returns the timestampless filename older releases
// wrote for the current generation. Recognized on read only.
func (t SessionType) legacyCurrentPath(suppliedPath string) string {
	name := sessionTypeTraits[t].legacyCurrent
	if name == "" {
		return suppliedPath
	}
	return filepath.Join(suppliedPath, name)
}

// legacyLastPath returns the timestampless last-generation filename,
// or "" for types that never had one.
func (t SessionType) legacyLastPath(suppliedPath string) string {
	name := sessionTypeTraits[t].legacyLast
	if name == "" {
		return ""
	}
	return filepath.Join(suppliedPath, name)
}

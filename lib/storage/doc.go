// Copyright 2026 The Sessionlog Authors
// SPDX-License-Identifier: Apache-2.0

// Package storage implements the session command-log storage backend:
// an append-only, optionally encrypted, two-generation on-disk log of
// command records.
//
// [Backend] owns all mutable state (the open file, the AEAD cipher,
// the record counter, the current and last generation paths) and is
// strictly single-threaded: every method must run on one backend
// sequence. [Store] provides that confinement, wrapping a Backend in
// a [sequence.Runner] and exposing the asynchronous contract callers
// use from other goroutines. Write errors are reported through a
// caller-supplied callback posted to the caller's executor, never
// raised on the backend sequence itself.
//
// Retention is two generations per session type: the "current" file
// being appended to and the "last" file produced by the previous run.
// Files are named <prefix>_<microseconds> and generation age is the
// parsed timestamp, advanced artificially when the wall clock stalls
// or steps backward so that retained timestamps stay strictly
// monotonic. Anything older is deleted (or archived, when an archiver
// is configured) at initialization, on promotion, and by the periodic
// maintenance pass.
//
// In marker mode a file counts as a usable last generation only if it
// contains the initial-state marker record, so a session that crashed
// before fully describing its initial state is discarded on the next
// launch instead of surfacing a partial snapshot.
package storage

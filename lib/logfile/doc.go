// Copyright 2026 The Sessionlog Authors
// SPDX-License-Identifier: Apache-2.0

// Package logfile reads and writes session log files.
//
// A session log file is an 8-byte header followed by a stream of
// framed command records (see lib/record for the frame layout). The
// header is a 32-bit magic ("SSNS") and a 32-bit version, both
// little-endian. Four versions exist:
//
//	1  plaintext records
//	2  encrypted records
//	3  plaintext records, initial-state marker expected
//	4  encrypted records, initial-state marker expected
//
// A file is only readable when the caller's key presence matches the
// version: opening an encrypted file without a key, or a plaintext
// file with one, fails header validation.
//
// Reads are best-effort. A truncated tail loses only the trailing
// partial record; everything decoded before it is returned along with
// an error flag. An undecryptable or zero-length record abandons the
// file from that record on.
package logfile

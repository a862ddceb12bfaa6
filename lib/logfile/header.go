// Copyright 2026 The Sessionlog Authors
// SPDX-License-Identifier: Apache-2.0

package logfile

// Magic is the file signature: "SSNS", little-endian.
const Magic uint32 = 0x53534E53

// HeaderSize is the length of the file header: 4-byte magic plus
// 4-byte version.
const HeaderSize = 8

// File format versions. The version encodes both whether records are
// encrypted and whether the file is expected to carry the
// initial-state marker.
const (
	VersionPlain           uint32 = 1
	VersionEncrypted       uint32 = 2
	VersionPlainMarker     uint32 = 3
	VersionEncryptedMarker uint32 = 4
)

// versionFor selects the header version for a new file.
func versionFor(encrypted, marker bool) uint32 {
	switch {
	case encrypted && marker:
		return VersionEncryptedMarker
	case encrypted:
		return VersionEncrypted
	case marker:
		return VersionPlainMarker
	default:
		return VersionPlain
	}
}

// versionIsEncrypted reports whether records under this version are
// AEAD envelopes.
func versionIsEncrypted(version uint32) bool {
	return version == VersionEncrypted || version == VersionEncryptedMarker
}

// versionSupportsMarker reports whether files under this version are
// expected to carry the initial-state marker record.
func versionSupportsMarker(version uint32) bool {
	return version == VersionPlainMarker || version == VersionEncryptedMarker
}

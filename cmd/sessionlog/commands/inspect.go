// Copyright 2026 The Sessionlog Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/bureau-foundation/sessionlog/cmd/sessionlog/cli"
	"github.com/bureau-foundation/sessionlog/lib/logfile"
)

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:    "inspect",
		Summary: "Print a session file's header",
		Usage:   "sessionlog inspect <file>",
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("inspect: expected exactly one file argument")
			}
			return runInspect(os.Stdout, args[0])
		},
	}
}

func runInspect(w io.Writer, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("inspect: %w", err)
	}
	defer file.Close()

	header := make([]byte, logfile.HeaderSize)
	if _, err := io.ReadFull(file, header); err != nil {
		return fmt.Errorf("inspect %s: reading header: %w", path, err)
	}
	magic := binary.LittleEndian.Uint32(header[:4])
	version := binary.LittleEndian.Uint32(header[4:])

	tw := tabwriter.NewWriter(w, 2, 0, 3, ' ', 0)
	fmt.Fprintf(tw, "file\t%s\n", path)
	fmt.Fprintf(tw, "magic\t%#08x (%s)\n", magic, describeMagic(magic))
	fmt.Fprintf(tw, "version\t%d (%s)\n", version, describeVersion(version))
	fmt.Fprintf(tw, "encrypted\t%v\n", versionEncrypted(version))
	fmt.Fprintf(tw, "marker\t%v\n", versionMarker(version))
	tw.Flush()

	if magic != logfile.Magic {
		return fmt.Errorf("inspect %s: bad magic", path)
	}
	return nil
}

func describeMagic(magic uint32) string {
	if magic == logfile.Magic {
		return "ok"
	}
	return "MISMATCH"
}

func describeVersion(version uint32) string {
	switch version {
	case logfile.VersionPlain:
		return "plaintext"
	case logfile.VersionEncrypted:
		return "encrypted"
	case logfile.VersionPlainMarker:
		return "plaintext, marker"
	case logfile.VersionEncryptedMarker:
		return "encrypted, marker"
	default:
		return "UNKNOWN"
	}
}

func versionEncrypted(version uint32) bool {
	return version == logfile.VersionEncrypted || version == logfile.VersionEncryptedMarker
}

func versionMarker(version uint32) bool {
	return version == logfile.VersionPlainMarker || version == logfile.VersionEncryptedMarker
}

// Copyright 2026 The Sessionlog Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the sessionlog CLI command tree: offline
// tooling for session command-log files (header inspection, record
// dumps, integrity checks, key management, and cron-driven
// compaction).
package commands

import (
	"fmt"

	"github.com/bureau-foundation/sessionlog/cmd/sessionlog/cli"
	"github.com/bureau-foundation/sessionlog/lib/version"
)

// Root builds and returns the complete sessionlog CLI command tree.
func Root() *cli.Command {
	return &cli.Command{
		Name: "sessionlog",
		Description: `Sessionlog: tooling for session command-log files.

Inspect, dump, and verify append-only command logs, manage sealed
encryption keys, and run retention maintenance over stores.`,
		Subcommands: []*cli.Command{
			inspectCommand(),
			dumpCommand(),
			verifyCommand(),
			keygenCommand(),
			compactCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(args []string) error {
					fmt.Printf("sessionlog %s\n", version.Full())
					return nil
				},
			},
		},
		Examples: []cli.Example{
			{
				Description: "Show a file's header",
				Command:     "sessionlog inspect 'Sessions/Session_1772361600123456'",
			},
			{
				Description: "Dump the records of an encrypted file",
				Command:     "sessionlog dump --key-file master.age 'Sessions/Session_1772361600123456'",
			},
			{
				Description: "Generate a sealed master key",
				Command:     "sessionlog keygen --out master.age",
			},
			{
				Description: "Expire and archive stale files (for cron)",
				Command:     "sessionlog compact --config /etc/sessionlog/compact.yaml",
			},
		},
	}
}

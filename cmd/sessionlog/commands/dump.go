// Copyright 2026 The Sessionlog Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/sessionlog/cmd/sessionlog/cli"
	"github.com/bureau-foundation/sessionlog/lib/logfile"
	"github.com/bureau-foundation/sessionlog/lib/storage"
)

func dumpCommand() *cli.Command {
	var keyFile string
	var raw bool
	return &cli.Command{
		Name:    "dump",
		Summary: "Print the records of a session file",
		Usage:   "sessionlog dump <file> [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("dump", pflag.ContinueOnError)
			flags.StringVar(&keyFile, "key-file", "", "sealed key file for encrypted logs")
			flags.BoolVar(&raw, "raw", false, "print payloads as raw bytes instead of hex")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("dump: expected exactly one file argument")
			}
			return runDump(os.Stdout, args[0], keyFile, raw)
		},
	}
}

func runDump(w io.Writer, path, keyFile string, raw bool) error {
	key, err := loadKey(keyFile)
	if err != nil {
		return fmt.Errorf("dump: %w", err)
	}
	if key != nil {
		defer key.Close()
	}

	if !logfile.IsHeaderValid(path, key) {
		return fmt.Errorf("dump %s: invalid header", path)
	}

	result := storage.ReadCommandsFromFile(path, key)
	for index, command := range result.Commands {
		payload := hex.EncodeToString(command.Payload)
		if raw {
			payload = string(command.Payload)
		}
		fmt.Fprintf(w, "%6d  id=%-3d  size=%-5d  %s\n", index, command.ID, len(command.Payload), payload)
	}
	if result.ErrorReading {
		fmt.Fprintf(os.Stderr, "warning: %s: truncated or undecodable tail; dump is partial\n", path)
	}
	return nil
}

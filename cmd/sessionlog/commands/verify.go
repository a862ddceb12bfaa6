// Copyright 2026 The Sessionlog Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/sessionlog/cmd/sessionlog/cli"
	"github.com/bureau-foundation/sessionlog/lib/logfile"
)

func verifyCommand() *cli.Command {
	var keyFile string
	return &cli.Command{
		Name:    "verify",
		Summary: "Check a session file's header and records",
		Usage:   "sessionlog verify <file> [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("verify", pflag.ContinueOnError)
			flags.StringVar(&keyFile, "key-file", "", "sealed key file for encrypted logs")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("verify: expected exactly one file argument")
			}
			return runVerify(os.Stdout, args[0], keyFile)
		},
	}
}

func runVerify(w io.Writer, path, keyFile string) error {
	key, err := loadKey(keyFile)
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	if key != nil {
		defer key.Close()
	}

	if !logfile.IsHeaderValid(path, key) {
		return fmt.Errorf("verify %s: invalid header", path)
	}

	result := logfile.ReadAll(path, key)
	if result.ErrorReading {
		// A torn tail is the expected shape of a crashed writer, not a
		// verification failure.
		fmt.Fprintf(w, "%s: ok, %d records, partial tail\n", path, len(result.Commands))
		return nil
	}
	fmt.Fprintf(w, "%s: ok, %d records\n", path, len(result.Commands))
	return nil
}

// Copyright 2026 The Sessionlog Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/sessionlog/cmd/sessionlog/cli"
	"github.com/bureau-foundation/sessionlog/lib/keyfile"
)

func keygenCommand() *cli.Command {
	var out string
	return &cli.Command{
		Name:    "keygen",
		Summary: "Generate a sealed master key file",
		Usage:   "sessionlog keygen --out <file>",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("keygen", pflag.ContinueOnError)
			flags.StringVar(&out, "out", "", "path for the sealed key file")
			return flags
		},
		Run: func(args []string) error {
			if out == "" {
				return fmt.Errorf("keygen: --out is required")
			}
			if len(args) != 0 {
				return fmt.Errorf("keygen: unexpected arguments: %v", args)
			}
			return runKeygen(out)
		},
	}
}

func runKeygen(out string) error {
	if _, err := os.Stat(out); err == nil {
		return fmt.Errorf("keygen: %s already exists", out)
	}

	passphrase, err := promptPassphrase("new passphrase: ")
	if err != nil {
		return fmt.Errorf("keygen: %w", err)
	}
	if passphrase == "" {
		return fmt.Errorf("keygen: empty passphrase")
	}
	confirm, err := promptPassphrase("confirm passphrase: ")
	if err != nil {
		return fmt.Errorf("keygen: %w", err)
	}
	if confirm != passphrase {
		return fmt.Errorf("keygen: passphrases do not match")
	}

	key, err := keyfile.Generate()
	if err != nil {
		return fmt.Errorf("keygen: %w", err)
	}
	defer key.Close()

	if err := keyfile.Seal(key, passphrase, out); err != nil {
		return fmt.Errorf("keygen: %w", err)
	}
	fmt.Fprintf(os.Stderr, "wrote %s\n", out)
	return nil
}

// Copyright 2026 The Sessionlog Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/bureau-foundation/sessionlog/lib/keyfile"
	"github.com/bureau-foundation/sessionlog/lib/secret"
)

// loadKey unseals the key file at path, prompting for its passphrase.
// An empty path means no key.
func loadKey(path string) (*secret.Buffer, error) {
	if path == "" {
		return nil, nil
	}
	passphrase, err := promptPassphrase(fmt.Sprintf("passphrase for %s: ", path))
	if err != nil {
		return nil, err
	}
	key, err := keyfile.Unseal(path, passphrase)
	if err != nil {
		return nil, err
	}
	return key, nil
}

// promptPassphrase reads a passphrase without echo when stdin is a
// terminal, and falls back to a plain line read otherwise (pipes,
// tests, cron).
func promptPassphrase(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, prompt)
		raw, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("reading passphrase: %w", err)
		}
		return string(raw), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// Copyright 2026 The Sessionlog Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/bureau-foundation/sessionlog/cmd/sessionlog/cli"
	"github.com/bureau-foundation/sessionlog/lib/archive"
	"github.com/bureau-foundation/sessionlog/lib/storage"
)

// compactConfig is the YAML configuration for the compact command.
type compactConfig struct {
	// ArchiveDir receives compressed copies of expired files before
	// deletion. Empty means delete without archiving.
	ArchiveDir string `yaml:"archive_dir"`

	Stores []compactStore `yaml:"stores"`
}

type compactStore struct {
	// Path is the store's base path, as passed to the backend.
	Path string `yaml:"path"`

	// Type is one of session, tab, app, other.
	Type string `yaml:"type"`

	// Keep is how many generations to retain, newest first. Zero means
	// the default of two (current plus last).
	Keep int `yaml:"keep"`
}

func compactCommand() *cli.Command {
	var configPath string
	return &cli.Command{
		Name:    "compact",
		Summary: "Expire stale session files across configured stores",
		Usage:   "sessionlog compact --config <file>",
		Description: `Expire stale session files across configured stores.

Keeps the newest generations of each configured store (two by default:
current and last) and deletes the rest, optionally archiving each
expired file as a zstd blob plus index entry first. Safe to run from
cron while a writer is live: the newest files are never touched.`,
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("compact", pflag.ContinueOnError)
			flags.StringVar(&configPath, "config", "", "YAML config listing stores")
			return flags
		},
		Run: func(args []string) error {
			if configPath == "" {
				return fmt.Errorf("compact: --config is required")
			}
			if len(args) != 0 {
				return fmt.Errorf("compact: unexpected arguments: %v", args)
			}
			return runCompact(os.Stdout, configPath)
		},
	}
}

func loadCompactConfig(path string) (*compactConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("compact: %w", err)
	}
	var config compactConfig
	if err := yaml.Unmarshal(raw, &config); err != nil {
		return nil, fmt.Errorf("compact: parsing %s: %w", path, err)
	}
	if len(config.Stores) == 0 {
		return nil, fmt.Errorf("compact: %s configures no stores", path)
	}
	for index := range config.Stores {
		store := &config.Stores[index]
		if store.Path == "" {
			return nil, fmt.Errorf("compact: store %d has no path", index)
		}
		if _, err := parseSessionType(store.Type); err != nil {
			return nil, fmt.Errorf("compact: store %d: %w", index, err)
		}
		if store.Keep == 0 {
			store.Keep = 2
		}
	}
	return &config, nil
}

func runCompact(w io.Writer, configPath string) error {
	config, err := loadCompactConfig(configPath)
	if err != nil {
		return err
	}

	var archiver *archive.Archiver
	if config.ArchiveDir != "" {
		archiver, err = archive.New(config.ArchiveDir)
		if err != nil {
			return fmt.Errorf("compact: %w", err)
		}
		defer archiver.Close()
	}

	for _, store := range config.Stores {
		sessionType, err := parseSessionType(store.Type)
		if err != nil {
			return fmt.Errorf("compact: %w", err)
		}

		files := storage.SessionFiles(sessionType, store.Path)
		if len(files) <= store.Keep {
			fmt.Fprintf(w, "%s (%s): %d files, nothing to expire\n", store.Path, store.Type, len(files))
			continue
		}

		expired := 0
		for _, stale := range files[store.Keep:] {
			if archiver != nil {
				if err := archiver.Archive(stale.Path, store.Type, stale.Timestamp, time.Now()); err != nil {
					fmt.Fprintf(os.Stderr, "warning: archiving %s: %v\n", stale.Path, err)
				}
			}
			if err := os.Remove(stale.Path); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("compact: deleting %s: %w", stale.Path, err)
			}
			expired++
		}
		fmt.Fprintf(w, "%s (%s): expired %d of %d files\n", store.Path, store.Type, expired, len(files))
	}
	return nil
}

func parseSessionType(name string) (storage.SessionType, error) {
	switch name {
	case "session":
		return storage.SessionRestore, nil
	case "tab":
		return storage.TabRestore, nil
	case "app":
		return storage.AppRestore, nil
	case "other":
		return storage.Other, nil
	default:
		return 0, fmt.Errorf("unknown session type %q (want session, tab, app, or other)", name)
	}
}

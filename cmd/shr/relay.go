// Copyright 2026 The Shrlink Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/shrlink/shrlink/cmd/shr/cli"
)

func (a *app) cleanupCommand() *cli.Command {
	var maxAge time.Duration
	return &cli.Command{
		Name:    "cleanup",
		Summary: "Delete old bundles from the relay",
		Description: `Ask the relay to delete bundles older than --max-age. Without the
flag, fallback.expiry_secs from the configuration is used.`,
		Flags: func() *pflag.FlagSet {
			flagSet := a.commandFlags("cleanup")
			flagSet.DurationVar(&maxAge, "max-age", 0, "delete bundles stored longer ago than this (default: fallback.expiry_secs)")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("cleanup takes no arguments")
			}
			if maxAge < 0 {
				return fmt.Errorf("--max-age must not be negative")
			}
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if maxAge == 0 {
				maxAge = cfg.Fallback.Expiry()
			}
			client, err := a.transport(cfg, a.logger("cleanup"))
			if err != nil {
				return err
			}

			cli.Progress(a.stdout, "Cleaning up bundles older than %s on %s", maxAge, cfg.Fallback.Endpoint)
			deleted, err := client.Cleanup(ctx, maxAge)
			if err != nil {
				return err
			}
			cli.Success(a.stdout, "Deleted %d old %s", deleted, plural(deleted, "file", "files"))
			return nil
		},
	}
}

func (a *app) statsCommand() *cli.Command {
	return &cli.Command{
		Name:    "stats",
		Summary: "Show relay storage statistics",
		Flags:   func() *pflag.FlagSet { return a.commandFlags("stats") },
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("stats takes no arguments")
			}
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			client, err := a.transport(cfg, a.logger("stats"))
			if err != nil {
				return err
			}
			stats, err := client.Stats(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Relay: %s\n", cfg.Fallback.Endpoint)
			fmt.Fprintf(a.stdout, "  Total files: %s\n", humanize.Comma(int64(stats.TotalFiles)))
			fmt.Fprintf(a.stdout, "  Total size:  %s\n", humanize.IBytes(uint64(stats.TotalBytes)))
			return nil
		},
	}
}

func plural(n int, singular, many string) string {
	if n == 1 {
		return singular
	}
	return many
}

// Copyright 2026 The Shrlink Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/shrlink/shrlink/cmd/shr/cli"
	"github.com/shrlink/shrlink/lib/config"
	"github.com/shrlink/shrlink/lib/httptransport"
	"github.com/shrlink/shrlink/lib/version"
)

// app holds what every command shares: the output stream, the global
// flags, and how to build a logger.
type app struct {
	stdout io.Writer

	configPath string
	verbose    bool

	newLogger func(verbose bool) *slog.Logger
}

func newApp(stdout io.Writer) *app {
	return &app{
		stdout:    stdout,
		newLogger: cli.NewCommandLogger,
	}
}

func (a *app) rootCommand() *cli.Command {
	return &cli.Command{
		Name: "shr",
		Description: `shr: fast file sharing with parallel compression.

Files are split into fixed-size blocks, compressed in parallel, and
packed into a .shr bundle that records a BLAKE3 digest per block. The
receiver verifies every block before writing it.`,
		Subcommands: []*cli.Command{
			a.sendCommand(),
			a.recvCommand(),
			a.inspectCommand(),
			a.configCommand(),
			a.cleanupCommand(),
			a.statsCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(context.Context, []string) error {
					fmt.Fprintf(a.stdout, "shr %s\n", version.Full())
					return nil
				},
			},
		},
	}
}

// addCommonFlags registers the flags every command accepts.
func (a *app) addCommonFlags(flagSet *pflag.FlagSet) {
	flagSet.StringVarP(&a.configPath, "config", "c", "",
		"config file (default: $"+config.EnvironmentVariable+", then built-in defaults)")
	flagSet.BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
}

func (a *app) logger(command string) *slog.Logger {
	return a.newLogger(a.verbose).With("command", command)
}

// loadConfig resolves the configuration: --config, then the file
// named by SHRLINK_CONFIG, then built-in defaults.
func (a *app) loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	switch {
	case a.configPath != "":
		cfg, err = config.LoadFile(a.configPath)
	case os.Getenv(config.EnvironmentVariable) != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// writableConfigPath is where "config reset" writes.
func (a *app) writableConfigPath() (string, error) {
	if a.configPath != "" {
		return a.configPath, nil
	}
	if path := os.Getenv(config.EnvironmentVariable); path != "" {
		return path, nil
	}
	return "", errors.New("no config file to write; pass --config or set " + config.EnvironmentVariable)
}

func (a *app) transport(cfg *config.Config, logger *slog.Logger) (*httptransport.Client, error) {
	timeout, err := cfg.Fallback.RequestTimeout()
	if err != nil {
		return nil, err
	}
	return httptransport.New(httptransport.Config{
		Endpoint:   cfg.Fallback.Endpoint,
		Timeout:    timeout,
		MaxRetries: cfg.Fallback.MaxRetries,
		Logger:     logger,
	})
}

// commandFlags returns a FlagSet for name with the common flags
// already registered.
func (a *app) commandFlags(name string) *pflag.FlagSet {
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	a.addCommonFlags(flagSet)
	return flagSet
}

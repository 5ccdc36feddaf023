// Copyright 2026 The Shrlink Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/shrlink/shrlink/cmd/shr/cli"
	"github.com/shrlink/shrlink/lib/config"
)

func (a *app) configCommand() *cli.Command {
	return &cli.Command{
		Name:    "config",
		Summary: "Show or reset the configuration",
		Subcommands: []*cli.Command{
			{
				Name:    "show",
				Summary: "Print the effective configuration as YAML",
				Flags:   func() *pflag.FlagSet { return a.commandFlags("show") },
				Run: func(context.Context, []string) error {
					cfg, err := a.loadConfig()
					if err != nil {
						return err
					}
					data, err := yaml.Marshal(cfg)
					if err != nil {
						return fmt.Errorf("encoding config: %w", err)
					}
					a.stdout.Write(data)
					return nil
				},
			},
			{
				Name:    "reset",
				Summary: "Overwrite the config file with the built-in defaults",
				Flags:   func() *pflag.FlagSet { return a.commandFlags("reset") },
				Run: func(context.Context, []string) error {
					path, err := a.writableConfigPath()
					if err != nil {
						return err
					}
					if err := config.Default().Save(path); err != nil {
						return err
					}
					cli.Success(a.stdout, "Configuration reset to defaults in %s", path)
					return nil
				},
			},
		},
	}
}

// Copyright 2026 The Shrlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli is the small command framework behind the shr binary.
//
// A [Command] has a name, an optional [pflag.FlagSet] factory, and
// either a Run function or nested [Command.Subcommands].
// [Command.Execute] routes args through the tree, parses flags, and
// prints structured help. Unknown subcommands and flags get a "did you
// mean" suggestion when an edit distance of at most 3 finds one.
//
// [NewCommandLogger] builds the slog logger commands use for
// diagnostics, and style.go holds the lipgloss styles for the
// human-facing status lines they print on stdout.
package cli

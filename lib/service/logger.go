// Copyright 2026 The Shrlink Authors
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger creates a JSON logger on stderr at the given level and
// installs it as the slog default. Service binaries log JSON
// unconditionally; their output goes to a supervisor, not a person.
func NewLogger(level slog.Level) *slog.Logger {
	return newJSONLogger(os.Stderr, level)
}

func newJSONLogger(output io.Writer, level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger
}

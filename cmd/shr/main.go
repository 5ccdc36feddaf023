// Copyright 2026 The Shrlink Authors
// SPDX-License-Identifier: Apache-2.0

// Command shr compresses files into integrity-checked bundles and moves
// them through a shr-server relay.
//
//	shr send report.pdf            # upload, print a share URL
//	shr recv http://.../files/x.shr -o report.pdf
//	shr inspect bundle.shr --verify
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	if err := run(); err != nil {
		// Commands that already reported their failure return an
		// error carrying the exit code; don't print it again.
		if coder, ok := err.(interface{ ExitCode() int }); ok {
			os.Exit(coder.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return newApp(os.Stdout).rootCommand().Execute(ctx, os.Args[1:])
}

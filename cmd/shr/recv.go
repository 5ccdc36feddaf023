// Copyright 2026 The Shrlink Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/shrlink/shrlink/cmd/shr/cli"
	"github.com/shrlink/shrlink/lib/bundle"
	"github.com/shrlink/shrlink/lib/chunk"
	"github.com/shrlink/shrlink/lib/config"
	"github.com/shrlink/shrlink/lib/httptransport"
)

func (a *app) recvCommand() *cli.Command {
	var output string
	return &cli.Command{
		Name:    "recv",
		Summary: "Download a bundle and rebuild the file",
		Description: `Fetch a bundle from a relay URL (or read a local .shr file), verify
every chunk against its BLAKE3 digest, and write the original file.

Nothing is left behind on failure: a corrupt chunk or an interrupted
download removes the partial output.`,
		Usage: "shr recv URL|PATH [flags]",
		Examples: []cli.Example{
			{Description: "Receive from a relay", Command: "shr recv http://localhost:8080/files/0b9f....shr -o report.pdf"},
			{Description: "Unpack a local bundle", Command: "shr recv report.shr -o report.pdf"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := a.commandFlags("recv")
			flagSet.StringVarP(&output, "output", "o", "", "output `PATH` (default: received_file_<uuid>)")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: shr recv URL|PATH [flags]")
			}
			return a.recv(ctx, args[0], output)
		},
	}
}

func (a *app) recv(ctx context.Context, source, output string) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	logger := a.logger("recv")

	cli.Progress(a.stdout, "Receiving file from %s", source)
	chunks, err := a.fetchChunks(ctx, cfg, logger, source)
	if err != nil {
		return err
	}
	cli.Success(a.stdout, "Downloaded %d chunks", len(chunks))

	if output == "" {
		output = "received_file_" + uuid.New().String()
	}
	options, err := cfg.CompressorOptions()
	if err != nil {
		return err
	}

	file, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("%w: %w", chunk.ErrIO, err)
	}
	var total int64
	for _, c := range chunks {
		total += int64(c.OriginalSize)
	}
	bar := cli.NewProgressBar(a.stdout, "Reassembling", total)
	written, err := chunk.Reassemble(ctx, chunks, bar.Writer(file), options.Workers)
	bar.Finish()
	if closeErr := file.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("%w: %w", chunk.ErrIO, closeErr)
	}
	if err != nil {
		os.Remove(output)
		logger.Debug("removed partial output", "path", output, "written", written)
		return err
	}

	cli.Success(a.stdout, "File saved to %s (%s)", output, humanize.IBytes(uint64(written)))
	return nil
}

// fetchChunks downloads a bundle from an HTTP URL or reads it from a
// local path, and decodes it.
func (a *app) fetchChunks(ctx context.Context, cfg *config.Config, logger *slog.Logger, source string) ([]chunk.Chunk, error) {
	if httptransport.IsHTTPURL(source) {
		client, err := a.transport(cfg, logger)
		if err != nil {
			return nil, err
		}
		return client.DownloadChunks(ctx, source)
	}

	data, err := a.readLocalBundle(source)
	if err != nil {
		return nil, err
	}
	return bundle.Decode(data)
}

func (a *app) readLocalBundle(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s is neither an http(s) URL nor an existing bundle file", chunk.ErrInvalidInput, path)
		}
		return nil, fmt.Errorf("%w: %w", chunk.ErrIO, err)
	}
	return data, nil
}

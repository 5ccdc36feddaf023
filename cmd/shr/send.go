// Copyright 2026 The Shrlink Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/shrlink/shrlink/cmd/shr/cli"
	"github.com/shrlink/shrlink/lib/bundle"
	"github.com/shrlink/shrlink/lib/chunk"
)

func (a *app) sendCommand() *cli.Command {
	var outputBundle string
	return &cli.Command{
		Name:    "send",
		Summary: "Compress a file and share it",
		Description: `Compress FILE into a .shr bundle and upload it to the relay named by
fallback.endpoint. Prints the URL the receiver passes to "shr recv".

With --output-bundle the bundle is written locally instead and nothing
is uploaded.`,
		Usage: "shr send FILE [flags]",
		Examples: []cli.Example{
			{Description: "Upload a file to the configured relay", Command: "shr send report.pdf"},
			{Description: "Write the bundle next to the file", Command: "shr send report.pdf --output-bundle report.shr"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := a.commandFlags("send")
			flagSet.StringVar(&outputBundle, "output-bundle", "", "write the bundle to `PATH` instead of uploading it")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: shr send FILE [flags]")
			}
			return a.send(ctx, args[0], outputBundle)
		},
	}
}

func (a *app) send(ctx context.Context, path, outputBundle string) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	logger := a.logger("send")

	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: file not found: %s", chunk.ErrInvalidInput, path)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", chunk.ErrIO, err)
	}
	defer file.Close()
	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("%w: %w", chunk.ErrIO, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", chunk.ErrInvalidInput, path)
	}

	options, err := cfg.CompressorOptions()
	if err != nil {
		return err
	}
	options.Logger = logger
	compressor, err := chunk.NewCompressor(options)
	if err != nil {
		return err
	}

	cli.Progress(a.stdout, "Compressing %s (%s)", path, humanize.IBytes(uint64(info.Size())))
	bar := cli.NewProgressBar(a.stdout, "Compressing", info.Size())
	set, err := compressor.Compress(ctx, bar.Reader(file))
	bar.Finish()
	if err != nil {
		return err
	}
	cli.Success(a.stdout, "Compressed to %d chunks (%.1f%% of original size)", set.Len(), set.Ratio()*100)

	if outputBundle != "" {
		return a.writeBundle(outputBundle, set)
	}

	client, err := a.transport(cfg, logger)
	if err != nil {
		return err
	}
	cli.Progress(a.stdout, "Uploading to %s", cfg.Fallback.Endpoint)
	downloadURL, err := client.Upload(ctx, bundle.Encode(set.Chunks))
	if err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	cli.Success(a.stdout, "Upload complete")
	fmt.Fprintln(a.stdout, "Share this URL:")
	cli.Emphasis(a.stdout, downloadURL)
	return nil
}

func (a *app) writeBundle(path string, set *chunk.ChunkSet) error {
	output, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: %w", chunk.ErrIO, err)
	}
	written, err := bundle.Write(output, set.Chunks)
	if closeErr := output.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("%w: %w", chunk.ErrIO, closeErr)
	}
	if err != nil {
		os.Remove(path)
		return err
	}
	cli.Success(a.stdout, "Bundle written to %s (%s)", path, humanize.IBytes(uint64(written)))
	return nil
}

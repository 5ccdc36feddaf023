// Copyright 2026 The Shrlink Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/shrlink/shrlink/cmd/shr/cli"
	"github.com/shrlink/shrlink/lib/bundle"
	"github.com/shrlink/shrlink/lib/chunk"
	"github.com/shrlink/shrlink/lib/httptransport"
)

func (a *app) inspectCommand() *cli.Command {
	var verify bool
	return &cli.Command{
		Name:    "inspect",
		Summary: "Show a bundle's header and chunk table",
		Description: `Print the header, per-chunk records, and size totals of a bundle read
from a local path or a relay URL. With --verify every chunk is also
decompressed and checked against its digest.`,
		Usage: "shr inspect URL|PATH [flags]",
		Flags: func() *pflag.FlagSet {
			flagSet := a.commandFlags("inspect")
			flagSet.BoolVar(&verify, "verify", false, "decompress every chunk and check its digest")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: shr inspect URL|PATH [flags]")
			}
			return a.inspect(ctx, args[0], verify)
		},
	}
}

func (a *app) inspect(ctx context.Context, source string, verify bool) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	logger := a.logger("inspect")

	var data []byte
	if httptransport.IsHTTPURL(source) {
		client, err := a.transport(cfg, logger)
		if err != nil {
			return err
		}
		if data, err = client.Download(ctx, source); err != nil {
			return err
		}
	} else if data, err = a.readLocalBundle(source); err != nil {
		return err
	}

	header, err := bundle.ReadHeader(data)
	if err != nil {
		return err
	}
	chunks, err := bundle.Decode(data)
	if err != nil {
		return err
	}

	printHeader(a.stdout, source, len(data), header)
	if !verify {
		return nil
	}

	options, err := cfg.CompressorOptions()
	if err != nil {
		return err
	}
	written, err := chunk.Reassemble(ctx, chunks, io.Discard, options.Workers)
	if err != nil {
		return err
	}
	cli.Success(a.stdout, "All %d chunks verified (%s)", len(chunks), humanize.IBytes(uint64(written)))
	return nil
}

func printHeader(w io.Writer, source string, size int, header *bundle.Header) {
	fmt.Fprintf(w, "Bundle:          %s\n", source)
	fmt.Fprintf(w, "Version:         %d\n", header.Version)
	fmt.Fprintf(w, "Bundle size:     %s (%d bytes)\n", humanize.IBytes(uint64(size)), size)
	fmt.Fprintf(w, "Chunks:          %d\n", header.ChunkCount)
	fmt.Fprintf(w, "Original size:   %s (%d bytes)\n", humanize.IBytes(header.TotalOriginalSize), header.TotalOriginalSize)
	fmt.Fprintf(w, "Compressed size: %s (%d bytes)\n", humanize.IBytes(header.TotalCompressedSize), header.TotalCompressedSize)
	if header.TotalOriginalSize > 0 {
		fmt.Fprintf(w, "Ratio:           %.1f%%\n",
			float64(header.TotalCompressedSize)/float64(header.TotalOriginalSize)*100)
	}
	if len(header.Records) == 0 {
		return
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 2, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "INDEX\tORIGINAL\tCOMPRESSED\t  DIGEST\n")
	for _, record := range header.Records {
		fmt.Fprintf(tw, "%d\t%d\t%d\t  %s\n", record.Index, record.OriginalSize, record.CompressedSize, record.Digest)
	}
	tw.Flush()
}

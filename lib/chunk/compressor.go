// Copyright 2026 The Shrlink Authors
// SPDX-License-Identifier: Apache-2.0

package chunk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Options configures a [Compressor]. Start from [DefaultOptions] and
// override individual fields.
type Options struct {
	// BlockSize is the maximum plaintext length of one chunk. Must be
	// in (0, MaxBlockSize].
	BlockSize int

	// Workers is the number of blocks compressed concurrently. Must be
	// at least 1. The output does not depend on this value.
	Workers int

	// Algorithm selects the payload codec.
	Algorithm Algorithm

	// Level tunes the codec. For LZ4, 0 is the fast compressor and 1-9
	// select LZ4-HC depth. For zstd, 0 is the library default and 1-22
	// follow the zstd level scale.
	Level int

	// Logger receives one debug record per compression batch. Nil
	// discards.
	Logger *slog.Logger
}

// DefaultOptions returns 4 MiB LZ4 blocks compressed on one worker per
// CPU.
func DefaultOptions() Options {
	return Options{
		BlockSize: DefaultBlockSize,
		Workers:   runtime.NumCPU(),
		Algorithm: LZ4,
		Level:     0,
	}
}

// Compressor chunks, hashes, and compresses byte streams. A Compressor
// holds only validated settings and codec state that is safe for
// concurrent use; every [Compressor.Compress] call builds and tears
// down its own worker pool.
type Compressor struct {
	options Options
	codec   *blockCodec
	logger  *slog.Logger
}

// NewCompressor validates options and prepares the codec. A worker
// count below 1 means no pool can be built, so it fails here with
// [ErrCompression] before any input is touched.
func NewCompressor(options Options) (*Compressor, error) {
	if err := validateBlockSize(options.BlockSize); err != nil {
		return nil, err
	}
	if options.Workers < 1 {
		return nil, fmt.Errorf("%w: worker pool needs at least 1 worker, got %d", ErrCompression, options.Workers)
	}
	codec, err := newBlockCodec(options.Algorithm, options.Level, options.Workers)
	if err != nil {
		return nil, err
	}

	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Compressor{options: options, codec: codec, logger: logger}, nil
}

// Options returns the settings the compressor was built with.
func (c *Compressor) Options() Options {
	return c.options
}

// Compress reads r to exhaustion and returns its chunks in index order.
//
// Blocks are read sequentially and dispatched as they are read; at most
// Workers blocks are compressed at once, and reading pauses while every
// worker is busy. Each block's result lands in a slot reserved for its
// index before dispatch, so completion order never affects the output.
//
// The batch is atomic: the first read, compression, or context error
// abandons the remaining blocks and Compress returns that error with no
// ChunkSet. Individual in-flight blocks are not interrupted.
func (c *Compressor) Compress(ctx context.Context, r io.Reader) (*ChunkSet, error) {
	chunker, err := NewChunker(r, c.options.BlockSize)
	if err != nil {
		return nil, err
	}

	group, groupContext := errgroup.WithContext(ctx)
	group.SetLimit(c.options.Workers)

	var slots []*Chunk
	var readErr error
	for groupContext.Err() == nil {
		block, err := chunker.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			readErr = err
			break
		}

		index := uint32(len(slots))
		slot := new(Chunk)
		slots = append(slots, slot)

		group.Go(func() error {
			if err := groupContext.Err(); err != nil {
				return err
			}
			compressed, err := c.CompressBlock(index, block)
			if err != nil {
				return err
			}
			*slot = compressed
			return nil
		})
	}

	waitErr := group.Wait()
	if readErr != nil {
		return nil, readErr
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("compression cancelled after %d blocks: %w", len(slots), err)
	}
	if waitErr != nil {
		return nil, waitErr
	}

	chunks := make([]Chunk, len(slots))
	for i, slot := range slots {
		chunks[i] = *slot
	}
	set := NewChunkSet(chunks)

	c.logger.Debug("compressed stream",
		"chunks", set.Len(),
		"original_bytes", set.TotalOriginalSize,
		"compressed_bytes", set.TotalCompressedSize,
		"algorithm", c.options.Algorithm.String(),
		"workers", c.options.Workers,
	)
	return set, nil
}

// CompressBlock hashes and compresses one block synchronously. The
// digest is taken over data before compression.
func (c *Compressor) CompressBlock(index uint32, data []byte) (Chunk, error) {
	if len(data) > MaxBlockSize {
		return Chunk{}, fmt.Errorf("%w: block %d is %d bytes, above the %d byte limit",
			ErrInvalidInput, index, len(data), MaxBlockSize)
	}

	digest := HashBlock(data)
	compressed, err := c.codec.compress(data)
	if err != nil {
		return Chunk{}, fmt.Errorf("%w: block %d: %w", ErrCompression, index, err)
	}

	return Chunk{
		Index:        index,
		Data:         compressed,
		Digest:       digest,
		OriginalSize: uint32(len(data)),
	}, nil
}

// Compress chunks r with LZ4 at the given block size and worker count.
// It is shorthand for building a [Compressor] from [DefaultOptions].
func Compress(ctx context.Context, r io.Reader, blockSize, workers int) (*ChunkSet, error) {
	options := DefaultOptions()
	options.BlockSize = blockSize
	options.Workers = workers
	compressor, err := NewCompressor(options)
	if err != nil {
		return nil, err
	}
	return compressor.Compress(ctx, r)
}

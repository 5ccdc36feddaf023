// Copyright 2026 The Shrlink Authors
// SPDX-License-Identifier: Apache-2.0

package chunk

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"
)

// Decompress decodes a chunk's payload and verifies that the plaintext
// hashes to c.Digest. On a mismatch it returns a *HashMismatchError and
// no data; decoded bytes that fail verification never leave this
// function.
func Decompress(c Chunk) ([]byte, error) {
	plaintext, err := decodePayload(c.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: chunk %d: %w", ErrCompression, c.Index, err)
	}

	actual := HashBlock(plaintext)
	if actual != c.Digest {
		return nil, &HashMismatchError{
			Index:    c.Index,
			Expected: c.Digest,
			Actual:   actual,
		}
	}
	return plaintext, nil
}

// Reassemble verifies and decompresses chunks and writes the plaintext
// to w in index order, returning the number of bytes written.
//
// chunks must be sorted with indices exactly 0..N-1 (lib/bundle.Decode
// guarantees the sort; gaps and duplicates are rejected here with
// [ErrMalformedBundle]). Chunks are decompressed in windows of workers
// chunks on a pool scoped to this call, so at most workers plaintext
// blocks are held in memory at once. The first failure stops the run;
// bytes already written to w stay written.
func Reassemble(ctx context.Context, chunks []Chunk, w io.Writer, workers int) (int64, error) {
	if workers < 1 {
		return 0, fmt.Errorf("%w: worker pool needs at least 1 worker, got %d", ErrCompression, workers)
	}
	for position, c := range chunks {
		if c.Index != uint32(position) {
			return 0, fmt.Errorf("%w: chunk at position %d has index %d", ErrMalformedBundle, position, c.Index)
		}
	}

	var written int64
	for start := 0; start < len(chunks); start += workers {
		end := min(start+workers, len(chunks))
		window := chunks[start:end]
		plaintexts := make([][]byte, len(window))

		group, groupContext := errgroup.WithContext(ctx)
		for slot, c := range window {
			group.Go(func() error {
				if err := groupContext.Err(); err != nil {
					return err
				}
				plaintext, err := Decompress(c)
				if err != nil {
					return err
				}
				plaintexts[slot] = plaintext
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return written, err
		}

		for slot, plaintext := range plaintexts {
			n, err := w.Write(plaintext)
			written += int64(n)
			if err != nil {
				return written, fmt.Errorf("%w: writing chunk %d: %w", ErrIO, window[slot].Index, err)
			}
		}
	}
	return written, nil
}

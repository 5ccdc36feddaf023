// Copyright 2026 The Shrlink Authors
// SPDX-License-Identifier: Apache-2.0

package chunk

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
)

// Chunking limits.
const (
	// DefaultBlockSize is the block size used when the caller does not
	// configure one.
	DefaultBlockSize = 4 * 1024 * 1024 // 4 MiB

	// MaxBlockSize bounds the block size. Every size field on the wire
	// is a u32, and the LZ4 length prefix must never collide with the
	// zstd frame magic (0xFD2FB528 little-endian), so blocks stay well
	// below 4 GiB.
	MaxBlockSize = 1 << 30 // 1 GiB
)

// Chunker splits a reader into fixed-size blocks. Create one with
// [NewChunker] and call [Chunker.Next] until it returns io.EOF.
//
// Each step fills a fresh buffer of up to blockSize bytes. A step that
// reads nothing ends the sequence without a block. A step that reads
// fewer than blockSize bytes produces the final block, and the reader
// is not consulted again. A source whose length is an exact multiple of
// blockSize therefore ends on the step after the last full block,
// which reads nothing and emits nothing.
type Chunker struct {
	reader    io.Reader
	blockSize int
	count     uint32
	done      bool
}

// NewChunker creates a chunker over r. blockSize must be in
// (0, MaxBlockSize].
func NewChunker(r io.Reader, blockSize int) (*Chunker, error) {
	if err := validateBlockSize(blockSize); err != nil {
		return nil, err
	}
	return &Chunker{reader: r, blockSize: blockSize}, nil
}

// Next returns the next block. The returned slice is owned by the
// caller; the chunker never touches it again. Returns io.EOF once the
// source is exhausted. Read failures are wrapped in [ErrIO] and end the
// sequence.
func (c *Chunker) Next() ([]byte, error) {
	if c.done {
		return nil, io.EOF
	}
	if c.count == math.MaxUint32 {
		c.done = true
		return nil, fmt.Errorf("%w: source exceeds %d blocks", ErrInvalidInput, uint32(math.MaxUint32))
	}

	block := make([]byte, c.blockSize)
	read, err := io.ReadFull(c.reader, block)
	switch {
	case err == nil:
		c.count++
		return block, nil

	case errors.Is(err, io.EOF):
		// Nothing read: the previous block (if any) was the last.
		c.done = true
		return nil, io.EOF

	case errors.Is(err, io.ErrUnexpectedEOF):
		// Short read: this is the final block. Copy it out so the
		// caller does not pin a full blockSize buffer.
		c.done = true
		c.count++
		return bytes.Clone(block[:read]), nil

	default:
		c.done = true
		return nil, fmt.Errorf("%w: reading block %d: %w", ErrIO, c.count, err)
	}
}

// Count returns the number of blocks returned so far.
func (c *Chunker) Count() uint32 {
	return c.count
}

func validateBlockSize(blockSize int) error {
	if blockSize <= 0 {
		return fmt.Errorf("%w: block size must be positive, got %d", ErrInvalidInput, blockSize)
	}
	if blockSize > MaxBlockSize {
		return fmt.Errorf("%w: block size %d exceeds maximum %d", ErrInvalidInput, blockSize, MaxBlockSize)
	}
	return nil
}

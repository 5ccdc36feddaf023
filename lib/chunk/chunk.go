// Copyright 2026 The Shrlink Authors
// SPDX-License-Identifier: Apache-2.0

package chunk

// Chunk is one compressed block of a source stream. Chunks are created
// by [Compressor] and are not modified afterwards.
type Chunk struct {
	// Index is the zero-based position of the block in its source
	// stream. A complete chunk list carries indices 0..N-1 exactly
	// once each.
	Index uint32

	// Data is the compressed payload. The payload records its own
	// uncompressed length; see [Decompress].
	Data []byte

	// Digest is the BLAKE3-256 hash of the uncompressed block.
	Digest Digest

	// OriginalSize is the uncompressed block length. It is
	// informational: corruption is detected by Digest alone.
	OriginalSize uint32
}

// ChunkSet is the result of compressing one source: its chunks in index
// order plus size totals.
type ChunkSet struct {
	Chunks []Chunk

	// TotalOriginalSize is the sum of OriginalSize over Chunks.
	TotalOriginalSize uint64

	// TotalCompressedSize is the sum of len(Data) over Chunks.
	TotalCompressedSize uint64
}

// NewChunkSet wraps chunks in a ChunkSet and computes the size totals.
// The slice is used as-is; callers that need index order must sort it
// first (lib/bundle.Decode returns sorted chunks).
func NewChunkSet(chunks []Chunk) *ChunkSet {
	set := &ChunkSet{Chunks: chunks}
	for _, c := range chunks {
		set.TotalOriginalSize += uint64(c.OriginalSize)
		set.TotalCompressedSize += uint64(len(c.Data))
	}
	return set
}

// Len returns the number of chunks in the set.
func (s *ChunkSet) Len() int {
	return len(s.Chunks)
}

// Ratio returns compressed size as a fraction of original size, or 0
// for an empty source.
func (s *ChunkSet) Ratio() float64 {
	if s.TotalOriginalSize == 0 {
		return 0
	}
	return float64(s.TotalCompressedSize) / float64(s.TotalOriginalSize)
}

// Copyright 2026 The Shrlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package chunk implements the chunking and compression engine that
// sits under every shrlink transfer. It turns a byte stream into an
// ordered list of independently compressed, independently verifiable
// chunks, and turns those chunks back into the original bytes.
//
// The package is organized in layers:
//
//   - Chunking: [Chunker] splits a reader into fixed-size blocks
//     ([DefaultBlockSize] is 4 MiB). Every block is full-sized except
//     the last; an empty source produces no blocks at all.
//
//   - Hashing: every block is hashed with BLAKE3-256 before
//     compression. The [Digest] of the plaintext is the only integrity
//     anchor a chunk carries.
//
//   - Compression: [Compressor] compresses blocks on a bounded worker
//     pool scoped to a single [Compressor.Compress] call. Results are
//     gathered into per-index slots, so the returned [ChunkSet] is
//     ordered by index no matter which worker finishes first. Payloads
//     are self-describing (LZ4 with a length prefix, or a zstd frame),
//     so decompression needs no side-channel size.
//
//   - Verification: [Decompress] decodes one chunk and refuses to
//     return bytes whose digest does not match. [Reassemble] does the
//     same for a whole sorted list and writes plaintext in index order.
//
// Errors are classified by sentinel: [ErrIO], [ErrCompression],
// [ErrHashMismatch], [ErrMalformedBundle], and [ErrInvalidInput].
// [IsCorrupt] separates "the data is damaged" from "the operation could
// not proceed". Nothing in this package retries.
//
// The wire format that carries chunks between machines lives in
// lib/bundle. This package has no other shrlink dependencies.
package chunk

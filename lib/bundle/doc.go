// Copyright 2026 The Shrlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package bundle serializes chunk lists into the shrlink bundle format
// and parses them back.
//
// A bundle is a single self-describing byte string, little-endian
// throughout:
//
//	offset  size    field
//	0       3       magic "SHR"
//	3       1       version (1)
//	4       4       chunk count N
//	8       N*44    metadata records, one per chunk:
//	                  u32 index
//	                  u32 original (uncompressed) size
//	                  u32 compressed size
//	                  [32]byte BLAKE3-256 digest of the uncompressed block
//	...     ...     N compressed payloads, concatenated in record order
//
// The metadata table precedes all payload bytes, so a reader can learn
// the shape of a bundle (see [ReadHeader]) without touching payloads.
//
// [Decode] is fail-closed: any structural problem, including a table
// or payload that runs past the end of the input or bytes left over
// after the last payload, yields an error matching
// chunk.ErrMalformedBundle and no chunks. Payload integrity is not
// checked here; chunk.Decompress verifies digests.
package bundle

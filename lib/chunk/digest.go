// Copyright 2026 The Shrlink Authors
// SPDX-License-Identifier: Apache-2.0

package chunk

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// DigestSize is the byte length of a chunk digest.
const DigestSize = 32

// Digest is a BLAKE3-256 hash of a block's uncompressed bytes.
type Digest [DigestSize]byte

// HashBlock computes the digest of plaintext block data. Digests are
// always computed on uncompressed bytes, so the same block hashes the
// same under every codec and level.
func HashBlock(data []byte) Digest {
	return blake3.Sum256(data)
}

// String returns the hex encoding of the digest.
func (d Digest) String() string {
	return FormatDigest(d)
}

// FormatDigest returns the hex-encoded string representation of a
// digest. This is the format used in error messages, logs, and CLI
// output.
func FormatDigest(d Digest) string {
	return hex.EncodeToString(d[:])
}

// ParseDigest parses a 64-character hex string into a Digest.
func ParseDigest(hexString string) (Digest, error) {
	var digest Digest
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return digest, fmt.Errorf("parsing chunk digest: %w", err)
	}
	if len(decoded) != DigestSize {
		return digest, fmt.Errorf("chunk digest is %d bytes, want %d", len(decoded), DigestSize)
	}
	copy(digest[:], decoded)
	return digest, nil
}

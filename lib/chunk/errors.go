// Copyright 2026 The Shrlink Authors
// SPDX-License-Identifier: Apache-2.0

package chunk

import (
	"errors"
	"fmt"
)

// Error classes. Every error returned by this package (and by
// lib/bundle) matches exactly one of these with errors.Is.
var (
	// ErrIO covers failures reading the source or writing output.
	ErrIO = errors.New("chunk: i/o failure")

	// ErrCompression covers worker pool construction and codec
	// failures in either direction.
	ErrCompression = errors.New("chunk: compression failure")

	// ErrHashMismatch is matched by *HashMismatchError.
	ErrHashMismatch = errors.New("chunk: hash mismatch")

	// ErrMalformedBundle covers structural damage: bad magic or
	// version, truncated metadata or payloads, broken index sequences.
	ErrMalformedBundle = errors.New("chunk: malformed bundle")

	// ErrInvalidInput covers caller mistakes such as a non-positive
	// block size.
	ErrInvalidInput = errors.New("chunk: invalid input")
)

// HashMismatchError reports that a chunk decompressed cleanly but its
// plaintext does not hash to the digest the chunk carries.
type HashMismatchError struct {
	Index    uint32
	Expected Digest
	Actual   Digest
}

func (e *HashMismatchError) Error() string {
	return fmt.Sprintf("chunk %d hash mismatch: expected %s, got %s",
		e.Index, FormatDigest(e.Expected), FormatDigest(e.Actual))
}

// Is lets errors.Is(err, ErrHashMismatch) match.
func (e *HashMismatchError) Is(target error) bool {
	return target == ErrHashMismatch
}

// IsCorrupt reports whether err means the data itself is damaged
// (hash mismatch or malformed bundle), as opposed to an operation that
// could not proceed. Transports use this to decide whether fetching
// the bundle again can help.
func IsCorrupt(err error) bool {
	return errors.Is(err, ErrHashMismatch) || errors.Is(err, ErrMalformedBundle)
}

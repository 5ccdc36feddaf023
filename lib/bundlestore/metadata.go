// Copyright 2026 The Shrlink Authors
// SPDX-License-Identifier: Apache-2.0

package bundlestore

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/shrlink/shrlink/lib/chunk"
)

// Metadata describes a stored bundle. It is persisted as the CBOR
// sidecar next to the bundle file.
type Metadata struct {
	// Name is the bundle's store name (without the .shr extension).
	Name string `cbor:"name"`

	// Size is the bundle's length in bytes.
	Size int64 `cbor:"size"`

	// ChunkCount is the number of chunks in the bundle header.
	ChunkCount uint32 `cbor:"chunk_count"`

	// OriginalSize is the total uncompressed size the bundle's
	// metadata table declares.
	OriginalSize uint64 `cbor:"original_size"`

	// Digest is the BLAKE3-256 hash of the whole bundle file.
	Digest chunk.Digest `cbor:"digest"`

	// StoredAt is when the bundle was written. Cleanup compares it
	// against the store clock.
	StoredAt time.Time `cbor:"stored_at"`
}

// FileName returns the name the bundle is served under.
func (m Metadata) FileName() string {
	return m.Name + BundleExtension
}

// sidecarEncoder produces Core Deterministic Encoding (RFC 8949 §4.2):
// the same metadata always encodes to the same bytes. Times are kept as
// RFC 3339 strings with nanoseconds; the core profile's integer epoch
// seconds would truncate StoredAt.
var sidecarEncoder cbor.EncMode

// sidecarDecoder ignores unknown fields so that older binaries can read
// sidecars written by newer ones.
var sidecarDecoder cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	sidecarEncoder, err = encOptions.EncMode()
	if err != nil {
		panic("bundlestore: CBOR encoder initialization failed: " + err.Error())
	}

	sidecarDecoder, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("bundlestore: CBOR decoder initialization failed: " + err.Error())
	}
}

func encodeMetadata(metadata Metadata) ([]byte, error) {
	data, err := sidecarEncoder.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("encoding metadata for %s: %w", metadata.Name, err)
	}
	return data, nil
}

func decodeMetadata(data []byte) (Metadata, error) {
	var metadata Metadata
	if err := sidecarDecoder.Unmarshal(data, &metadata); err != nil {
		return Metadata{}, fmt.Errorf("decoding metadata: %w", err)
	}
	return metadata, nil
}

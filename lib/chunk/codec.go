// Copyright 2026 The Shrlink Authors
// SPDX-License-Identifier: Apache-2.0

package chunk

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm identifies the codec used to compress chunk payloads.
// Payloads are self-describing, so the algorithm is a compression-side
// choice only: [Decompress] recognizes either format on its own.
type Algorithm uint8

const (
	// LZ4 stores a u32 little-endian uncompressed length followed by
	// one LZ4 block. Fast default for mixed or unknown content.
	LZ4 Algorithm = 1

	// Zstd stores one zstd frame with the content size recorded in the
	// frame header. Better ratios for text-like content.
	Zstd Algorithm = 2
)

// String returns the configuration name of an algorithm.
func (a Algorithm) String() string {
	switch a {
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(a))
	}
}

// ParseAlgorithm parses an algorithm from its configuration name.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch name {
	case "lz4":
		return LZ4, nil
	case "zstd":
		return Zstd, nil
	default:
		return 0, fmt.Errorf("%w: unknown compression algorithm %q", ErrInvalidInput, name)
	}
}

// lz4SizePrefix is the byte length of the uncompressed-length header
// in front of every LZ4 payload.
const lz4SizePrefix = 4

// An LZ4 block expands by at most lz4MaxExpansion per compressed byte,
// plus a few bytes of trailing literals.
const (
	lz4MaxExpansion   = 255
	lz4ExpansionSlack = 16
)

// zstdMagic is the first four bytes of every zstd frame.
var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// lz4Levels maps levels 1-9 to LZ4-HC search depths. Level 0 selects
// the fast compressor.
var lz4Levels = [...]lz4.CompressionLevel{
	lz4.Level1, lz4.Level2, lz4.Level3, lz4.Level4, lz4.Level5,
	lz4.Level6, lz4.Level7, lz4.Level8, lz4.Level9,
}

// zstdDecoder is shared by all decompression calls. DecodeAll is safe
// for concurrent use and the decoder holds no per-stream state.
var zstdDecoder *zstd.Decoder

func init() {
	var err error
	zstdDecoder, err = zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(0),
		zstd.WithDecoderMaxMemory(MaxBlockSize),
	)
	if err != nil {
		panic("chunk: zstd decoder initialization failed: " + err.Error())
	}
}

// blockCodec compresses blocks with one algorithm at one level. It is
// safe for concurrent use by the workers of a single compression call.
type blockCodec struct {
	algorithm Algorithm
	lz4Level  lz4.CompressionLevel
	encoder   *zstd.Encoder
}

func newBlockCodec(algorithm Algorithm, level, workers int) (*blockCodec, error) {
	codec := &blockCodec{algorithm: algorithm}
	switch algorithm {
	case LZ4:
		if level < 0 || level > len(lz4Levels) {
			return nil, fmt.Errorf("%w: lz4 level must be 0-%d, got %d", ErrInvalidInput, len(lz4Levels), level)
		}
		if level > 0 {
			codec.lz4Level = lz4Levels[level-1]
		}

	case Zstd:
		if level < 0 || level > 22 {
			return nil, fmt.Errorf("%w: zstd level must be 0-22, got %d", ErrInvalidInput, level)
		}
		encoderLevel := zstd.SpeedDefault
		if level > 0 {
			encoderLevel = zstd.EncoderLevelFromZstd(level)
		}
		encoder, err := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(encoderLevel),
			zstd.WithEncoderConcurrency(max(workers, 1)),
			zstd.WithZeroFrames(true),
		)
		if err != nil {
			return nil, fmt.Errorf("%w: creating zstd encoder: %w", ErrCompression, err)
		}
		codec.encoder = encoder

	default:
		return nil, fmt.Errorf("%w: unsupported compression algorithm %s", ErrInvalidInput, algorithm)
	}
	return codec, nil
}

// compress returns the self-describing payload for data.
func (c *blockCodec) compress(data []byte) ([]byte, error) {
	switch c.algorithm {
	case LZ4:
		return compressLZ4(data, c.lz4Level)
	case Zstd:
		return c.encoder.EncodeAll(data, make([]byte, 0, len(data)/2+64)), nil
	default:
		return nil, fmt.Errorf("unsupported compression algorithm %s", c.algorithm)
	}
}

func compressLZ4(data []byte, level lz4.CompressionLevel) ([]byte, error) {
	destination := make([]byte, lz4SizePrefix+lz4.CompressBlockBound(len(data)))
	binary.LittleEndian.PutUint32(destination, uint32(len(data)))
	if len(data) == 0 {
		return destination[:lz4SizePrefix], nil
	}

	// With a destination of CompressBlockBound bytes the block
	// compressors always emit a block, falling back to literals for
	// incompressible input, so written == 0 means something broke.
	var written int
	var err error
	if level == lz4.Fast {
		written, err = lz4.CompressBlock(data, destination[lz4SizePrefix:], nil)
	} else {
		written, err = lz4.CompressBlockHC(data, destination[lz4SizePrefix:], level, nil, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if written == 0 {
		return nil, fmt.Errorf("lz4 compress: no output for %d input bytes", len(data))
	}
	return destination[:lz4SizePrefix+written], nil
}

// decodePayload decompresses a payload produced by either codec.
func decodePayload(payload []byte) ([]byte, error) {
	if len(payload) >= len(zstdMagic) && bytes.Equal(payload[:len(zstdMagic)], zstdMagic) {
		return decompressZstd(payload)
	}
	return decompressLZ4(payload)
}

func decompressLZ4(payload []byte) ([]byte, error) {
	if len(payload) < lz4SizePrefix {
		return nil, fmt.Errorf("lz4 payload is %d bytes, shorter than its size prefix", len(payload))
	}
	size := binary.LittleEndian.Uint32(payload[:lz4SizePrefix])
	if size > MaxBlockSize {
		return nil, fmt.Errorf("lz4 payload claims %d bytes, above the %d byte block limit", size, MaxBlockSize)
	}
	block := payload[lz4SizePrefix:]
	if size == 0 {
		if len(block) != 0 {
			return nil, fmt.Errorf("lz4 payload for an empty block carries %d extra bytes", len(block))
		}
		return []byte{}, nil
	}
	// Every compressed byte encodes at most 255 output bytes, so a
	// larger claim is corrupt; reject it before allocating.
	if limit := lz4MaxExpansion*uint64(len(block)) + lz4ExpansionSlack; uint64(size) > limit {
		return nil, fmt.Errorf("lz4 payload claims %d bytes, more than %d compressed bytes can hold", size, len(block))
	}

	destination := make([]byte, size)
	read, err := lz4.UncompressBlock(block, destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != int(size) {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, size)
	}
	return destination, nil
}

func decompressZstd(payload []byte) ([]byte, error) {
	result, err := zstdDecoder.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	return result, nil
}

// Copyright 2026 The Shrlink Authors
// SPDX-License-Identifier: Apache-2.0

package bundle

import (
	"bytes"
	"cmp"
	"encoding/binary"
	"fmt"
	"io"
	"slices"

	"github.com/shrlink/shrlink/lib/chunk"
)

// Format constants.
const (
	// Version is the only bundle version this package reads or writes.
	Version = 1

	// HeaderSize is the fixed prefix: 3-byte magic, version byte,
	// u32 chunk count.
	HeaderSize = 8

	// RecordSize is the size of one metadata record: u32 index, u32
	// original size, u32 compressed size, 32-byte digest.
	RecordSize = 12 + chunk.DigestSize
)

// magic is the bundle file signature.
var magic = [3]byte{'S', 'H', 'R'}

// Record is one entry of the metadata table.
type Record struct {
	Index          uint32
	OriginalSize   uint32
	CompressedSize uint32
	Digest         chunk.Digest
}

// Header is the parsed header and metadata table of a bundle. Records
// are in wire order, which is not necessarily index order.
type Header struct {
	Version    uint8
	ChunkCount uint32
	Records    []Record

	// TotalOriginalSize is the sum of OriginalSize over Records.
	TotalOriginalSize uint64

	// TotalCompressedSize is the sum of CompressedSize over Records.
	TotalCompressedSize uint64
}

// TableSize returns the byte length of the header plus the metadata
// table, which is the offset of the first payload.
func (h *Header) TableSize() uint64 {
	return HeaderSize + uint64(h.ChunkCount)*RecordSize
}

// EncodedSize returns the exact length of a well-formed bundle with
// this header.
func (h *Header) EncodedSize() uint64 {
	return h.TableSize() + h.TotalCompressedSize
}

// EncodedSize returns the exact length of Encode(chunks).
func EncodedSize(chunks []chunk.Chunk) int {
	size := HeaderSize + len(chunks)*RecordSize
	for _, c := range chunks {
		size += len(c.Data)
	}
	return size
}

// Encode serializes chunks in the order supplied. Chunks are not
// re-sorted; [Decode] sorts by index on the way back in.
func Encode(chunks []chunk.Chunk) []byte {
	buffer := make([]byte, 0, EncodedSize(chunks))
	buffer = appendTable(buffer, chunks)
	for _, c := range chunks {
		buffer = append(buffer, c.Data...)
	}
	return buffer
}

// Write streams the encoding of chunks to w without materializing the
// whole bundle. It returns the number of bytes written.
func Write(w io.Writer, chunks []chunk.Chunk) (int64, error) {
	table := appendTable(make([]byte, 0, HeaderSize+len(chunks)*RecordSize), chunks)
	n, err := w.Write(table)
	written := int64(n)
	if err != nil {
		return written, fmt.Errorf("%w: writing bundle table: %w", chunk.ErrIO, err)
	}
	for _, c := range chunks {
		n, err := w.Write(c.Data)
		written += int64(n)
		if err != nil {
			return written, fmt.Errorf("%w: writing chunk %d payload: %w", chunk.ErrIO, c.Index, err)
		}
	}
	return written, nil
}

func appendTable(buffer []byte, chunks []chunk.Chunk) []byte {
	buffer = append(buffer, magic[:]...)
	buffer = append(buffer, Version)
	buffer = binary.LittleEndian.AppendUint32(buffer, uint32(len(chunks)))
	for _, c := range chunks {
		buffer = binary.LittleEndian.AppendUint32(buffer, c.Index)
		buffer = binary.LittleEndian.AppendUint32(buffer, c.OriginalSize)
		buffer = binary.LittleEndian.AppendUint32(buffer, uint32(len(c.Data)))
		buffer = append(buffer, c.Digest[:]...)
	}
	return buffer
}

// ReadHeader parses and validates the header and metadata table of
// buf. Payload bytes are not examined, so buf may be a prefix of a
// bundle as long as it covers the whole table.
func ReadHeader(buf []byte) (*Header, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is shorter than the %d byte header",
			chunk.ErrMalformedBundle, len(buf), HeaderSize)
	}
	if !bytes.Equal(buf[:len(magic)], magic[:]) {
		return nil, fmt.Errorf("%w: not a shrlink bundle (invalid magic bytes %x)",
			chunk.ErrMalformedBundle, buf[:len(magic)])
	}
	if version := buf[3]; version != Version {
		return nil, fmt.Errorf("%w: bundle version %d is not supported (this code supports version %d)",
			chunk.ErrMalformedBundle, version, Version)
	}

	header := &Header{
		Version:    buf[3],
		ChunkCount: binary.LittleEndian.Uint32(buf[4:8]),
	}

	// Computed in uint64: a hostile count must not wrap around and
	// pass the length check.
	if tableSize := header.TableSize(); uint64(len(buf)) < tableSize {
		return nil, fmt.Errorf("%w: metadata table for %d chunks needs %d bytes, bundle has %d",
			chunk.ErrMalformedBundle, header.ChunkCount, tableSize, len(buf))
	}

	header.Records = make([]Record, header.ChunkCount)
	offset := HeaderSize
	for i := range header.Records {
		entry := buf[offset : offset+RecordSize]
		record := Record{
			Index:          binary.LittleEndian.Uint32(entry[0:4]),
			OriginalSize:   binary.LittleEndian.Uint32(entry[4:8]),
			CompressedSize: binary.LittleEndian.Uint32(entry[8:12]),
		}
		copy(record.Digest[:], entry[12:])
		header.Records[i] = record
		header.TotalOriginalSize += uint64(record.OriginalSize)
		header.TotalCompressedSize += uint64(record.CompressedSize)
		offset += RecordSize
	}
	return header, nil
}

// Decode parses a complete bundle and returns its chunks sorted by
// index. Each chunk owns a copy of its payload; buf may be reused once
// Decode returns.
//
// Index order is restored with a stable sort, so records that share an
// index keep their wire order. Decode does not reject gaps or
// duplicates; chunk.Reassemble does.
func Decode(buf []byte) ([]chunk.Chunk, error) {
	header, err := ReadHeader(buf)
	if err != nil {
		return nil, err
	}

	// Every payload boundary is checked against the remaining input
	// before slicing. The running offset is a uint64 so that the sum of
	// u32 sizes cannot wrap.
	payloadOffset := header.TableSize()
	remaining := uint64(len(buf))
	chunks := make([]chunk.Chunk, len(header.Records))
	for i, record := range header.Records {
		end := payloadOffset + uint64(record.CompressedSize)
		if end > remaining {
			return nil, fmt.Errorf("%w: chunk %d payload needs bytes %d-%d, bundle has %d",
				chunk.ErrMalformedBundle, record.Index, payloadOffset, end, remaining)
		}
		chunks[i] = chunk.Chunk{
			Index:        record.Index,
			Data:         bytes.Clone(buf[payloadOffset:end]),
			Digest:       record.Digest,
			OriginalSize: record.OriginalSize,
		}
		payloadOffset = end
	}
	if payloadOffset != remaining {
		return nil, fmt.Errorf("%w: %d trailing bytes after the last payload",
			chunk.ErrMalformedBundle, remaining-payloadOffset)
	}

	slices.SortStableFunc(chunks, func(a, b chunk.Chunk) int {
		return cmp.Compare(a.Index, b.Index)
	})
	return chunks, nil
}

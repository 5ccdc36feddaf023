// Copyright 2026 The Shrlink Authors
// SPDX-License-Identifier: Apache-2.0

package bundle

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/shrlink/shrlink/lib/chunk"
)

// sampleChunks compresses a small deterministic stream into several
// chunks.
func sampleChunks(t *testing.T) []chunk.Chunk {
	t.Helper()
	data := bytes.Repeat([]byte("bundle test data, "), 700)
	set, err := chunk.Compress(context.Background(), bytes.NewReader(data), 1024, 3)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if set.Len() < 4 {
		t.Fatalf("sample produced %d chunks, want at least 4", set.Len())
	}
	return set.Chunks
}

func TestEncodeLayout(t *testing.T) {
	chunks := []chunk.Chunk{
		{Index: 7, Data: []byte("abc"), Digest: chunk.HashBlock([]byte("x")), OriginalSize: 10},
		{Index: 2, Data: []byte("de"), Digest: chunk.HashBlock([]byte("y")), OriginalSize: 20},
	}
	encoded := Encode(chunks)

	if len(encoded) != EncodedSize(chunks) {
		t.Fatalf("len(Encode) = %d, EncodedSize = %d", len(encoded), EncodedSize(chunks))
	}
	if want := HeaderSize + 2*RecordSize + 5; len(encoded) != want {
		t.Fatalf("len(Encode) = %d, want %d", len(encoded), want)
	}
	if string(encoded[:3]) != "SHR" || encoded[3] != 1 {
		t.Errorf("header = %q version %d, want SHR version 1", encoded[:3], encoded[3])
	}
	if count := binary.LittleEndian.Uint32(encoded[4:8]); count != 2 {
		t.Errorf("chunk count = %d, want 2", count)
	}

	// Records and payloads keep the supplied order.
	first := encoded[HeaderSize : HeaderSize+RecordSize]
	if index := binary.LittleEndian.Uint32(first[0:4]); index != 7 {
		t.Errorf("first record index = %d, want 7", index)
	}
	if size := binary.LittleEndian.Uint32(first[4:8]); size != 10 {
		t.Errorf("first record original size = %d, want 10", size)
	}
	if size := binary.LittleEndian.Uint32(first[8:12]); size != 3 {
		t.Errorf("first record compressed size = %d, want 3", size)
	}
	if !bytes.Equal(first[12:], chunks[0].Digest[:]) {
		t.Error("first record digest does not match")
	}
	if payloads := encoded[HeaderSize+2*RecordSize:]; string(payloads) != "abcde" {
		t.Errorf("payload region = %q, want %q", payloads, "abcde")
	}
}

func TestRoundTripRestoresIndexOrder(t *testing.T) {
	chunks := sampleChunks(t)

	shuffled := make([]chunk.Chunk, 0, len(chunks))
	for i := len(chunks) - 1; i >= 0; i -= 2 {
		shuffled = append(shuffled, chunks[i])
	}
	for i := len(chunks) - 2; i >= 0; i -= 2 {
		shuffled = append(shuffled, chunks[i])
	}

	decoded, err := Decode(Encode(shuffled))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(decoded) != len(chunks) {
		t.Fatalf("decoded %d chunks, want %d", len(decoded), len(chunks))
	}
	for i, c := range decoded {
		want := chunks[i]
		if c.Index != want.Index || c.Digest != want.Digest || c.OriginalSize != want.OriginalSize {
			t.Errorf("chunk %d metadata differs after round trip", i)
		}
		if !bytes.Equal(c.Data, want.Data) {
			t.Errorf("chunk %d payload differs after round trip", i)
		}
	}

	var output bytes.Buffer
	if _, err := chunk.Reassemble(context.Background(), decoded, &output, 2); err != nil {
		t.Fatalf("Reassemble: %v", err)
	}
	if want := bytes.Repeat([]byte("bundle test data, "), 700); !bytes.Equal(output.Bytes(), want) {
		t.Error("reassembled bundle does not reproduce the source")
	}
}

func TestDecodeCopiesPayloads(t *testing.T) {
	encoded := Encode(sampleChunks(t))
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	before := bytes.Clone(decoded[0].Data)
	for i := range encoded {
		encoded[i] = 0
	}
	if !bytes.Equal(decoded[0].Data, before) {
		t.Error("decoded payload aliases the input buffer")
	}
}

func TestEmptyBundle(t *testing.T) {
	encoded := Encode(nil)
	if !bytes.Equal(encoded, []byte{'S', 'H', 'R', 1, 0, 0, 0, 0}) {
		t.Fatalf("Encode(nil) = %x", encoded)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(decoded) != 0 {
		t.Errorf("decoded %d chunks from an empty bundle", len(decoded))
	}
}

func TestDecodeStableForDuplicateIndices(t *testing.T) {
	chunks := []chunk.Chunk{
		{Index: 1, Data: []byte("first")},
		{Index: 0, Data: []byte("zero")},
		{Index: 1, Data: []byte("second")},
	}
	decoded, err := Decode(Encode(chunks))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got := []string{string(decoded[0].Data), string(decoded[1].Data), string(decoded[2].Data)}
	want := []string{"zero", "first", "second"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("decoded[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDecodeTruncatedAtEveryOffset(t *testing.T) {
	encoded := Encode(sampleChunks(t))
	for length := 4; length < len(encoded); length++ {
		chunks, err := Decode(encoded[:length])
		if !errors.Is(err, chunk.ErrMalformedBundle) {
			t.Fatalf("Decode(first %d of %d bytes) error = %v, want ErrMalformedBundle", length, len(encoded), err)
		}
		if chunks != nil {
			t.Fatalf("Decode(first %d bytes) returned a partial chunk list", length)
		}
	}
}

func TestDecodeRejectsMalformedInput(t *testing.T) {
	valid := Encode(sampleChunks(t))

	badMagic := bytes.Clone(valid)
	badMagic[0] = 'X'

	badVersion := bytes.Clone(valid)
	badVersion[3] = 2

	hugeCount := bytes.Clone(valid[:HeaderSize])
	binary.LittleEndian.PutUint32(hugeCount[4:], math.MaxUint32)

	oversizedPayload := bytes.Clone(valid)
	binary.LittleEndian.PutUint32(oversizedPayload[HeaderSize+8:], math.MaxUint32)

	tests := []struct {
		name  string
		input []byte
	}{
		{"nil", nil},
		{"short header", []byte("SHR")},
		{"bad magic", badMagic},
		{"bad version", badVersion},
		{"huge count", hugeCount},
		{"oversized payload size", oversizedPayload},
		{"trailing bytes", append(bytes.Clone(valid), 0xAA)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks, err := Decode(tt.input)
			if !errors.Is(err, chunk.ErrMalformedBundle) {
				t.Errorf("Decode error = %v, want ErrMalformedBundle", err)
			}
			if chunks != nil {
				t.Error("Decode returned chunks alongside an error")
			}
		})
	}
}

func TestReadHeader(t *testing.T) {
	chunks := sampleChunks(t)
	encoded := Encode(chunks)

	header, err := ReadHeader(encoded)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if header.Version != Version {
		t.Errorf("Version = %d, want %d", header.Version, Version)
	}
	if int(header.ChunkCount) != len(chunks) || len(header.Records) != len(chunks) {
		t.Fatalf("ChunkCount = %d with %d records, want %d", header.ChunkCount, len(header.Records), len(chunks))
	}

	set := chunk.NewChunkSet(chunks)
	if header.TotalOriginalSize != set.TotalOriginalSize {
		t.Errorf("TotalOriginalSize = %d, want %d", header.TotalOriginalSize, set.TotalOriginalSize)
	}
	if header.TotalCompressedSize != set.TotalCompressedSize {
		t.Errorf("TotalCompressedSize = %d, want %d", header.TotalCompressedSize, set.TotalCompressedSize)
	}
	if header.EncodedSize() != uint64(len(encoded)) {
		t.Errorf("EncodedSize() = %d, want %d", header.EncodedSize(), len(encoded))
	}
	for i, record := range header.Records {
		if record.Digest != chunks[i].Digest || record.Index != chunks[i].Index {
			t.Errorf("record %d does not match chunk %d", i, i)
		}
	}

	// The table alone is enough.
	if _, err := ReadHeader(encoded[:header.TableSize()]); err != nil {
		t.Errorf("ReadHeader(table only): %v", err)
	}
	if _, err := ReadHeader(encoded[:header.TableSize()-1]); !errors.Is(err, chunk.ErrMalformedBundle) {
		t.Errorf("ReadHeader(short table) error = %v, want ErrMalformedBundle", err)
	}
}

func TestWriteMatchesEncode(t *testing.T) {
	chunks := sampleChunks(t)
	var buffer bytes.Buffer
	written, err := Write(&buffer, chunks)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if written != int64(buffer.Len()) {
		t.Errorf("Write reported %d bytes, buffer holds %d", written, buffer.Len())
	}
	if !bytes.Equal(buffer.Bytes(), Encode(chunks)) {
		t.Error("Write output differs from Encode")
	}
}

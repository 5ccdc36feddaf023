// Copyright 2026 The Shrlink Authors
// SPDX-License-Identifier: Apache-2.0

package chunk

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"runtime"
	"testing"
)

func TestCodecRoundTrip(t *testing.T) {
	random := make([]byte, 64*1024)
	if _, err := rand.Read(random); err != nil {
		t.Fatalf("generating random data: %v", err)
	}

	inputs := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"single byte", []byte{0x42}},
		{"repetitive", bytes.Repeat([]byte("shrlink "), 8192)},
		{"mixed", testData(100_000, 5)},
		{"incompressible", random},
	}

	codecs := []struct {
		name      string
		algorithm Algorithm
		level     int
	}{
		{"lz4 fast", LZ4, 0},
		{"lz4 hc level 1", LZ4, 1},
		{"lz4 hc level 9", LZ4, 9},
		{"zstd default", Zstd, 0},
		{"zstd level 1", Zstd, 1},
		{"zstd level 19", Zstd, 19},
	}

	for _, codecCase := range codecs {
		codec, err := newBlockCodec(codecCase.algorithm, codecCase.level, 2)
		if err != nil {
			t.Fatalf("newBlockCodec(%s, %d): %v", codecCase.algorithm, codecCase.level, err)
		}
		for _, input := range inputs {
			t.Run(codecCase.name+"/"+input.name, func(t *testing.T) {
				payload, err := codec.compress(input.data)
				if err != nil {
					t.Fatalf("compress: %v", err)
				}
				decoded, err := decodePayload(payload)
				if err != nil {
					t.Fatalf("decodePayload: %v", err)
				}
				if !bytes.Equal(decoded, input.data) {
					t.Errorf("round trip mismatch: got %d bytes, want %d", len(decoded), len(input.data))
				}
			})
		}
	}
}

func TestCodecShrinksRepetitiveData(t *testing.T) {
	data := bytes.Repeat([]byte("abcdefgh"), 16*1024)
	for _, algorithm := range []Algorithm{LZ4, Zstd} {
		codec, err := newBlockCodec(algorithm, 0, 1)
		if err != nil {
			t.Fatalf("newBlockCodec(%s): %v", algorithm, err)
		}
		payload, err := codec.compress(data)
		if err != nil {
			t.Fatalf("%s compress: %v", algorithm, err)
		}
		if len(payload) >= len(data)/10 {
			t.Errorf("%s payload is %d bytes for %d repetitive input bytes", algorithm, len(payload), len(data))
		}
	}
}

func TestLZ4PayloadLayout(t *testing.T) {
	data := testData(1000, 6)
	payload, err := compressLZ4(data, 0)
	if err != nil {
		t.Fatalf("compressLZ4: %v", err)
	}
	if size := binary.LittleEndian.Uint32(payload[:4]); size != 1000 {
		t.Errorf("size prefix = %d, want 1000", size)
	}

	empty, err := compressLZ4(nil, 0)
	if err != nil {
		t.Fatalf("compressLZ4(empty): %v", err)
	}
	if !bytes.Equal(empty, []byte{0, 0, 0, 0}) {
		t.Errorf("empty payload = %x, want 00000000", empty)
	}
}

func TestZstdPayloadStartsWithMagic(t *testing.T) {
	codec, err := newBlockCodec(Zstd, 3, 1)
	if err != nil {
		t.Fatalf("newBlockCodec: %v", err)
	}
	for _, data := range [][]byte{nil, []byte("hello")} {
		payload, err := codec.compress(data)
		if err != nil {
			t.Fatalf("compress: %v", err)
		}
		if !bytes.HasPrefix(payload, zstdMagic) {
			t.Errorf("payload for %d bytes does not start with the zstd magic: %x", len(data), payload)
		}
	}
}

func TestDecodePayloadRejectsDamage(t *testing.T) {
	good, err := compressLZ4(testData(4096, 7), 0)
	if err != nil {
		t.Fatalf("compressLZ4: %v", err)
	}

	oversized := make([]byte, 8)
	binary.LittleEndian.PutUint32(oversized, MaxBlockSize+1)

	lying := bytes.Clone(good)
	binary.LittleEndian.PutUint32(lying, 4000)

	tests := []struct {
		name    string
		payload []byte
	}{
		{"empty", nil},
		{"short prefix", []byte{1, 2}},
		{"oversized claim", oversized},
		{"empty block with trailing bytes", []byte{0, 0, 0, 0, 9}},
		{"truncated block", good[:len(good)/2]},
		{"size prefix mismatch", lying},
		{"truncated zstd frame", append(bytes.Clone(zstdMagic), 0x00)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := decodePayload(tt.payload); err == nil {
				t.Error("decodePayload succeeded on a damaged payload")
			}
		})
	}
}

func TestDecompressRejectsInflatedSizeClaim(t *testing.T) {
	// A 1 GiB size prefix in front of a single compressed byte.
	payload := []byte{0, 0, 0, 0x40, 0}

	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	_, err := Decompress(Chunk{Index: 3, Data: payload})
	runtime.ReadMemStats(&after)

	if !errors.Is(err, ErrCompression) {
		t.Fatalf("Decompress error = %v, want ErrCompression", err)
	}
	if allocated := after.TotalAlloc - before.TotalAlloc; allocated > 1<<20 {
		t.Errorf("rejecting the payload allocated %d bytes", allocated)
	}
}

func TestLZ4MaximumRatioDecodes(t *testing.T) {
	// Zeros compress close to the format's expansion limit.
	original := make([]byte, 4<<20)
	payload, err := compressLZ4(original, 0)
	if err != nil {
		t.Fatalf("compressLZ4: %v", err)
	}
	decoded, err := decodePayload(payload)
	if err != nil {
		t.Fatalf("decodePayload: %v", err)
	}
	if !bytes.Equal(decoded, original) {
		t.Error("round trip of an all-zero block changed the data")
	}
}

func TestNewBlockCodecRejectsBadSettings(t *testing.T) {
	tests := []struct {
		name      string
		algorithm Algorithm
		level     int
	}{
		{"unknown algorithm", Algorithm(9), 0},
		{"zero algorithm", Algorithm(0), 0},
		{"lz4 negative level", LZ4, -1},
		{"lz4 level too high", LZ4, 10},
		{"zstd negative level", Zstd, -1},
		{"zstd level too high", Zstd, 23},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newBlockCodec(tt.algorithm, tt.level, 1)
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("newBlockCodec error = %v, want ErrInvalidInput", err)
			}
		})
	}
}

func TestParseAlgorithm(t *testing.T) {
	for _, algorithm := range []Algorithm{LZ4, Zstd} {
		parsed, err := ParseAlgorithm(algorithm.String())
		if err != nil {
			t.Fatalf("ParseAlgorithm(%q): %v", algorithm.String(), err)
		}
		if parsed != algorithm {
			t.Errorf("ParseAlgorithm(%q) = %v, want %v", algorithm.String(), parsed, algorithm)
		}
	}

	if _, err := ParseAlgorithm("gzip"); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("ParseAlgorithm(gzip) error = %v, want ErrInvalidInput", err)
	}
	if got := Algorithm(7).String(); got != "unknown(7)" {
		t.Errorf("Algorithm(7).String() = %q, want %q", got, "unknown(7)")
	}
}

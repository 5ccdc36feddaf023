// Copyright 2026 The Shrlink Authors
// SPDX-License-Identifier: Apache-2.0

package bundlestore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shrlink/shrlink/lib/bundle"
	"github.com/shrlink/shrlink/lib/chunk"
	"github.com/shrlink/shrlink/lib/clock"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*Store, *clock.FakeClock) {
	t.Helper()
	fake := clock.Fake(epoch)
	store, err := New(filepath.Join(t.TempDir(), "bundles"), fake, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return store, fake
}

func testBundle(t *testing.T, content string) []byte {
	t.Helper()
	set, err := chunk.Compress(context.Background(), bytes.NewReader([]byte(content)), 16, 2)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	return bundle.Encode(set.Chunks)
}

func TestPutGet(t *testing.T) {
	store, _ := newTestStore(t)
	data := testBundle(t, "the quick brown fox jumps over the lazy dog")

	stored, err := store.Put("fox", data)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if stored.Size != int64(len(data)) {
		t.Errorf("Size = %d, want %d", stored.Size, len(data))
	}
	if stored.ChunkCount != 3 {
		t.Errorf("ChunkCount = %d, want 3", stored.ChunkCount)
	}
	if stored.OriginalSize != 43 {
		t.Errorf("OriginalSize = %d, want 43", stored.OriginalSize)
	}
	if stored.Digest != chunk.HashBlock(data) {
		t.Error("Digest is not the hash of the bundle bytes")
	}
	if !stored.StoredAt.Equal(epoch) {
		t.Errorf("StoredAt = %v, want %v", stored.StoredAt, epoch)
	}
	if stored.FileName() != "fox.shr" {
		t.Errorf("FileName() = %q, want fox.shr", stored.FileName())
	}

	got, metadata, err := store.Get("fox")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Error("Get returned different bytes")
	}
	if metadata.Name != stored.Name || metadata.Digest != stored.Digest || !metadata.StoredAt.Equal(stored.StoredAt) {
		t.Errorf("Get metadata = %+v, want %+v", metadata, stored)
	}

	if _, err := os.Stat(filepath.Join(store.Dir(), "fox.meta")); err != nil {
		t.Errorf("sidecar missing: %v", err)
	}
}

func TestPutReplaces(t *testing.T) {
	store, fake := newTestStore(t)
	if _, err := store.Put("doc", testBundle(t, "first version")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	fake.Advance(time.Minute)
	second := testBundle(t, "second version, longer than the first")
	if _, err := store.Put("doc", second); err != nil {
		t.Fatalf("second Put: %v", err)
	}

	got, metadata, err := store.Get("doc")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, second) {
		t.Error("Get did not return the replacement")
	}
	if !metadata.StoredAt.Equal(epoch.Add(time.Minute)) {
		t.Errorf("StoredAt = %v, want the replacement time", metadata.StoredAt)
	}
}

func TestPutRejectsMalformedBundles(t *testing.T) {
	store, _ := newTestStore(t)
	valid := testBundle(t, "some content to bundle")

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"not a bundle", []byte("hello world, definitely not SHR")},
		{"truncated", valid[:len(valid)-1]},
		{"trailing bytes", append(bytes.Clone(valid), 0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Put("bad", tt.data)
			if !errors.Is(err, chunk.ErrMalformedBundle) {
				t.Errorf("Put error = %v, want ErrMalformedBundle", err)
			}
		})
	}

	if _, _, err := store.Get("bad"); !errors.Is(err, ErrNotFound) {
		t.Errorf("rejected bundle was stored: %v", err)
	}
}

func TestValidateName(t *testing.T) {
	valid := []string{"a", "file.bin", "3f2a-uuid_like.name", "UPPER"}
	for _, name := range valid {
		if err := ValidateName(name); err != nil {
			t.Errorf("ValidateName(%q) = %v, want nil", name, err)
		}
	}

	invalid := []string{"", ".", "..", ".hidden", "a/b", `a\b`, "../escape", "space name", "naïve",
		string(bytes.Repeat([]byte("x"), MaxNameLength+1))}
	for _, name := range invalid {
		if err := ValidateName(name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("ValidateName(%q) = %v, want ErrInvalidName", name, err)
		}
	}
}

func TestNameFromFileName(t *testing.T) {
	name, err := NameFromFileName("report.pdf.shr")
	if err != nil {
		t.Fatalf("NameFromFileName: %v", err)
	}
	if name != "report.pdf" {
		t.Errorf("NameFromFileName = %q, want report.pdf", name)
	}
	if _, err := NameFromFileName(".shr"); !errors.Is(err, ErrInvalidName) {
		t.Errorf("NameFromFileName(.shr) = %v, want ErrInvalidName", err)
	}
}

func TestOperationsRejectInvalidNames(t *testing.T) {
	store, _ := newTestStore(t)
	data := testBundle(t, "x")

	if _, err := store.Put("../outside", data); !errors.Is(err, ErrInvalidName) {
		t.Errorf("Put error = %v, want ErrInvalidName", err)
	}
	if _, _, err := store.Open("../outside"); !errors.Is(err, ErrInvalidName) {
		t.Errorf("Open error = %v, want ErrInvalidName", err)
	}
	if err := store.Delete(".."); !errors.Is(err, ErrInvalidName) {
		t.Errorf("Delete error = %v, want ErrInvalidName", err)
	}
}

func TestOpenMissing(t *testing.T) {
	store, _ := newTestStore(t)
	if _, _, err := store.Open("ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open error = %v, want ErrNotFound", err)
	}
	if _, err := store.Stat("ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Stat error = %v, want ErrNotFound", err)
	}
	if err := store.Delete("ghost"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete error = %v, want ErrNotFound", err)
	}
}

func TestOpenSeeks(t *testing.T) {
	store, _ := newTestStore(t)
	data := testBundle(t, "seekable bundle contents")
	if _, err := store.Put("seek", data); err != nil {
		t.Fatalf("Put: %v", err)
	}

	reader, _, err := store.Open("seek")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer reader.Close()

	if _, err := reader.Seek(bundle.HeaderSize, io.SeekStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	rest, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(rest, data[bundle.HeaderSize:]) {
		t.Error("read after seek returned the wrong bytes")
	}
}

func TestMetadataRebuiltWithoutSidecar(t *testing.T) {
	store, _ := newTestStore(t)
	data := testBundle(t, "a bundle that loses its sidecar")
	stored, err := store.Put("orphan", data)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	for _, damage := range []func(path string) error{
		os.Remove,
		func(path string) error { return os.WriteFile(path, []byte("not cbor"), 0o644) },
	} {
		if err := damage(filepath.Join(store.Dir(), "orphan.meta")); err != nil {
			t.Fatalf("damaging sidecar: %v", err)
		}

		got, metadata, err := store.Get("orphan")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if !bytes.Equal(got, data) {
			t.Error("Get returned different bytes after rebuilding metadata")
		}
		if metadata.Digest != stored.Digest || metadata.ChunkCount != stored.ChunkCount || metadata.Size != stored.Size {
			t.Errorf("rebuilt metadata = %+v, want %+v", metadata, stored)
		}
	}
}

func TestCleanup(t *testing.T) {
	store, fake := newTestStore(t)

	if _, err := store.Put("old", testBundle(t, "old bundle")); err != nil {
		t.Fatalf("Put old: %v", err)
	}
	fake.Advance(2 * time.Hour)
	if _, err := store.Put("middle", testBundle(t, "middle bundle")); err != nil {
		t.Fatalf("Put middle: %v", err)
	}
	fake.Advance(30 * time.Minute)
	if _, err := store.Put("new", testBundle(t, "new bundle")); err != nil {
		t.Fatalf("Put new: %v", err)
	}

	deleted, err := store.Cleanup(time.Hour)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if deleted != 1 {
		t.Errorf("Cleanup(1h) deleted %d, want 1", deleted)
	}
	if _, _, err := store.Open("old"); !errors.Is(err, ErrNotFound) {
		t.Errorf("old bundle survived cleanup: %v", err)
	}
	if _, err := os.Stat(filepath.Join(store.Dir(), "old.meta")); !os.IsNotExist(err) {
		t.Errorf("old sidecar survived cleanup: %v", err)
	}

	listing, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(listing) != 2 || listing[0].Name != "middle" || listing[1].Name != "new" {
		t.Errorf("List after cleanup = %+v, want middle and new", listing)
	}

	deleted, err = store.Cleanup(0)
	if err != nil {
		t.Fatalf("Cleanup(0): %v", err)
	}
	if deleted != 2 {
		t.Errorf("Cleanup(0) deleted %d, want 2", deleted)
	}
}

func TestStats(t *testing.T) {
	store, _ := newTestStore(t)

	stats, err := store.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats != (Stats{}) {
		t.Errorf("empty store Stats = %+v", stats)
	}

	first := testBundle(t, "first bundle")
	second := testBundle(t, "second bundle with more bytes in it")
	if _, err := store.Put("one", first); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := store.Put("two", second); err != nil {
		t.Fatalf("Put: %v", err)
	}
	// Files that are not bundles do not count.
	if err := os.WriteFile(filepath.Join(store.Dir(), "notes.txt"), []byte("ignore me"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	stats, err = store.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.TotalFiles != 2 {
		t.Errorf("TotalFiles = %d, want 2", stats.TotalFiles)
	}
	if want := int64(len(first) + len(second)); stats.TotalBytes != want {
		t.Errorf("TotalBytes = %d, want %d", stats.TotalBytes, want)
	}
}

func TestMetadataEncodingIsDeterministic(t *testing.T) {
	metadata := Metadata{
		Name:         "det",
		Size:         1234,
		ChunkCount:   2,
		OriginalSize: 9999,
		Digest:       chunk.HashBlock([]byte("det")),
		StoredAt:     epoch.Add(123456789 * time.Nanosecond),
	}
	first, err := encodeMetadata(metadata)
	if err != nil {
		t.Fatalf("encodeMetadata: %v", err)
	}
	second, err := encodeMetadata(metadata)
	if err != nil {
		t.Fatalf("encodeMetadata: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("encoding the same metadata twice gave different bytes")
	}

	decoded, err := decodeMetadata(first)
	if err != nil {
		t.Fatalf("decodeMetadata: %v", err)
	}
	if !decoded.StoredAt.Equal(metadata.StoredAt) {
		t.Errorf("StoredAt = %v, want %v (sub-second precision lost)", decoded.StoredAt, metadata.StoredAt)
	}
	decoded.StoredAt = metadata.StoredAt
	if decoded != metadata {
		t.Errorf("decoded = %+v, want %+v", decoded, metadata)
	}
}

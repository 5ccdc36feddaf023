// Copyright 2026 The Shrlink Authors
// SPDX-License-Identifier: Apache-2.0

package bundlestore

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shrlink/shrlink/lib/bundle"
	"github.com/shrlink/shrlink/lib/chunk"
	"github.com/shrlink/shrlink/lib/clock"
)

const (
	// BundleExtension is appended to a name to form the bundle file.
	BundleExtension = ".shr"

	// MetadataExtension is appended to a name to form the sidecar.
	MetadataExtension = ".meta"

	// MaxNameLength bounds a bundle name, leaving room for the
	// extensions within common filesystem limits.
	MaxNameLength = 200
)

var (
	// ErrNotFound is returned when no bundle has the requested name.
	ErrNotFound = errors.New("bundlestore: bundle not found")

	// ErrInvalidName is returned for names that are empty, too long,
	// start with '.', or contain characters outside [A-Za-z0-9._-].
	ErrInvalidName = errors.New("bundlestore: invalid bundle name")
)

// Stats summarizes the contents of a store.
type Stats struct {
	TotalFiles int   `json:"total_files"`
	TotalBytes int64 `json:"total_bytes"`
}

// Store is a directory of bundles. It is safe for concurrent use.
type Store struct {
	dir    string
	clock  clock.Clock
	logger *slog.Logger

	// writeMu serializes Put, Delete, and Cleanup. Reads go straight
	// to the filesystem; the rename in Put keeps them consistent.
	writeMu sync.Mutex
}

// New opens (creating if needed) a store rooted at dir. A nil logger
// discards.
func New(dir string, clk clock.Clock, logger *slog.Logger) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("store directory is required")
	}
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	return &Store{dir: dir, clock: clk, logger: logger}, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

// ValidateName reports whether name may be used as a bundle name.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidName)
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("%w: name is %d bytes, limit is %d", ErrInvalidName, len(name), MaxNameLength)
	}
	if name[0] == '.' {
		return fmt.Errorf("%w: %q starts with '.'", ErrInvalidName, name)
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '_', r == '-':
		default:
			return fmt.Errorf("%w: %q contains %q", ErrInvalidName, name, r)
		}
	}
	return nil
}

// NameFromFileName strips the bundle extension from a served file
// name ("abc.shr" -> "abc") and validates the result.
func NameFromFileName(fileName string) (string, error) {
	name := strings.TrimSuffix(fileName, BundleExtension)
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return name, nil
}

func (s *Store) bundlePath(name string) string {
	return filepath.Join(s.dir, name+BundleExtension)
}

func (s *Store) metadataPath(name string) string {
	return filepath.Join(s.dir, name+MetadataExtension)
}

// Put stores data as the bundle name, replacing any existing bundle of
// that name. data must be a structurally complete bundle: its header
// and metadata table must parse and its length must match what the
// table declares. Payload digests are not checked.
func (s *Store) Put(name string, data []byte) (Metadata, error) {
	if err := ValidateName(name); err != nil {
		return Metadata{}, err
	}
	header, err := bundle.ReadHeader(data)
	if err != nil {
		return Metadata{}, err
	}
	if header.EncodedSize() != uint64(len(data)) {
		return Metadata{}, fmt.Errorf("%w: bundle is %d bytes, its table declares %d",
			chunk.ErrMalformedBundle, len(data), header.EncodedSize())
	}

	metadata := Metadata{
		Name:         name,
		Size:         int64(len(data)),
		ChunkCount:   header.ChunkCount,
		OriginalSize: header.TotalOriginalSize,
		Digest:       chunk.HashBlock(data),
		StoredAt:     s.clock.Now().UTC(),
	}
	encoded, err := encodeMetadata(metadata)
	if err != nil {
		return Metadata{}, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.writeAtomic(s.bundlePath(name), data); err != nil {
		return Metadata{}, fmt.Errorf("storing bundle %s: %w", name, err)
	}
	if err := s.writeAtomic(s.metadataPath(name), encoded); err != nil {
		return Metadata{}, fmt.Errorf("storing metadata for %s: %w", name, err)
	}

	s.logger.Info("bundle stored",
		"name", name,
		"size", metadata.Size,
		"chunks", metadata.ChunkCount,
		"digest", metadata.Digest.String(),
	)
	return metadata, nil
}

// writeAtomic writes data to a temp file in the store directory and
// renames it over finalPath.
func (s *Store) writeAtomic(finalPath string, data []byte) error {
	tmpFile, err := os.CreateTemp(s.dir, ".write-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}

	success = true
	return nil
}

// Open returns a reader over the bundle name and its metadata. The
// caller must close the reader.
func (s *Store) Open(name string) (io.ReadSeekCloser, Metadata, error) {
	if err := ValidateName(name); err != nil {
		return nil, Metadata{}, err
	}
	file, err := os.Open(s.bundlePath(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, Metadata{}, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, Metadata{}, fmt.Errorf("opening bundle %s: %w", name, err)
	}

	metadata, err := s.metadata(name, file)
	if err != nil {
		file.Close()
		return nil, Metadata{}, err
	}
	return file, metadata, nil
}

// Get reads the whole bundle name into memory.
func (s *Store) Get(name string) ([]byte, Metadata, error) {
	reader, metadata, err := s.Open(name)
	if err != nil {
		return nil, Metadata{}, err
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("reading bundle %s: %w", name, err)
	}
	return data, metadata, nil
}

// Stat returns the metadata of bundle name without opening it for
// reading.
func (s *Store) Stat(name string) (Metadata, error) {
	if err := ValidateName(name); err != nil {
		return Metadata{}, err
	}
	return s.metadata(name, nil)
}

// metadata loads the sidecar for name, falling back to metadata rebuilt
// from the bundle file when the sidecar is missing or unreadable. file,
// when non-nil, is an open handle on the bundle and is left positioned
// at offset 0.
func (s *Store) metadata(name string, file *os.File) (Metadata, error) {
	info, err := os.Stat(s.bundlePath(name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Metadata{}, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return Metadata{}, fmt.Errorf("stat bundle %s: %w", name, err)
	}

	sidecar, err := os.ReadFile(s.metadataPath(name))
	if err == nil {
		metadata, decodeErr := decodeMetadata(sidecar)
		if decodeErr == nil && metadata.Name == name && metadata.Size == info.Size() {
			return metadata, nil
		}
		s.logger.Warn("ignoring stale or unreadable bundle metadata", "name", name, "error", decodeErr)
	} else if !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("reading bundle metadata failed", "name", name, "error", err)
	}

	return s.rebuildMetadata(name, info, file)
}

func (s *Store) rebuildMetadata(name string, info fs.FileInfo, file *os.File) (Metadata, error) {
	if file == nil {
		opened, err := os.Open(s.bundlePath(name))
		if err != nil {
			return Metadata{}, fmt.Errorf("opening bundle %s: %w", name, err)
		}
		defer opened.Close()
		file = opened
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return Metadata{}, fmt.Errorf("reading bundle %s: %w", name, err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return Metadata{}, fmt.Errorf("rewinding bundle %s: %w", name, err)
	}

	metadata := Metadata{
		Name:     name,
		Size:     info.Size(),
		Digest:   chunk.HashBlock(data),
		StoredAt: info.ModTime().UTC(),
	}
	if header, err := bundle.ReadHeader(data); err == nil {
		metadata.ChunkCount = header.ChunkCount
		metadata.OriginalSize = header.TotalOriginalSize
	}
	return metadata, nil
}

// Delete removes bundle name and its sidecar.
func (s *Store) Delete(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.delete(name)
}

func (s *Store) delete(name string) error {
	if err := os.Remove(s.bundlePath(name)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("removing bundle %s: %w", name, err)
	}
	if err := os.Remove(s.metadataPath(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing metadata for %s: %w", name, err)
	}
	return nil
}

// List returns the metadata of every stored bundle, sorted by name.
func (s *Store) List() ([]Metadata, error) {
	names, err := s.names()
	if err != nil {
		return nil, err
	}
	listing := make([]Metadata, 0, len(names))
	for _, name := range names {
		metadata, err := s.metadata(name, nil)
		if errors.Is(err, ErrNotFound) {
			// Removed between the directory read and the stat.
			continue
		}
		if err != nil {
			return nil, err
		}
		listing = append(listing, metadata)
	}
	return listing, nil
}

// names returns the names of all bundle files in the directory.
func (s *Store) names() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading store directory: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name, found := strings.CutSuffix(entry.Name(), BundleExtension)
		if !found || ValidateName(name) != nil {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Cleanup deletes every bundle stored more than maxAge ago and returns
// how many were deleted. A non-positive maxAge deletes everything.
func (s *Store) Cleanup(maxAge time.Duration) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	listing, err := s.List()
	if err != nil {
		return 0, err
	}

	cutoff := s.clock.Now().Add(-maxAge)
	deleted := 0
	var errs []error
	for _, metadata := range listing {
		if maxAge > 0 && !metadata.StoredAt.Before(cutoff) {
			continue
		}
		if err := s.delete(metadata.Name); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			errs = append(errs, err)
			continue
		}
		deleted++
	}

	s.logger.Info("bundle cleanup finished",
		"max_age", maxAge.String(),
		"deleted", deleted,
		"remaining", len(listing)-deleted,
	)
	return deleted, errors.Join(errs...)
}

// Stats counts the stored bundles and their total size.
func (s *Store) Stats() (Stats, error) {
	names, err := s.names()
	if err != nil {
		return Stats{}, err
	}
	var stats Stats
	for _, name := range names {
		info, err := os.Stat(s.bundlePath(name))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return Stats{}, fmt.Errorf("stat bundle %s: %w", name, err)
		}
		stats.TotalFiles++
		stats.TotalBytes += info.Size()
	}
	return stats, nil
}

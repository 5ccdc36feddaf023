// Copyright 2026 The Shrlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package bundlestore keeps uploaded bundles in a flat directory.
//
// Each bundle named N lives in two files:
//
//	N.shr   the bundle bytes, exactly as uploaded
//	N.meta  a CBOR sidecar describing it (see [Metadata])
//
// Writes go through a temp file and a rename, so readers never observe
// a partially written bundle. A bundle whose sidecar is missing or
// unreadable is still served; its metadata is rebuilt from the file
// itself and its modification time stands in for the upload time.
//
// Names are restricted to ASCII letters, digits, '.', '_' and '-', must
// not start with '.', and are at most [MaxNameLength] bytes, so a name
// can never escape the directory or collide with a temp file.
package bundlestore

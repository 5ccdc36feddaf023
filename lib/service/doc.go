// Copyright 2026 The Shrlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package service holds the process plumbing shared by long-running
// shrlink binaries: the structured logger they emit and the HTTP
// listener lifecycle with graceful shutdown.
package service

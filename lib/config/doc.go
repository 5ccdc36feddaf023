// Copyright 2026 The Shrlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads shrlink configuration.
//
// Configuration is read from a single file named by:
//   - the SHRLINK_CONFIG environment variable, or
//   - the --config flag passed to a command.
//
// There is no automatic discovery and no environment-variable override
// of individual values: the file is the single source of truth, and any
// field it omits keeps its value from [Default].
//
// Files are YAML unless the name ends in .json or .jsonc, in which case
// they are parsed as JSON after comments and trailing commas are
// stripped. The YAML layout:
//
//	compression:
//	  algorithm: lz4        # lz4 | zstd
//	  block_size: 4194304   # bytes per chunk
//	  level: 0              # lz4: 0 fast, 1-9 HC; zstd: 0 default, 1-22
//	  parallel_workers: 0   # 0 = one worker per CPU
//	fallback:
//	  endpoint: http://localhost:8080
//	  expiry_secs: 86400
//	  timeout: 30s
//	  max_retries: 3
//	server:
//	  listen: ":8080"
//	  storage_dir: ./server_files
//	  max_upload_bytes: 4294967296
//	  cache_bytes: 268435456
package config

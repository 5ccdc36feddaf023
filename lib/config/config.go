// Copyright 2026 The Shrlink Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/shrlink/shrlink/lib/chunk"
)

// EnvironmentVariable names the variable [Load] reads the config path
// from.
const EnvironmentVariable = "SHRLINK_CONFIG"

// Config is the complete shrlink configuration.
type Config struct {
	// Compression controls how files are chunked and compressed.
	Compression CompressionConfig `yaml:"compression" json:"compression"`

	// Fallback configures the HTTP relay used to share bundles.
	Fallback FallbackConfig `yaml:"fallback" json:"fallback"`

	// Server configures shr-server.
	Server ServerConfig `yaml:"server" json:"server"`
}

// CompressionConfig controls the chunk compressor.
type CompressionConfig struct {
	// Algorithm is "lz4" or "zstd".
	Algorithm string `yaml:"algorithm" json:"algorithm"`

	// BlockSize is the plaintext size of each chunk in bytes.
	BlockSize int `yaml:"block_size" json:"block_size"`

	// Level tunes the codec: LZ4 0 (fast) or 1-9 (HC), zstd 0
	// (library default) or 1-22.
	Level int `yaml:"level" json:"level"`

	// ParallelWorkers is the compression pool size. Zero means one
	// worker per CPU.
	ParallelWorkers int `yaml:"parallel_workers" json:"parallel_workers"`
}

// FallbackConfig configures the HTTP relay client.
type FallbackConfig struct {
	// Endpoint is the base URL of a shr-server.
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	// ExpirySecs is the age after which uploaded bundles may be
	// cleaned up. It is the default for "shr cleanup".
	ExpirySecs int64 `yaml:"expiry_secs" json:"expiry_secs"`

	// Timeout bounds each HTTP request, as a Go duration string
	// ("30s", "2m").
	Timeout string `yaml:"timeout" json:"timeout"`

	// MaxRetries is how many times a failed download is retried.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`
}

// ServerConfig configures shr-server.
type ServerConfig struct {
	// Listen is the TCP address to serve on.
	Listen string `yaml:"listen" json:"listen"`

	// StorageDir holds uploaded bundles.
	StorageDir string `yaml:"storage_dir" json:"storage_dir"`

	// MaxUploadBytes caps the request body of an upload.
	MaxUploadBytes int64 `yaml:"max_upload_bytes" json:"max_upload_bytes"`

	// CacheBytes is the budget of the in-memory download cache. Zero
	// disables the cache.
	CacheBytes int64 `yaml:"cache_bytes" json:"cache_bytes"`
}

// Default returns the built-in configuration. Every loaded file is
// layered on top of these values.
func Default() *Config {
	return &Config{
		Compression: CompressionConfig{
			Algorithm:       chunk.LZ4.String(),
			BlockSize:       chunk.DefaultBlockSize,
			Level:           0,
			ParallelWorkers: 0,
		},
		Fallback: FallbackConfig{
			Endpoint:   "http://localhost:8080",
			ExpirySecs: 24 * 60 * 60,
			Timeout:    "30s",
			MaxRetries: 3,
		},
		Server: ServerConfig{
			Listen:         ":8080",
			StorageDir:     "./server_files",
			MaxUploadBytes: 4 << 30,
			CacheBytes:     256 << 20,
		},
	}
}

// Load loads configuration from the file named by SHRLINK_CONFIG.
//
// There are no fallbacks: if the variable is not set, Load fails.
// Callers that want built-in defaults in that case use [Default]
// explicitly.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your shrlink config file, or use --config flag", EnvironmentVariable)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path, layered over [Default]. The
// result is not validated; call [Config.Validate].
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Default()
	if isJSON(path) {
		if err := json.Unmarshal(jsonc.ToJSON(data), cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	return cfg, nil
}

// Save writes the configuration to path in the format its extension
// selects, creating parent directories as needed.
func (c *Config) Save(path string) error {
	var data []byte
	var err error
	if isJSON(path) {
		data, err = json.MarshalIndent(c, "", "  ")
		data = append(data, '\n')
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	algorithm, err := chunk.ParseAlgorithm(c.Compression.Algorithm)
	if err != nil {
		errs = append(errs, fmt.Errorf("compression.algorithm must be one of: lz4, zstd (got %q)", c.Compression.Algorithm))
	}
	if c.Compression.BlockSize <= 0 || c.Compression.BlockSize > chunk.MaxBlockSize {
		errs = append(errs, fmt.Errorf("compression.block_size must be between 1 and %d, got %d",
			chunk.MaxBlockSize, c.Compression.BlockSize))
	}
	maxLevel := 9
	if algorithm == chunk.Zstd {
		maxLevel = 22
	}
	if c.Compression.Level < 0 || c.Compression.Level > maxLevel {
		errs = append(errs, fmt.Errorf("compression.level must be between 0 and %d for %s, got %d",
			maxLevel, c.Compression.Algorithm, c.Compression.Level))
	}
	if c.Compression.ParallelWorkers < 0 {
		errs = append(errs, fmt.Errorf("compression.parallel_workers must not be negative, got %d",
			c.Compression.ParallelWorkers))
	}

	if c.Fallback.Endpoint != "" {
		endpoint, err := url.Parse(c.Fallback.Endpoint)
		if err != nil || (endpoint.Scheme != "http" && endpoint.Scheme != "https") || endpoint.Host == "" {
			errs = append(errs, fmt.Errorf("fallback.endpoint must be an http:// or https:// URL, got %q", c.Fallback.Endpoint))
		}
	}
	if c.Fallback.ExpirySecs < 0 {
		errs = append(errs, fmt.Errorf("fallback.expiry_secs must not be negative, got %d", c.Fallback.ExpirySecs))
	}
	if timeout, err := time.ParseDuration(c.Fallback.Timeout); err != nil || timeout <= 0 {
		errs = append(errs, fmt.Errorf("fallback.timeout must be a positive duration, got %q", c.Fallback.Timeout))
	}
	if c.Fallback.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("fallback.max_retries must not be negative, got %d", c.Fallback.MaxRetries))
	}

	if c.Server.Listen == "" {
		errs = append(errs, fmt.Errorf("server.listen is required"))
	}
	if c.Server.StorageDir == "" {
		errs = append(errs, fmt.Errorf("server.storage_dir is required"))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_bytes must be positive, got %d", c.Server.MaxUploadBytes))
	}
	if c.Server.CacheBytes < 0 {
		errs = append(errs, fmt.Errorf("server.cache_bytes must not be negative, got %d", c.Server.CacheBytes))
	}

	return errors.Join(errs...)
}

// CompressorOptions converts the compression section into options for
// chunk.NewCompressor, resolving a zero worker count to the host's CPU
// count.
func (c *Config) CompressorOptions() (chunk.Options, error) {
	algorithm, err := chunk.ParseAlgorithm(c.Compression.Algorithm)
	if err != nil {
		return chunk.Options{}, fmt.Errorf("compression.algorithm: %w", err)
	}
	workers := c.Compression.ParallelWorkers
	if workers == 0 {
		workers = runtime.NumCPU()
	}
	return chunk.Options{
		BlockSize: c.Compression.BlockSize,
		Workers:   workers,
		Algorithm: algorithm,
		Level:     c.Compression.Level,
	}, nil
}

// RequestTimeout returns the parsed fallback.timeout.
func (f FallbackConfig) RequestTimeout() (time.Duration, error) {
	timeout, err := time.ParseDuration(f.Timeout)
	if err != nil {
		return 0, fmt.Errorf("fallback.timeout: %w", err)
	}
	return timeout, nil
}

// Expiry returns fallback.expiry_secs as a duration.
func (f FallbackConfig) Expiry() time.Duration {
	return time.Duration(f.ExpirySecs) * time.Second
}

func isJSON(path string) bool {
	extension := strings.ToLower(filepath.Ext(path))
	return extension == ".json" || extension == ".jsonc"
}

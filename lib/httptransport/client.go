// Copyright 2026 The Shrlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package httptransport moves bundles to and from a shr-server relay.
//
// The client owns retry policy. Requests that fail on the network, get
// a 5xx reply, or (for [Client.DownloadChunks]) return a body that does
// not parse as a bundle are retried with exponential backoff, up to
// MaxRetries extra attempts. A 4xx reply is final: asking again will
// not change the answer.
package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/shrlink/shrlink/lib/bundle"
	"github.com/shrlink/shrlink/lib/bundlestore"
	"github.com/shrlink/shrlink/lib/chunk"
	"github.com/shrlink/shrlink/lib/version"
)

// Config configures a Client.
type Config struct {
	// Endpoint is the relay's base URL, e.g. "http://localhost:8080".
	// Required for Upload, Cleanup, and Stats; Download takes full
	// URLs and works without it.
	Endpoint string

	// Timeout bounds each HTTP attempt. Defaults to 30 seconds.
	Timeout time.Duration

	// MaxRetries is the number of extra attempts after a retryable
	// failure. Zero means one attempt only.
	MaxRetries int

	// RetryInterval is the first backoff delay; later delays grow
	// exponentially. Defaults to 500ms.
	RetryInterval time.Duration

	// HTTPClient overrides the underlying client. Its Timeout is
	// replaced by Config.Timeout.
	HTTPClient *http.Client

	// Logger receives upload, download, and retry records. Nil
	// discards.
	Logger *slog.Logger
}

// Client talks to one relay.
type Client struct {
	endpoint      *url.URL
	httpClient    *http.Client
	maxRetries    int
	retryInterval time.Duration
	logger        *slog.Logger
}

// Stats is the relay's storage summary.
type Stats struct {
	TotalFiles int   `json:"total_files"`
	TotalBytes int64 `json:"total_bytes"`
}

// StatusError is returned when the relay answers with a non-2xx status.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int

	// Message is the relay's error text, when it sent one.
	Message string
}

func (e *StatusError) Error() string {
	message := fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Message != "" {
		message += ": " + e.Message
	}
	return message
}

// Temporary reports whether the failure is on the server side and may
// go away on retry.
func (e *StatusError) Temporary() bool {
	return e.StatusCode >= 500
}

// New creates a client. The endpoint, if set, must be an absolute
// http or https URL.
func New(config Config) (*Client, error) {
	client := &Client{
		maxRetries:    config.MaxRetries,
		retryInterval: config.RetryInterval,
		logger:        config.Logger,
	}
	if config.Endpoint != "" {
		endpoint, err := url.Parse(strings.TrimRight(config.Endpoint, "/"))
		if err != nil {
			return nil, fmt.Errorf("parsing endpoint: %w", err)
		}
		if endpoint.Scheme != "http" && endpoint.Scheme != "https" || endpoint.Host == "" {
			return nil, fmt.Errorf("endpoint %q is not an http:// or https:// URL", config.Endpoint)
		}
		client.endpoint = endpoint
	}
	if client.maxRetries < 0 {
		return nil, fmt.Errorf("max retries must not be negative, got %d", config.MaxRetries)
	}
	if client.retryInterval <= 0 {
		client.retryInterval = 500 * time.Millisecond
	}
	if client.logger == nil {
		client.logger = slog.New(slog.DiscardHandler)
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if config.HTTPClient != nil {
		copied := *config.HTTPClient
		client.httpClient = &copied
	} else {
		client.httpClient = &http.Client{}
	}
	client.httpClient.Timeout = timeout

	return client, nil
}

func (c *Client) endpointURL(elements ...string) (string, error) {
	if c.endpoint == nil {
		return "", fmt.Errorf("no relay endpoint configured")
	}
	return c.endpoint.JoinPath(elements...).String(), nil
}

// Upload sends an encoded bundle to the relay under a fresh random
// name and returns the URL it can be downloaded from.
func (c *Client) Upload(ctx context.Context, encoded []byte) (string, error) {
	uploadURL, err := c.endpointURL("upload")
	if err != nil {
		return "", err
	}
	filename := uuid.New().String() + bundlestore.BundleExtension

	var body bytes.Buffer
	contentType, err := writeUploadForm(&body, filename, encoded)
	if err != nil {
		return "", fmt.Errorf("building upload form: %w", err)
	}
	form := body.Bytes()

	var reply struct {
		Status   string `json:"status"`
		Filename string `json:"filename"`
		Size     int64  `json:"size"`
	}
	err = c.retry(ctx, "upload", func() error {
		request, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(form))
		if err != nil {
			return backoff.Permanent(err)
		}
		request.Header.Set("Content-Type", contentType)
		return c.doJSON(request, &reply)
	})
	if err != nil {
		return "", err
	}
	if reply.Filename == "" {
		reply.Filename = filename
	}

	downloadURL, err := c.endpointURL("files", reply.Filename)
	if err != nil {
		return "", err
	}
	c.logger.Info("bundle uploaded", "url", downloadURL, "bytes", len(encoded))
	return downloadURL, nil
}

// writeUploadForm writes a multipart form carrying encoded as the
// "file" field to w and returns the form's content type.
func writeUploadForm(w io.Writer, filename string, encoded []byte) (string, error) {
	writer := multipart.NewWriter(w)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(encoded); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}
	return writer.FormDataContentType(), nil
}

// Download fetches the body at rawURL.
func (c *Client) Download(ctx context.Context, rawURL string) ([]byte, error) {
	var data []byte
	err := c.retry(ctx, "download", func() error {
		var err error
		data, err = c.get(ctx, rawURL)
		return err
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("bundle downloaded", "url", rawURL, "bytes", len(data))
	return data, nil
}

// DownloadChunks fetches and decodes the bundle at rawURL. A body that
// is not a well-formed bundle counts as a retryable failure, since a
// proxy or a dropped connection may have cut it short.
func (c *Client) DownloadChunks(ctx context.Context, rawURL string) ([]chunk.Chunk, error) {
	var chunks []chunk.Chunk
	err := c.retry(ctx, "download", func() error {
		data, err := c.get(ctx, rawURL)
		if err != nil {
			return err
		}
		chunks, err = bundle.Decode(data)
		return err
	})
	if err != nil {
		return nil, err
	}
	c.logger.Info("bundle downloaded", "url", rawURL, "chunks", len(chunks))
	return chunks, nil
}

// Cleanup asks the relay to delete bundles older than maxAge and
// returns how many it deleted.
func (c *Client) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	cleanupURL, err := c.endpointURL("cleanup")
	if err != nil {
		return 0, err
	}
	payload, err := json.Marshal(map[string]int64{"max_age_seconds": int64(maxAge / time.Second)})
	if err != nil {
		return 0, fmt.Errorf("encoding cleanup request: %w", err)
	}

	var reply struct {
		DeletedCount int `json:"deleted_count"`
	}
	err = c.retry(ctx, "cleanup", func() error {
		request, err := http.NewRequestWithContext(ctx, http.MethodPost, cleanupURL, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		request.Header.Set("Content-Type", "application/json")
		return c.doJSON(request, &reply)
	})
	if err != nil {
		return 0, err
	}
	c.logger.Info("relay cleanup finished", "deleted", reply.DeletedCount)
	return reply.DeletedCount, nil
}

// Stats fetches the relay's storage summary.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	statsURL, err := c.endpointURL("stats")
	if err != nil {
		return Stats{}, err
	}
	var stats Stats
	err = c.retry(ctx, "stats", func() error {
		request, err := http.NewRequestWithContext(ctx, http.MethodGet, statsURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		return c.doJSON(request, &stats)
	})
	return stats, err
}

// retry runs operation until it succeeds, returns a permanent error,
// or exhausts the retry budget.
func (c *Client) retry(ctx context.Context, operationName string, operation func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryInterval
	policy.MaxElapsedTime = 0

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := operation()
		if err == nil || retryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.maxRetries)), ctx),
		func(err error, delay time.Duration) {
			c.logger.Warn("relay request failed, retrying",
				"operation", operationName,
				"attempt", attempt,
				"delay", delay,
				"error", err,
			)
		})
}

// retryable reports whether err may succeed on another attempt.
func retryable(err error) bool {
	var statusError *StatusError
	if errors.As(err, &statusError) {
		return statusError.Temporary()
	}
	return errors.Is(err, chunk.ErrIO) || errors.Is(err, chunk.ErrMalformedBundle)
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("building request for %s: %w", rawURL, err))
	}
	response, err := c.send(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	data, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", chunk.ErrIO, rawURL, err)
	}
	return data, nil
}

func (c *Client) doJSON(request *http.Request, into any) error {
	response, err := c.send(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()
	if err := json.NewDecoder(response.Body).Decode(into); err != nil {
		return fmt.Errorf("decoding reply from %s %s: %w", request.Method, request.URL, err)
	}
	return nil
}

// send performs one request. Network failures are wrapped in
// chunk.ErrIO; non-2xx replies become *StatusError.
func (c *Client) send(request *http.Request) (*http.Response, error) {
	request.Header.Set("User-Agent", version.UserAgent())
	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", chunk.ErrIO, request.Method, request.URL, err)
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		defer response.Body.Close()
		statusError := &StatusError{
			Method:     request.Method,
			URL:        request.URL.String(),
			StatusCode: response.StatusCode,
		}
		var reply struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(io.LimitReader(response.Body, 64*1024)).Decode(&reply); err == nil {
			statusError.Message = reply.Error
		}
		return nil, statusError
	}
	return response, nil
}

// IsHTTPURL reports whether s is an http:// or https:// URL.
func IsHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// FilenameFromURL returns the last path segment of rawURL, or false if
// rawURL does not parse or its path ends in '/'.
func FilenameFromURL(rawURL string) (string, bool) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Path == "" || strings.HasSuffix(parsed.Path, "/") {
		return "", false
	}
	return path.Base(parsed.Path), true
}

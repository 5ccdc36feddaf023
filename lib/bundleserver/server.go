// Copyright 2026 The Shrlink Authors
// SPDX-License-Identifier: Apache-2.0

// Package bundleserver is the HTTP relay for shrlink bundles: senders
// upload a bundle and get back a URL, receivers download it from that
// URL, and operators expire old bundles.
//
// Routes:
//
//	POST /upload          multipart form, field "file"
//	GET  /files/{name}    bundle bytes
//	POST /cleanup         {"max_age_seconds": n} -> {"deleted_count": n}
//	GET  /stats           {"total_files": n, "total_bytes": n}
//	GET  /health          {"status": "ok"}
//
// Uploads are checked structurally (header, metadata table, length)
// before they are stored; a bundle that could never decode is rejected
// with 400. Payload digests are not checked here: integrity is verified
// end to end by the receiver.
package bundleserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/shrlink/shrlink/lib/bundlestore"
	"github.com/shrlink/shrlink/lib/chunk"
)

// UploadField is the multipart form field that carries the bundle.
const UploadField = "file"

// multipartOverhead is the slack allowed on top of MaxUploadBytes for
// multipart boundaries and part headers.
const multipartOverhead = 64 * 1024

// Config configures a Server.
type Config struct {
	// Store holds the bundles. Required.
	Store *bundlestore.Store

	// MaxUploadBytes caps the size of an uploaded bundle. Required.
	MaxUploadBytes int64

	// CacheBytes is the memory budget for recently downloaded bundles.
	// Zero disables caching.
	CacheBytes int64

	// Logger receives one record per request. Nil discards.
	Logger *slog.Logger
}

// Server implements the relay's HTTP API.
type Server struct {
	store          *bundlestore.Store
	maxUploadBytes int64
	cache          *ristretto.Cache[string, []byte]
	logger         *slog.Logger
	router         chi.Router
}

// UploadResponse is the body of a successful upload.
type UploadResponse struct {
	Status   string `json:"status"`
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

// CleanupRequest is the body of POST /cleanup.
type CleanupRequest struct {
	MaxAgeSeconds int64 `json:"max_age_seconds"`
}

// CleanupResponse is the reply to POST /cleanup.
type CleanupResponse struct {
	DeletedCount int `json:"deleted_count"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// New builds a server over config.Store.
func New(config Config) (*Server, error) {
	if config.Store == nil {
		return nil, fmt.Errorf("bundleserver: Store is required")
	}
	if config.MaxUploadBytes <= 0 {
		return nil, fmt.Errorf("bundleserver: MaxUploadBytes must be positive, got %d", config.MaxUploadBytes)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	server := &Server{
		store:          config.Store,
		maxUploadBytes: config.MaxUploadBytes,
		logger:         logger,
	}

	if config.CacheBytes > 0 {
		cache, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
			// Ten counters per expected entry, assuming 64 KiB average
			// bundles, as the ristretto docs recommend.
			NumCounters: max(config.CacheBytes/(64*1024)*10, 1000),
			MaxCost:     config.CacheBytes,
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("bundleserver: creating download cache: %w", err)
		}
		server.cache = cache
	}

	server.router = server.routes()
	return server, nil
}

func (s *Server) routes() chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(s.logRequests)
	router.Use(middleware.Recoverer)

	router.Get("/health", s.handleHealth)
	router.Post("/upload", s.handleUpload)
	router.Get("/files/{name}", s.handleDownload)
	router.Post("/cleanup", s.handleCleanup)
	router.Get("/stats", s.handleStats)
	return router
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases the download cache.
func (s *Server) Close() {
	if s.cache != nil {
		s.cache.Close()
	}
}

// logRequests logs every request with its outcome, in the style of
// chi's middleware.Logger but through slog.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(wrapped, r)

		status := wrapped.Status()
		if status == 0 {
			status = http.StatusOK
		}
		level := slog.LevelInfo
		if status >= 500 {
			level = slog.LevelError
		}
		s.logger.Log(r.Context(), level, "http request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
			"status", status,
			"bytes", wrapped.BytesWritten(),
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+multipartOverhead)

	file, header, err := r.FormFile(UploadField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", s.maxUploadBytes))
			return
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("multipart field %q is required: %v", UploadField, err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.maxUploadBytes+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("reading upload: %v", err))
		return
	}
	if int64(len(data)) > s.maxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", s.maxUploadBytes))
		return
	}

	name, err := uploadName(header.Filename)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	metadata, err := s.store.Put(name, data)
	switch {
	case errors.Is(err, chunk.ErrMalformedBundle), errors.Is(err, bundlestore.ErrInvalidName):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.logger.Error("storing upload failed", "name", name, "error", err)
		writeError(w, http.StatusInternalServerError, "storing upload failed")
		return
	}

	if s.cache != nil {
		s.cache.Del(name)
	}
	writeJSON(w, http.StatusOK, UploadResponse{
		Status:   "success",
		Filename: metadata.FileName(),
		Size:     metadata.Size,
	})
}

// uploadName derives the store name from the client-supplied file name.
// Directory components and the .shr extension are dropped; if nothing
// is left the bundle gets a random name.
func uploadName(filename string) (string, error) {
	if index := strings.LastIndexAny(filename, `/\`); index >= 0 {
		filename = filename[index+1:]
	}
	filename = strings.TrimSuffix(filename, bundlestore.BundleExtension)
	if filename == "" {
		return uuid.New().String(), nil
	}
	if err := bundlestore.ValidateName(filename); err != nil {
		return "", err
	}
	return filename, nil
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	fileName := chi.URLParam(r, "name")
	name, err := bundlestore.NameFromFileName(fileName)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	setDownloadHeaders(w, name+bundlestore.BundleExtension)

	if s.cache != nil {
		if data, found := s.cache.Get(name); found {
			w.Header().Set("Content-Length", strconv.Itoa(len(data)))
			w.Header().Set("X-Cache", "hit")
			w.WriteHeader(http.StatusOK)
			w.Write(data)
			return
		}
	}

	reader, metadata, err := s.store.Open(name)
	if err != nil {
		w.Header().Del("Content-Disposition")
		if errors.Is(err, bundlestore.ErrNotFound) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("file %s not found", fileName))
			return
		}
		s.logger.Error("opening bundle failed", "name", name, "error", err)
		writeError(w, http.StatusInternalServerError, "opening bundle failed")
		return
	}
	defer reader.Close()

	if s.cache != nil && metadata.Size <= s.cacheableSize() {
		data, err := io.ReadAll(reader)
		if err != nil {
			s.logger.Error("reading bundle failed", "name", name, "error", err)
			writeError(w, http.StatusInternalServerError, "reading bundle failed")
			return
		}
		s.cache.Set(name, data, int64(len(data)))
		w.Header().Set("Content-Length", strconv.Itoa(len(data)))
		w.Header().Set("X-Cache", "miss")
		w.WriteHeader(http.StatusOK)
		w.Write(data)
		return
	}

	http.ServeContent(w, r, fileName, metadata.StoredAt, reader)
}

// cacheableSize is the largest bundle worth caching: anything bigger
// than a quarter of the budget would evict most of the cache.
func (s *Server) cacheableSize() int64 {
	return s.cache.MaxCost() / 4
}

func setDownloadHeaders(w http.ResponseWriter, fileName string) {
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	w.Header().Set("Access-Control-Allow-Origin", "*")
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	var request CleanupRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&request); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid cleanup request: %v", err))
		return
	}
	if request.MaxAgeSeconds < 0 {
		writeError(w, http.StatusBadRequest, "max_age_seconds must not be negative")
		return
	}

	deleted, err := s.Cleanup(time.Duration(request.MaxAgeSeconds) * time.Second)
	if err != nil {
		s.logger.Error("cleanup failed", "deleted", deleted, "error", err)
		writeError(w, http.StatusInternalServerError, "cleanup failed")
		return
	}
	writeJSON(w, http.StatusOK, CleanupResponse{DeletedCount: deleted})
}

// Cleanup deletes bundles stored longer ago than maxAge (all of them
// if maxAge <= 0) and drops the download cache when anything was
// deleted, so an expired bundle cannot be served from memory. Bundles
// deleted before an error are still evicted.
func (s *Server) Cleanup(maxAge time.Duration) (int, error) {
	deleted, err := s.store.Cleanup(maxAge)
	if s.cache != nil && deleted > 0 {
		s.cache.Clear()
	}
	return deleted, err
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats()
	if err != nil {
		s.logger.Error("collecting stats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "collecting stats failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// Package server exposes a database over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"

	"github.com/VictoriaMetrics/metrics"
	"github.com/go-chi/chi/v5"
	"reduction.dev/mergekv/dkv"
	"reduction.dev/mergekv/dkv/fields"
	"reduction.dev/mergekv/dkv/kv"
	"reduction.dev/mergekv/logging"
	"reduction.dev/mergekv/telemetry"
	"reduction.dev/mergekv/util/httpu"
	"reduction.dev/mergekv/util/netu"
)

const contentTypeJSON = "application/json"

// Store is the part of the database served over HTTP.
type Store interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	Get(key []byte) ([]byte, error)
	ScanPrefix(prefix []byte, errOut *error) iter.Seq2[[]byte, []byte]
	Flush()
	Compact()
	TableCounts() []int
	Diagnostics() string
}

type Server struct {
	store  Store
	logger *slog.Logger
}

func New(store Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{store: store, logger: logger}
}

// Handler routes requests to the store.
//
//	GET    /health
//	GET    /kv/{key...}      value bytes, 404 when missing
//	PUT    /kv/{key...}      body is the value, an empty body deletes
//	DELETE /kv/{key...}
//	GET    /scan?prefix=&limit=
//	POST   /admin/flush
//	POST   /admin/compact
//	GET    /admin/tables
//	GET    /admin/diagnostics
//	GET    /metrics          storage metrics
//	GET    /metrics/http     HTTP server metrics
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(telemetry.Middleware)

	r.Get("/health", s.handleHealth)
	r.Route("/kv", func(r chi.Router) {
		r.Get("/*", s.handleGet)
		r.Put("/*", s.handlePut)
		r.Delete("/*", s.handleDelete)
	})
	r.Get("/scan", s.handleScan)
	r.Route("/admin", func(r chi.Router) {
		r.Post("/flush", s.handleFlush)
		r.Post("/compact", s.handleCompact)
		r.Get("/tables", s.handleTables)
		r.Get("/diagnostics", s.handleDiagnostics)
	})
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w, false)
	})
	r.Method(http.MethodGet, "/metrics/http", telemetry.Handler())

	return logging.NewHTTPHandler(r, s.logger)
}

// Serve handles requests on l until ctx is canceled.
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	addr, err := netu.ResolveAddr(l.Addr().String())
	if err != nil {
		return err
	}
	s.logger.Info("serving", "url", addr)
	return httpu.NewServer(s.Handler(), s.logger).Serve(ctx, l)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	key, ok := keyParam(w, r)
	if !ok {
		return
	}
	value, err := s.store.Get(key)
	if errors.Is(err, kv.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(value)
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	key, ok := keyParam(w, r)
	if !ok {
		return
	}
	value, err := io.ReadAll(http.MaxBytesReader(w, r.Body, fields.MaxVarBytesLen))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			http.Error(w, "value too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "can't read body", http.StatusBadRequest)
		return
	}
	if err := s.store.Put(key, value); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	key, ok := keyParam(w, r)
	if !ok {
		return
	}
	if err := s.store.Delete(key); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type scanEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type scanResponse struct {
	Entries []scanEntry `json:"entries"`
	// More is set when the limit stopped the scan before the last key.
	More bool `json:"more"`
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	prefix := []byte(r.URL.Query().Get("prefix"))
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			http.Error(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	resp := scanResponse{Entries: []scanEntry{}}
	var err error
	for k, v := range s.store.ScanPrefix(prefix, &err) {
		if limit > 0 && len(resp.Entries) == limit {
			resp.More = true
			break
		}
		resp.Entries = append(resp.Entries, scanEntry{Key: string(k), Value: string(v)})
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	s.store.Flush()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleCompact(w http.ResponseWriter, r *http.Request) {
	s.store.Compact()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleTables(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]int{"tableCounts": s.store.TableCounts()})
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, s.store.Diagnostics()+"\n")
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, dkv.ErrEntryTooLarge) {
		http.Error(w, err.Error(), http.StatusRequestEntityTooLarge)
		return
	}
	s.internalError(w, r, err)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}

// keyParam reads the key from the wildcard path segment. Chi routes on the raw
// path when the request path has escapes that change its meaning, like %2F.
func keyParam(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	key := chi.URLParam(r, "*")
	if r.URL.RawPath != "" {
		var err error
		if key, err = url.PathUnescape(key); err != nil {
			http.Error(w, "invalid key escaping", http.StatusBadRequest)
			return nil, false
		}
	}
	if key == "" {
		http.Error(w, "missing key", http.StatusBadRequest)
		return nil, false
	}
	return []byte(key), true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Package api exposes the HTTP control surface for the indexing service:
// start/stop a full run and request a single-page re-index (spec.md §6).
//
// Grounded on the teacher's internal/api/server.go: chi router, a
// request-ID/logging/recovery middleware stack, and an optional API-key
// gate, adapted to log through zap (this project's chosen logger, see
// DESIGN.md) instead of the teacher's log/slog.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/anvil-search/indexer/internal/coordinator"
	idgen "github.com/anvil-search/indexer/internal/id/uuid"
	"github.com/anvil-search/indexer/internal/metrics"
)

// SiteSeed mirrors coordinator.SiteSeed so callers need not import the
// coordinator package just to configure the Server.
type SiteSeed = coordinator.SiteSeed

// AuthConfig controls the optional API-key gate.
type AuthConfig struct {
	Enabled bool
	APIKey  string
}

// Server wires HTTP handlers to the Indexing Coordinator (C9).
type Server struct {
	router      chi.Router
	coordinator *coordinator.Coordinator
	sites       []SiteSeed
	logger      *zap.Logger
}

// NewServer constructs a Server with its middleware stack and routes
// already mounted.
func NewServer(coord *coordinator.Coordinator, sites []SiteSeed, auth AuthConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{coordinator: coord, sites: sites, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.HTTPMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))
	if auth.Enabled {
		r.Use(apiKeyMiddleware(auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/metrics", metrics.Handler().ServeHTTP)

	r.Route("/api", func(r chi.Router) {
		r.Get("/startIndexing", s.startIndexing)
		r.Get("/stopIndexing", s.stopIndexing)
		r.Post("/indexPage", s.indexPage)
		r.Get("/status", s.status)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// startIndexing implements GET /api/startIndexing (spec.md §6).
func (s *Server) startIndexing(w http.ResponseWriter, r *http.Request) {
	if err := s.coordinator.Start(r.Context(), s.sites); err != nil {
		writeResult(w, http.StatusBadRequest, false, err.Error())
		return
	}
	writeResult(w, http.StatusOK, true, "")
}

// stopIndexing implements GET /api/stopIndexing (spec.md §6).
func (s *Server) stopIndexing(w http.ResponseWriter, r *http.Request) {
	if err := s.coordinator.Stop(); err != nil {
		writeResult(w, http.StatusBadRequest, false, err.Error())
		return
	}
	writeResult(w, http.StatusOK, true, "")
}

// indexPage implements POST /api/indexPage?url=… (spec.md §6).
func (s *Server) indexPage(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		writeResult(w, http.StatusBadRequest, false, "Invalid URL")
		return
	}
	ok, err := s.coordinator.IndexPage(r.Context(), rawURL)
	if err != nil {
		writeResult(w, http.StatusBadRequest, false, "Invalid URL")
		return
	}
	if !ok {
		writeResult(w, http.StatusBadRequest, false, "URL is outside configured sites")
		return
	}
	writeResult(w, http.StatusOK, true, "")
}

// status is a minimal supplement beyond spec.md's literal HTTP surface
// (DESIGN.md Open Question decision): it exposes whether a run is active
// and a snapshot of the Errors Sink, since the statistics endpoint spec.md
// defers to is explicitly out of scope.
func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	errs := s.coordinator.Errors()
	payload := struct {
		Running bool    `json:"running"`
		Errors  []entry `json:"errors"`
	}{
		Running: s.coordinator.Running(),
		Errors:  make([]entry, len(errs)),
	}
	for i, e := range errs {
		payload.Errors[i] = entry{
			Timestamp: e.Timestamp,
			Kind:      string(e.Kind),
			Message:   e.Message,
			URL:       e.URL,
			Operation: e.Operation,
		}
	}
	writeJSON(w, http.StatusOK, payload)
}

type entry struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	URL       string    `json:"url"`
	Operation string    `json:"operation"`
}

var requestIDs = idgen.New()

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID, err := requestIDs.NewID()
		if err != nil {
			reqID = "unknown"
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("panic", rec))
				writeResult(w, http.StatusInternalServerError, false, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeResult(w, http.StatusForbidden, false, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload) //nolint:errcheck // response already committed
}

// result is the {"result", "error?"} shape spec.md §6 mandates for every
// control-plane response.
type result struct {
	Result bool   `json:"result"`
	Error  string `json:"error,omitempty"`
}

func writeResult(w http.ResponseWriter, status int, ok bool, errMsg string) {
	writeJSON(w, status, result{Result: ok, Error: errMsg})
}

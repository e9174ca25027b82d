// Package dashboard serves the curation snapshot as a single read-only JSON
// endpoint, adapted from the teacher's internal/server router-construction
// style but deliberately narrower: it holds no reference to the graph store
// or vector index, and cannot query them even by mistake (spec §6's
// "Snapshot vs. live" design note) — GET /api/snapshot is the only data
// route, and it only ever reads the file internal/snapshot last wrote; the
// other routes are a GET /health liveness probe and, when built with the ui
// tag, the static viewer.
package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/elefante-ai/elefante/internal/snapshot"
)

// Config holds the dependencies and settings for a Server.
type Config struct {
	SnapshotPath string // Path to the JSON file internal/snapshot writes.
	Port         int
	Logger       *slog.Logger
	UIFS         fs.FS // Embedded viewer UI, nil when built without the ui tag.
}

// Server is the dashboard HTTP server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new dashboard server with its snapshot and health routes
// configured.
func New(cfg Config) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/snapshot", snapshotHandler(cfg.SnapshotPath, cfg.Logger))
	mux.HandleFunc("GET /health", healthHandler)

	if cfg.UIFS != nil {
		mux.Handle("/", newSPAHandler(cfg.UIFS))
		cfg.Logger.Info("dashboard: ui enabled, serving viewer at /")
	}

	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		logger: cfg.Logger,
	}
}

// Start begins serving HTTP requests. Blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("dashboard: http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx interface {
	Done() <-chan struct{}
	Err() error
	Deadline() (time.Time, bool)
	Value(any) any
}) error {
	s.logger.Info("dashboard: http server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// snapshotHandler reads and returns the snapshot file on every request. The
// file is small (a JSON graph of memories and entities, not a live
// database), so re-reading it per request is simpler and safer than caching
// it in memory and risking staleness drift against what
// cmd/elefante-snapshot last wrote.
func snapshotHandler(path string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := snapshot.ReadFile(path)
		if err != nil {
			logger.Warn("dashboard: snapshot unavailable", "error", err)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"snapshot not yet generated"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(snap)
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func loggingMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logger.Debug("dashboard: request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func recoveryMiddleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("dashboard: panic recovered", "error", rec, "path", r.URL.Path)
				w.WriteHeader(http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

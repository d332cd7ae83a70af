// Package api exposes the replay service over HTTP: replay submission,
// job status polling, and retrieval of processed metadata and frames.
package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/rlviewer/telemetry/internal/cache"
	"github.com/rlviewer/telemetry/internal/job"
	"github.com/rlviewer/telemetry/internal/model"
	"github.com/rlviewer/telemetry/internal/storage"
)

// maxReplayBody caps accepted replay document uploads.
const maxReplayBody = 256 << 20

// Store is the storage surface the handlers read from.
type Store interface {
	GetReplay(ctx context.Context, id string) (*model.Replay, error)
	GetFrames(ctx context.Context, id string) ([]byte, error)
	GetCarPlayerMap(ctx context.Context, id string) (map[string]string, error)
	ListReplays(ctx context.Context, limit int) ([]storage.ReplaySummary, error)
	DeleteReplay(ctx context.Context, id string) error
}

// Submitter enqueues replay processing work.
type Submitter interface {
	Submit(j job.Job) error
}

// RequestRecorder receives per-request timing points. Nil disables it.
type RequestRecorder interface {
	RecordRequest(route, method string, status int, duration time.Duration)
}

// Server is the HTTP front of the replay service.
type Server struct {
	addr        string
	corsOrigins []string

	store    Store
	jobs     *job.Store
	runner   Submitter
	recorder RequestRecorder
	replays  *cache.ReplayCache
	log      *slog.Logger

	httpServer *http.Server
}

// NewServer wires the HTTP server. recorder may be nil.
func NewServer(addr string, corsOrigins []string, store Store, jobs *job.Store, runner Submitter, recorder RequestRecorder, log *slog.Logger) *Server {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}
	return &Server{
		addr:        addr,
		corsOrigins: corsOrigins,
		store:       store,
		jobs:        jobs,
		runner:      runner,
		recorder:    recorder,
		replays:     cache.NewReplayCache(cache.DefaultCapacity),
		log:         log,
	}
}

// Router builds the route table. Exposed for tests.
func (s *Server) Router() http.Handler {
	router := mux.NewRouter()
	router.Use(s.timed)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods("GET")
	api.HandleFunc("/replays", s.handleSubmitReplay).Methods("POST")
	api.HandleFunc("/replays", s.handleListReplays).Methods("GET")
	api.HandleFunc("/replays/{id}/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/replays/{id}/frames", s.handleFrames).Methods("GET")
	api.HandleFunc("/replays/{id}/frames.json", s.handleFramesJSON).Methods("GET")
	api.HandleFunc("/replays/{id}/carmap", s.handleCarMap).Methods("GET")
	api.HandleFunc("/replays/{id}", s.handleGetReplay).Methods("GET")
	api.HandleFunc("/replays/{id}", s.handleDeleteReplay).Methods("DELETE")

	c := cors.New(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})

	return c.Handler(router)
}

// Start blocks serving HTTP until Stop or a listener error.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.Router(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	s.log.Info("HTTP server listening", "addr", s.addr)
	return s.httpServer.ListenAndServe()
}

// Stop shuts the server down, letting in-flight requests finish.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// statusWriter captures the response code for the timing middleware.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) timed(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		elapsed := time.Since(start)
		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		if s.recorder != nil {
			s.recorder.RecordRequest(route, r.Method, sw.status, elapsed)
		}
		s.log.Debug("request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", elapsed)
	})
}

// newReplayID generates a random hex replay id.
func newReplayID() string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "replay_" + hex.EncodeToString([]byte(time.Now().Format("150405.000")))
	}
	return hex.EncodeToString(buf)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

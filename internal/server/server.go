package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/lazypower/hebbian/internal/engine"
	"github.com/lazypower/hebbian/internal/store"
)

// SessionHeader carries the caller's session id. Requests without one get a
// fresh id, echoed back in the same header.
const SessionHeader = "X-Hebbian-Session"

// Server is the hebbian HTTP API server.
type Server struct {
	db      *store.DB
	router  chi.Router
	version string
	started time.Time
	logger  *zap.Logger
	engOpts []engine.Option
	timeout time.Duration
	origins []string
}

// Option configures a Server.
type Option func(*Server)

// WithEngineOptions passes options to every engine the server creates.
func WithEngineOptions(opts ...engine.Option) Option {
	return func(s *Server) { s.engOpts = append(s.engOpts, opts...) }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRequestTimeout bounds every API request.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) { s.timeout = d }
}

// WithAllowedOrigins enables CORS for browser clients on origins. Patterns
// may use one "*" wildcard, as in "http://localhost:*".
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) { s.origins = append(s.origins, origins...) }
}

// New creates a new Server with the given database and version string.
func New(db *store.DB, version string, opts ...Option) *Server {
	s := &Server{
		db:      db,
		version: version,
		started: time.Now(),
		logger:  zap.NewNop(),
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if len(s.origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.origins,
			AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", SessionHeader},
			ExposedHeaders: []string{SessionHeader},
			MaxAge:         300,
		}))
	}

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(s.timeout))

		r.Get("/health", s.handleHealth)

		r.Post("/record", s.handleRecord)
		r.Post("/recall", s.handleRecall)
		r.Post("/errors", s.handleRecordError)
		r.Post("/errors/resolve", s.handleResolveError)
		r.Put("/embeddings", s.handleSetEmbedding)

		r.Post("/decay", s.handleDecay)
		r.Post("/consolidate", s.handleConsolidate)

		r.Get("/stats", s.handleStats)
		r.Get("/tokens", s.handleTokens)
		r.Get("/superhighways", s.handleSuperhighways)
		r.Get("/coverage", s.handleCoverage)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbOK := true
	if err := s.db.PingContext(r.Context()); err != nil {
		dbOK = false
	}
	schema, _ := s.db.SchemaVersion()

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        s.version,
		"uptime":         time.Since(s.started).Seconds(),
		"db":             dbOK,
		"db_path":        s.db.Path,
		"schema_version": schema,
	})
}

// engine returns an engine bound to the request's session, setting the
// session header on the response.
func (s *Server) engine(w http.ResponseWriter, r *http.Request) *engine.Engine {
	session := r.Header.Get(SessionHeader)
	if session == "" {
		session = r.URL.Query().Get("session_id")
	}
	if session == "" {
		session = newSessionID()
	}
	w.Header().Set(SessionHeader, session)
	opts := append([]engine.Option{engine.WithLogger(s.logger)}, s.engOpts...)
	return engine.New(s.db, session, opts...)
}

// RunMaintenance decays and consolidates the graph every interval until
// ctx is cancelled. Failures are logged and retried on the next tick.
func (s *Server) RunMaintenance(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	eng := engine.New(s.db, "", append([]engine.Option{engine.WithLogger(s.logger)}, s.engOpts...)...)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := eng.Decay(ctx); err != nil {
				s.logger.Warn("scheduled decay failed", zap.Error(err))
				continue
			}
			if _, err := eng.Consolidate(ctx); err != nil {
				s.logger.Warn("scheduled consolidation failed", zap.Error(err))
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

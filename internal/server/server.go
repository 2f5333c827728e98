// Package server provides the HTTP API for Kensaku.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/kensaku/internal/config"
	"github.com/hyperjump/kensaku/internal/search"
)

// Server is the HTTP server for the Kensaku API.
type Server struct {
	handlerName string
	deps        search.Deps
	config      *config.Config
	logger      *zap.Logger
	server      *http.Server
}

// NewServer creates a server. Every request builds its own source handler from deps,
// so rebuild batches and error sinks are never shared between requests.
func NewServer(handlerName string, deps search.Deps, cfg *config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Logger == nil {
		deps.Logger = logger
	}
	if cfg == nil {
		cfg = &config.Config{}
		config.ApplyDefaults(cfg)
	}
	return &Server{
		handlerName: handlerName,
		deps:        deps,
		config:      cfg,
		logger:      logger,
	}
}

// Router returns the API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Get("/users/{userID}/content", s.handleUserContent)
		r.Post("/index", s.handleInsert)
		r.Patch("/index/{contentType}/{contentID}", s.handleUpdate)
		r.Delete("/index/{contentType}", s.handleDelete)
		r.Post("/import", s.handleImport)
		r.Get("/status", s.handleStatus)
	})
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.config.Server.Addr()
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr), zap.String("source_handler", s.handlerName))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) newHandler() (search.SourceHandler, error) {
	return search.NewSourceHandler(s.handlerName, s.deps)
}

// RequestIDHeader carries the per-request id, generated when the client sends none.
const RequestIDHeader = "X-Request-ID"

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), middleware.RequestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Package httpserver provides the HTTP REST API for the citation
// exploration service.
package httpserver

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/Robs-Git-Hub/citation-compass-discover/internal/citegraph"
	"github.com/Robs-Git-Hub/citation-compass-discover/internal/domain"
	"github.com/Robs-Git-Hub/citation-compass-discover/internal/store"
	"github.com/Robs-Git-Hub/citation-compass-discover/internal/topics"
)

// PaperSearcher finds papers matching a free-text query.
type PaperSearcher interface {
	SearchPapers(ctx context.Context, query string, limit int) (*citegraph.SearchResult, error)
}

// ExpansionEngine runs the traversal and enrichment passes.
type ExpansionEngine interface {
	SelectPaper(ctx context.Context, paperID string) (*domain.Paper, error)
	ExpandSecondDegree(ctx context.Context, firstDegree []domain.Citation, onProgress domain.ProgressFunc) (map[string][]domain.Citation, error)
	EligibleForEnrichment(ctx context.Context, papers []domain.Paper) ([]domain.Paper, error)
	BackfillAbstracts(ctx context.Context, papers []domain.Paper, apiKey string, onProgress domain.ProgressFunc) ([]domain.AbstractFetchResult, error)
}

// TopicLabeller labels the explored papers.
type TopicLabeller interface {
	AssignAll(ctx context.Context, apiKey string) (*topics.Result, error)
}

// Server is the HTTP REST API server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	searcher   PaperSearcher
	engine     ExpansionEngine
	labeller   TopicLabeller
	store      *store.Store
	validate   *validator.Validate
	logger     zerolog.Logger
	metrics    MetricsConfig
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	Metrics         MetricsConfig
}

// MetricsConfig controls the metrics endpoint.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// NewServer creates a new HTTP server with all dependencies.
func NewServer(cfg Config, searcher PaperSearcher, eng ExpansionEngine, labeller TopicLabeller, st *store.Store, logger zerolog.Logger) *Server {
	s := &Server{
		searcher: searcher,
		engine:   eng,
		labeller: labeller,
		store:    st,
		validate: validator.New(),
		logger:   logger.With().Str("component", "http-server").Logger(),
		metrics:  cfg.Metrics,
	}

	s.router = s.buildRouter()

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	return s
}

// buildRouter creates the chi router with all middleware and routes.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(correlationIDMiddleware)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.healthHandler)
	if s.metrics.Enabled {
		path := s.metrics.Path
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, promhttp.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/search", s.searchPapers)
		r.Post("/papers/{paperID}/select", s.selectPaper)
		r.Post("/expand", s.expandSecondDegree)
		r.Post("/enrich", s.enrichAbstracts)
		r.Post("/topics", s.assignTopics)
		r.Get("/graph", s.getGraph)
		r.Get("/progress", s.streamProgress)
	})

	return r
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthHandler returns basic liveness status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

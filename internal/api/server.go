package api

import (
	"log/slog"
	"net/http"

	"github.com/dgallion1/taxgest/internal/config"
	"github.com/dgallion1/taxgest/internal/extract"
	"github.com/dgallion1/taxgest/internal/metrics"
	"github.com/dgallion1/taxgest/internal/pipeline"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the HTTP API server for taxgest.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	claude       *extract.ClaudeClient
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server. claude may be nil when
// the capability is not an HTTP client; LLM stats are then unavailable.
func NewServer(orch *pipeline.Orchestrator, claude *extract.ClaudeClient, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		orchestrator: orch,
		claude:       claude,
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.TaxgestAPIKey, s.log))

		r.Post("/api/returns", s.handleUpload)
		r.Post("/api/returns/batch", s.handleBatchUpload)
		r.Get("/api/returns/jobs/{jobID}", s.handleJobStatus)
		r.Post("/api/returns/detect-year", s.handleDetectYear)

		r.Get("/api/returns", s.handleListReturns)
		r.Get("/api/returns/{year}", s.handleGetReturn)
		r.Delete("/api/returns/{year}", s.handleDeleteReturn)
		r.Get("/api/returns/{year}/export.xlsx", s.handleExportReturn)

		r.Get("/api/stats/llm", s.handleLLMStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

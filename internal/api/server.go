package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/dgallion1/docredact/internal/config"
	"github.com/dgallion1/docredact/internal/pipeline"
	"github.com/dgallion1/docredact/internal/sink"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Server is the HTTP API server for docredact.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	records      *sink.PathstoreSink
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server. records may be nil when
// pathstore is not configured; the record endpoints then answer 503.
func NewServer(orch *pipeline.Orchestrator, records *sink.PathstoreSink, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		orchestrator: orch,
		records:      records,
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

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.DocredactAPIKey, s.log))

		r.Post("/api/redact", s.handleRedact)
		r.Post("/api/redact/batch", s.handleBatchRedact)
		r.Get("/api/redact/{jobID}/status", s.handleRedactStatus)
		r.Get("/api/redact/{jobID}/download", s.handleDownload)

		r.Get("/api/redactions", s.handleListRedactions)
		r.Get("/api/redactions/{docID}", s.handleGetRedaction)
		r.Delete("/api/redactions/{docID}", s.handleDeleteRedaction)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"queue_depth": s.orchestrator.QueueDepth(),
		"jobs":        s.orchestrator.JobCount(),
		"pathstore":   s.records != nil,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

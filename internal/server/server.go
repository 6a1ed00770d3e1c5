// Package server exposes parsing, link checking, evaluation and export over
// HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/contentgrade/internal/document"
	"github.com/hyperifyio/contentgrade/internal/evaluate"
	"github.com/hyperifyio/contentgrade/internal/linkcheck"
	"github.com/hyperifyio/contentgrade/internal/metrics"
)

// Config contains server configuration.
type Config struct {
	Addr           string
	CORSEnabled    bool
	MaxUploadBytes int64
	Extensions     []string
	Version        string
	// LLMBaseURL and LLMCache go into export footers.
	LLMBaseURL string
	LLMCache   bool
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		CORSEnabled:    true,
		MaxUploadBytes: document.DefaultMaxBytes,
		Extensions:     document.DefaultExtensions,
		Version:        "dev",
	}
}

// Deps are the collaborators the handlers call. Metrics may be nil.
type Deps struct {
	Parser    *document.Parser
	Loader    evaluate.Source
	Checker   *linkcheck.Checker
	Evaluator *evaluate.Evaluator
	Metrics   *metrics.Metrics
}

// Server is the HTTP API.
type Server struct {
	cfg     Config
	deps    Deps
	mux     *http.ServeMux
	handler http.Handler
	server  *http.Server
}

// New wires routes and middleware.
func New(cfg Config, deps Deps) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = document.DefaultMaxBytes
	}
	if deps.Parser == nil {
		deps.Parser = &document.Parser{}
	}
	if deps.Checker == nil {
		deps.Checker = linkcheck.New()
	}
	s := &Server{cfg: cfg, deps: deps, mux: http.NewServeMux()}
	s.registerRoutes()
	s.handler = s.requestID(s.cors(s.observe(s.mux)))
	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		// Evaluations with link checks can take minutes.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", s.deps.Metrics.Handler())
	s.mux.HandleFunc("POST /api/parse", s.handleParse)
	s.mux.HandleFunc("POST /api/fetch", s.handleFetch)
	s.mux.HandleFunc("POST /api/check-links", s.handleCheckLinks)
	s.mux.HandleFunc("POST /api/evaluate", s.handleEvaluate)
	s.mux.HandleFunc("POST /api/compare", s.handleCompare)
	s.mux.HandleFunc("POST /api/export/{format}", s.handleExport)
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler { return s.handler }

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.cfg.Addr).Str("version", s.cfg.Version).Msg("starting API server")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down API server")
	return s.server.Shutdown(ctx)
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package server exposes the review pipeline over HTTP: a submission form,
// run status, result downloads, and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/pdiddy/slr-engine/internal/ledger"
	"github.com/pdiddy/slr-engine/internal/pipeline"
	"github.com/pdiddy/slr-engine/pkg/types"
)

// ErrBusy is returned when a run is submitted while another is active.
// Runs share one workspace, so they execute one at a time.
var ErrBusy = errors.New("a run is already in progress")

// Runner executes one review. *pipeline.Pipeline implements it.
type Runner interface {
	Run(ctx context.Context, cfg types.PipelineConfig) (pipeline.Result, error)
}

// RunnerFactory builds the Runner for one run. The runner must use runID
// as its run identifier and write progress lines to out.
type RunnerFactory func(runID string, out io.Writer) Runner

// RunLookup reads past runs. *ledger.Store implements it.
type RunLookup interface {
	GetRun(ctx context.Context, id string) (ledger.Run, error)
}

// Config holds HTTP server configuration.
type Config struct {
	Address         string        `json:"address" yaml:"address" mapstructure:"address"`
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout" yaml:"idle_timeout" mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`

	// UploadDir receives PDFs attached to a submission, one subfolder per run.
	UploadDir string `json:"upload_dir" yaml:"upload_dir" mapstructure:"upload_dir"`

	// MaxUploadBytes bounds a multipart submission (default 64 MiB).
	MaxUploadBytes int64 `json:"max_upload_bytes" yaml:"max_upload_bytes" mapstructure:"max_upload_bytes"`
}

// DefaultConfig returns the settings used by slr-engine serve.
func DefaultConfig() Config {
	return Config{
		Address:         ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		UploadDir:       "uploads",
		MaxUploadBytes:  64 << 20,
	}
}

// Server is the HTTP surface of the pipeline.
type Server struct {
	cfg        Config
	base       types.PipelineConfig
	newRunner  RunnerFactory
	lookup     RunLookup
	gatherer   prometheus.Gatherer
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server

	// NewRunID generates run identifiers.
	NewRunID func() string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	runs   map[string]*runRecord
	active string
}

// New returns a Server that starts runs from base with per-request
// overrides. lookup and gatherer may be nil; a nil gatherer serves the
// default Prometheus registry.
func New(cfg Config, base types.PipelineConfig, newRunner RunnerFactory, lookup RunLookup, gatherer prometheus.Gatherer, logger zerolog.Logger) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultConfig().MaxUploadBytes
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:       cfg,
		base:      base,
		newRunner: newRunner,
		lookup:    lookup,
		gatherer:  gatherer,
		logger:    logger.With().Str("component", "http-server").Logger(),
		NewRunID:  uuid.NewString,
		ctx:       ctx,
		cancel:    cancel,
		runs:      make(map[string]*runRecord),
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

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))

	r.Get("/", s.formHandler)
	r.Get("/healthz", s.healthHandler)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/runs", func(r chi.Router) {
		r.Post("/", s.startRun)
		r.Get("/{runID}", s.getRun)
		r.Get("/{runID}/files/{name}", s.getRunFile)
	})
	return r
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	s.logger.Info().Str("address", s.httpServer.Addr).Msg("HTTP server starting")
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on HTTP address: %w", err)
	}
	err = s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests, cancels the active run, and waits for
// it to record its result.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

// Wait blocks until no run is active.
func (s *Server) Wait() { s.wg.Wait() }

func (s *Server) healthHandler(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "busy": active != "", "active_run": active})
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

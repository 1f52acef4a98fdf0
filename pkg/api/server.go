package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/ghmirror/pkg/engine"
	"github.com/cuemby/ghmirror/pkg/log"
	"github.com/cuemby/ghmirror/pkg/metrics"
)

// DefaultAddr is the default listen address for the read API
const DefaultAddr = ":8080"

// shutdownTimeout bounds graceful drain when the server stops
const shutdownTimeout = 10 * time.Second

// authFailureDelay is how long a rejected request is held before the
// 401 is written, keeping key guessing slow
const authFailureDelay = time.Second

// Config configures the read API server
type Config struct {
	// Addr is the listen address. Defaults to DefaultAddr.
	Addr string

	// PresharedKey must match the Authorization header of every
	// resource request, compared case-insensitively. Requests that
	// fail the comparison are delayed one second and rejected.
	PresharedKey string

	// ClientRateLimit caps resource requests per second per client
	// address. Zero disables limiting.
	ClientRateLimit float64

	// ClientRateBurst is the burst size for ClientRateLimit. Zero
	// derives the burst from the limit.
	ClientRateBurst int
}

// Server serves the mirrored resources over HTTP. All resource routes
// require the pre-shared key; the health and metrics endpoints do not,
// so probes and scrapers work without credentials.
type Server struct {
	cfg      Config
	engine   *engine.Engine
	handler  http.Handler
	limiters *clientLimiters
	logger   zerolog.Logger

	// authDelay is authFailureDelay in production; tests shorten it
	authDelay time.Duration

	httpServer *http.Server
}

// NewServer creates the read API server around the engine
func NewServer(e *engine.Engine, cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	s := &Server{
		cfg:       cfg,
		engine:    e,
		logger:    log.WithComponent("api"),
		authDelay: authFailureDelay,
	}
	if cfg.ClientRateLimit > 0 {
		s.limiters = newClientLimiters(cfg.ClientRateLimit, cfg.ClientRateBurst)
	}

	resources := http.NewServeMux()
	resources.HandleFunc("GET /organization/{name}", s.handleOrganization)
	resources.HandleFunc("GET /user-repositories/{name}", s.handleUserRepositories)
	resources.HandleFunc("GET /repository/{ownerType}/{ownerName}/{repoName}", s.handleRepository)
	resources.HandleFunc("GET /issue/{ownerType}/{ownerName}/{repoName}/{issueNumber}", s.handleIssue)
	resources.HandleFunc("GET /bulk/issue/{ownerType}/{ownerName}/{repoName}", s.handleBulkIssues)
	resources.HandleFunc("GET /user/{loginName}", s.handleUser)
	resources.HandleFunc("GET /resourceChangeEvent", s.handleChangeEvents)
	resources.HandleFunc("POST /fullScan", s.handleFullScan)

	root := http.NewServeMux()
	root.HandleFunc("/health", metrics.HealthHandler())
	root.HandleFunc("/ready", metrics.ReadyHandler())
	root.HandleFunc("/live", metrics.LivenessHandler())
	root.Handle("/metrics", metrics.Handler())
	root.Handle("/", s.instrument(s.limit(s.requireKey(resources))))

	s.handler = root
	return s
}

// Handler returns the root handler, for tests and for embedding in
// other servers
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves the API until the context is cancelled, then drains
// in-flight requests
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}

	s.logger.Info().Str("addr", listener.Addr().String()).Msg("Read API listening")
	metrics.UpdateComponent("api", true, "")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		metrics.UpdateComponent("api", false, err.Error())
		return fmt.Errorf("read API server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Shutting down read API")
	metrics.UpdateComponent("api", false, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down read API: %w", err)
	}
	return nil
}

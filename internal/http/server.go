// Package http provides the HTTP control plane for vidplay.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/jmylchreest/vidplay/internal/config"
	"github.com/jmylchreest/vidplay/internal/http/middleware"
	"github.com/jmylchreest/vidplay/internal/metrics"
)

const idleTimeout = 120 * time.Second

// Server represents the HTTP server.
type Server struct {
	config     config.ServerConfig
	router     *chi.Mux
	api        huma.API
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a new HTTP server. Metrics are mounted on the router
// when enabled. The version is used in the OpenAPI document.
func NewServer(cfg config.ServerConfig, mc config.MetricsConfig, logger *slog.Logger, version string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if version == "" {
		version = "dev"
	}

	router := chi.NewRouter()

	router.Use(chimiddleware.RealIP)
	router.Use(middleware.RequestID)
	router.Use(middleware.NewLoggingMiddleware(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.CORSWithOrigins(cfg.CORSOrigins))

	// Event and PCM streams must be flushed as written.
	router.Use(middleware.SkipCompressionForStreams(chimiddleware.Compress(5)))

	humaConfig := huma.DefaultConfig("vidplay API", version)
	humaConfig.Info.Description = "Playback control for the vidplay decode engine"

	api := humachi.New(router, humaConfig)

	if mc.Enabled && mc.Path != "" {
		router.Handle(mc.Path, metrics.Handler())
	}

	// Request contexts derive from base so that open event and audio
	// streams end when Shutdown starts instead of holding it open.
	base, cancelBase := context.WithCancel(context.Background())
	srv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       idleTimeout,
		BaseContext:       func(net.Listener) context.Context { return base },
	}
	srv.RegisterOnShutdown(cancelBase)

	return &Server{
		config:     cfg,
		router:     router,
		api:        api,
		httpServer: srv,
		logger:     logger,
	}
}

// API returns the Huma API instance for registering operations.
func (s *Server) API() huma.API {
	return s.api
}

// Router returns the Chi router for registering additional routes.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Address())
	if err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("starting HTTP server",
		slog.String("address", ln.Addr().String()),
	)

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server",
		slog.Duration("timeout", s.config.ShutdownTimeout),
	)

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// ListenAndServe starts the server and shuts it down when ctx ends.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address())
	if err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- s.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		if err := s.Shutdown(context.Background()); err != nil {
			return err
		}
		return <-errChan
	case err := <-errChan:
		return err
	}
}

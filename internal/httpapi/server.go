// Package httpapi gives the registry's Go API a concrete, minimal REST
// surface (§6): chi for routing, huma for typed operations and generated
// OpenAPI, adapted from the teacher's Server (tvarr internal/http/server.go)
// with the relay/EPG routes replaced by the channel lifecycle controller's
// own operation set.
package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/lavacaster/broadcaster/internal/httpapi/middleware"
)

// Config holds the REST surface's listen settings (§6, config.ServerConfig).
type Config struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
}

// Server wraps the chi router and huma API with a net/http.Server for
// graceful start/shutdown.
type Server struct {
	cfg        Config
	router     *chi.Mux
	api        huma.API
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer builds the router, applies the middleware chain, and mounts a
// Huma API under it. version is reported in the generated OpenAPI document.
func NewServer(cfg Config, logger *slog.Logger, version string) *Server {
	router := chi.NewRouter()

	router.Use(chimiddleware.RealIP)
	router.Use(middleware.RequestID)
	router.Use(middleware.Logging(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", middleware.RequestIDHeader},
		MaxAge:         86400,
	}))
	router.Use(middleware.SkipCompressionForSSE(chimiddleware.Compress(5)))

	humaCfg := huma.DefaultConfig("broadcaster API", version)
	humaCfg.Info.Description = "Channel lifecycle controller REST surface"

	return &Server{
		cfg:    cfg,
		router: router,
		api:    humachi.New(router, humaCfg),
		logger: logger,
	}
}

// API returns the Huma API instance for handler Register methods to use.
func (s *Server) API() huma.API { return s.api }

// Router returns the underlying chi router, for handlers (such as the
// SSE event bridge) that must register raw http.HandlerFuncs Huma
// cannot express.
func (s *Server) Router() *chi.Mux { return s.router }

// Start begins listening. It blocks until the server is shut down or fails.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.logger.Info("starting HTTP server", slog.String("address", addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	s.logger.Info("HTTP server stopped")
	return nil
}

// ListenAndServe starts the server and blocks until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.Start() }()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}

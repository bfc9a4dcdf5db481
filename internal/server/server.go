// Package server exposes the ingestion and retrieval API over HTTP.
//
// The server wraps an Echo router with standard middleware, JSON document and
// query endpoints, a health endpoint reporting the active vector store
// backend, and Prometheus metrics.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/ragd/internal/generation"
	"github.com/fyrsmithlabs/ragd/internal/ingest"
	"github.com/fyrsmithlabs/ragd/internal/retrieval"
	"github.com/fyrsmithlabs/ragd/internal/vectorstore"
)

// Config holds HTTP server settings.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
}

// Server is the HTTP front end.
type Server struct {
	cfg       Config
	echo      *echo.Echo
	selector  *vectorstore.Selector
	pipeline  *ingest.Pipeline
	retriever *retrieval.Service
	generator *generation.Service // nil when generation is disabled
	logger    *zap.Logger
}

// New creates the HTTP server and registers all routes. generator may be nil;
// query responses then carry retrieved chunks without a generated answer.
func New(cfg Config, selector *vectorstore.Selector, pipeline *ingest.Pipeline, retriever *retrieval.Service, generator *generation.Service, logger *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		cfg:       cfg,
		echo:      e,
		selector:  selector,
		pipeline:  pipeline,
		retriever: retriever,
		generator: generator,
		logger:    logger.Named("server"),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := s.echo.Group("/api/v1")
	api.POST("/documents", s.handleIngest)
	api.DELETE("/documents/:id", s.handleDelete)
	api.POST("/query", s.handleQuery)
	api.POST("/store/retry", s.handleRetryRemote)
}

// Start starts the HTTP server and blocks until the context is cancelled.
// Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server start: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return http.ErrServerClosed
	}
}

// Echo returns the underlying Echo instance. Used by handler tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

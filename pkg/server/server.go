// Package server provides HTTP server bootstrap for engramad.
//
// This package implements a graceful HTTP server with an Echo router
// and context-aware shutdown. It exposes the underlying *echo.Echo so
// callers can register their own route surface (internal/httpapi does
// this for engramad).
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fyrsmithlabs/engrama/internal/config"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// Server represents the HTTP server.
type Server struct {
	config *config.Config
	echo   *echo.Echo
}

// NewServer creates a new HTTP server with the given configuration.
//
// The server includes:
//   - Echo router for HTTP routing
//   - Standard middleware (logger, recoverer, request ID)
//   - Graceful shutdown support
//
// Route registration is the caller's responsibility via Echo().
func NewServer(cfg *config.Config) *Server {
	e := echo.New()

	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	if cfg.CORSOrigins != "" {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: []string{cfg.CORSOrigins},
		}))
	}

	return &Server{
		config: cfg,
		echo:   e,
	}
}

// Start starts the HTTP server and blocks until context is cancelled.
//
// The server listens on the port specified in the configuration.
// When the context is cancelled, the server performs graceful shutdown
// with the configured timeout.
//
// Returns http.ErrServerClosed on graceful shutdown, or any other
// error encountered during startup or shutdown.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.config.Server.Port)

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
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			s.config.Server.ShutdownTimeout.Duration(),
		)
		defer cancel()

		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}

		return http.ErrServerClosed
	}
}

// Echo returns the underlying Echo instance for registering routes.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

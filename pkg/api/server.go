package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/docassistant/docassistant/internal/logger"
	"github.com/docassistant/docassistant/pkg/config"
)

// Server wraps the HTTP server exposing every route in this package,
// supporting graceful shutdown bounded by a fixed grace period.
type Server struct {
	server       *http.Server
	shutdownOnce sync.Once
}

// NewServer builds a Server listening on cfg.Host:cfg.Port, routed
// through NewRouter(deps).
func NewServer(cfg config.ServerConfig, deps *Deps) *Server {
	router := NewRouter(deps)

	return &Server{
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      router,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 0, // streamed chat responses and WS upgrades must not be capped
			IdleTimeout:  120 * time.Second,
		},
	}
}

// Start serves requests until ctx is cancelled, then drains in-flight
// requests for up to 10 seconds before returning.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("api server shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("api server failed: %w", err)
	}
}

// Stop gracefully shuts the server down. Safe to call more than once.
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("api server shutdown error: %w", err)
			logger.Error("api server shutdown error", "error", err)
			return
		}
		logger.Info("api server stopped gracefully")
	})
	return shutdownErr
}

package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ignite/mailcraft/internal/config"
)

// Server represents the API server
type Server struct {
	config  config.ServerConfig
	handler http.Handler
	server  *http.Server
}

// NewServer wraps a router built by NewRouter or tracking-only routes.
func NewServer(cfg config.ServerConfig, handler http.Handler) *Server {
	return &Server{config: cfg, handler: handler}
}

// Addr is host:port from config.
func (s *Server) Addr(port int) string {
	return fmt.Sprintf("%s:%d", s.config.Host, port)
}

// ListenAndServe starts the HTTP server
func (s *Server) ListenAndServe(addr string) error {
	timeout := time.Duration(s.config.ReadTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadTimeout:       timeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      timeout,
		IdleTimeout:       120 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing
func (s *Server) Handler() http.Handler {
	return s.handler
}

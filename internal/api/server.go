package api

import (
	"context"
	"net/http"
	"time"
)

// Server wraps the HTTP server and its router.
type Server struct {
	handlers *Handlers
	server   *http.Server
}

// NewServer creates the API server over the given handlers.
func NewServer(h *Handlers) *Server {
	return &Server{handlers: h}
}

// ListenAndServe starts serving on addr. Blocks until shutdown or error.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      SetupRoutes(s.handlers),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

const shutdownTimeout = 5 * time.Second

// Server exposes the relay's query and control endpoints.
type Server struct {
	logger zerolog.Logger
	client RelayClient
	bridge http.Handler
	server *http.Server
	addr   net.Addr
}

// NewServer builds a server on the given port. bridge serves /ws and may be nil.
func NewServer(logger zerolog.Logger, port int, client RelayClient, bridge http.Handler) *Server {
	s := &Server{
		logger: logger.With().Str("component", "api").Logger(),
		client: client,
		bridge: bridge,
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.setupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Addr is the bound address, nil before Start.
func (s *Server) Addr() net.Addr {
	return s.addr
}

// Start binds the listener synchronously and serves in the background.
func (s *Server) Start() error {
	if s.server == nil {
		return fmt.Errorf("query server is nil")
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind to address %s: %w", s.server.Addr, err)
	}
	s.addr = ln.Addr()
	s.logger.Info().Str("addr", s.addr.String()).Msg("query server listening")

	go func() {
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("query server error")
			return
		}
		s.logger.Info().Msg("query server closed")
	}()
	return nil
}

// Stop drains in-flight requests, then closes whatever is left.
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(ctx); err != nil {
		return s.server.Close()
	}
	return nil
}

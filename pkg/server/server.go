package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"meridian-hq/oagw/pkg/config"
	"meridian-hq/oagw/pkg/gateway"
)

// Server is the inbound HTTP listener in front of a gateway.
type Server struct {
	cfg        *config.ServerConfig
	gw         *gateway.Gateway
	httpServer *http.Server

	mu      sync.Mutex
	running bool
}

// New creates a server over gw.
func New(cfg *config.ServerConfig, gw *gateway.Gateway) *Server {
	return &Server{cfg: cfg, gw: gw}
}

// Start listens and blocks until ctx is cancelled or the listener
// fails. On cancellation the server drains gracefully within the
// configured shutdown timeout.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.running = true

	mux := http.NewServeMux()
	if s.cfg.AdminEnabled == nil || *s.cfg.AdminEnabled {
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		mux.Handle("/metrics", s.gw.Metrics().Handler())
	}
	mux.Handle("/", s.gw.Handler())

	s.httpServer = &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
	}
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		slog.Info("gateway listening", "address", s.cfg.ListenAddress)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutdown requested")
		return s.Shutdown()
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	}
}

// Shutdown drains in-flight requests, then closes the gateway.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	s.running = false

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	err := s.httpServer.Shutdown(ctx)
	if err != nil {
		// The drain window ran out: abort what is still in flight.
		_ = s.httpServer.Close()
	}
	if closeErr := s.gw.Close(); err == nil {
		err = closeErr
	}
	slog.Info("server stopped")
	return err
}

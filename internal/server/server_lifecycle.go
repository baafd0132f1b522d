package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"
)

// StartAsync starts serving in a goroutine and returns any startup errors.
//
// The returned channel receives nil once the listener is bound, or an error
// if it could not be created (e.g., port already in use). A non-nil
// tlsConfig serves HTTPS/WSS only.
func (s *Server) StartAsync(tlsConfig *tls.Config) <-chan error {
	errCh := make(chan error, 1)

	// Listen first so port conflicts are reported immediately.
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		errCh <- fmt.Errorf("failed to listen on %s: %w", s.addr, err)
		close(errCh)
		return errCh
	}

	if tlsConfig != nil {
		ln = tls.NewListener(ln, tlsConfig)
	}

	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.mu.Lock()
	s.httpServer = srv
	s.listenAddr = ln.Addr().String()
	s.tlsEnabled = tlsConfig != nil
	s.mu.Unlock()

	go func() {
		if tlsConfig != nil {
			s.log.Info("Server listening on %s (TLS enabled)", ln.Addr())
		} else {
			s.log.Info("Server listening on %s", ln.Addr())
		}
		errCh <- nil
		close(errCh)

		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error("Server error: %v", err)
		}
	}()

	return errCh
}

// Addr returns the bound listen address once started, or the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listenAddr != "" {
		return s.listenAddr
	}
	return s.addr
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx is done. Hijacked terminal connections are not tracked by
// http.Server and end with their sessions.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.httpServer = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

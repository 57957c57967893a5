// SPDX-License-Identifier: MIT
package transport

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"specview/internal/log"
)

// Route paths served by Server.
const (
	SpectrumPath = "/spectrum"
	MetricsPath  = "/metrics"
)

const shutdownTimeout = 5 * time.Second

// Server is the HTTP front of the service: WebSocket spectra on SpectrumPath
// and metrics on MetricsPath.
type Server struct {
	server *http.Server
	logger *log.Logger
}

// NewServer builds a server on addr. metricsHandler may be nil.
func NewServer(addr string, spectrum http.Handler, metricsHandler http.Handler, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Nop()
	}

	mux := http.NewServeMux()
	mux.Handle(SpectrumPath, spectrum)
	if metricsHandler != nil {
		mux.Handle(MetricsPath, metricsHandler)
	}

	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Run listens until ctx is cancelled, then shuts down gracefully. It returns
// nil after a clean shutdown.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Infof("HTTP server listening on %s (%s, %s)", ln.Addr(), SpectrumPath, MetricsPath)

	errc := make(chan error, 1)
	go func() {
		errc <- s.server.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Infof("HTTP server stopped")
	return nil
}

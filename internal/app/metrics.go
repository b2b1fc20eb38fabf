package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/oshokin/fetchcore/internal/logger"
	"github.com/oshokin/fetchcore/internal/metrics"
)

const (
	// metricsReadHeaderTimeout bounds how long the metrics server waits for request headers.
	metricsReadHeaderTimeout = 5 * time.Second
	// metricsShutdownTimeout bounds the graceful shutdown of the metrics server.
	metricsShutdownTimeout = 5 * time.Second
)

// MetricsServer exposes the engine metrics over HTTP.
type MetricsServer struct {
	server   *http.Server
	listener net.Listener
	done     chan struct{}
}

// StartMetricsServer listens on addr and serves the process-wide engine metrics at /metrics.
func StartMetricsServer(ctx context.Context, addr string) (*MetricsServer, error) {
	listener, err := (&net.ListenConfig{}).Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on '%s': %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Default().Handler())

	s := &MetricsServer{
		server: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: metricsReadHeaderTimeout,
		},
		listener: listener,
		done:     make(chan struct{}),
	}

	go func() {
		defer close(s.done)

		if serveErr := s.server.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Errorf(ctx, "Metrics server failed: %v", serveErr)
		}
	}()

	logger.Infof(ctx, "Serving metrics at http://%s/metrics", listener.Addr())

	return s, nil
}

// Addr returns the address the server listens on.
func (s *MetricsServer) Addr() string {
	return s.listener.Addr().String()
}

// Stop shuts the server down and waits for it to exit.
func (s *MetricsServer) Stop(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricsShutdownTimeout)
	defer cancel()

	err := s.server.Shutdown(shutdownCtx)
	<-s.done

	return err
}

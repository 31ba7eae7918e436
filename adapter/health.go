// Package adapter provides adapters for plcsim-starter integration with external systems.
package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AdminHandler serves /live and /ready from health and /metrics from
// gatherer. Either may be nil.
func AdminHandler(health healthcheck.Handler, gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	if health != nil {
		mux.HandleFunc("/live", health.LiveEndpoint)
		mux.HandleFunc("/ready", health.ReadyEndpoint)
	}
	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// AdminServer is the local health and metrics endpoint.
type AdminServer struct {
	srv    *http.Server
	ln     net.Listener
	logger *slog.Logger
}

// ListenAdmin binds addr. The server does not serve until Serve is called.
func ListenAdmin(addr string, handler http.Handler, logger *slog.Logger) (*AdminServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("admin: listen %s: %w", addr, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminServer{
		srv:    &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second},
		ln:     ln,
		logger: logger.With("component", "admin"),
	}, nil
}

// Addr returns the bound address.
func (a *AdminServer) Addr() string { return a.ln.Addr().String() }

// Serve blocks until ctx is done, then shuts the server down.
func (a *AdminServer) Serve(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() { errc <- a.srv.Serve(a.ln) }()
	a.logger.Info("admin endpoint listening", "addr", a.Addr())

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := a.srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("admin: shutdown: %w", err)
		}
		<-errc
		return nil
	}
}

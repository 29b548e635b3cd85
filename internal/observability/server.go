// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Nomadiqe Contributors

// Package observability serves Prometheus metrics and health probes on a
// listener separate from the API.
package observability

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"

	"github.com/nomadiqe/nomadiqe/pkg/errutil"
)

// DefaultReadinessTimeout bounds one readiness check.
const DefaultReadinessTimeout = 2 * time.Second

// ReadinessChecker returns nil when the API can serve traffic. It is
// typically a bounded ping of every backing store.
type ReadinessChecker func(ctx context.Context) error

// probeResponse is the body of both health probes.
type probeResponse struct {
	Status string `json:"status"`
	Code   string `json:"code,omitempty"`
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithReadinessTimeout overrides DefaultReadinessTimeout.
func WithReadinessTimeout(d time.Duration) ServerOption {
	return func(s *Server) { s.readinessTimeout = d }
}

// WithBuildInfo exports nomadiqe_build_info{version,commit} = 1.
func WithBuildInfo(version, commit string) ServerOption {
	return func(s *Server) {
		info := prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "nomadiqe_build_info",
			Help: "Build information; always 1",
		}, []string{"version", "commit"})
		info.WithLabelValues(version, commit).Set(1)
		s.registry.MustRegister(info)
	}
}

// Server exposes /metrics, /healthz/liveness and /healthz/readiness.
type Server struct {
	addr             string
	registry         *prometheus.Registry
	metrics          *Metrics
	ready            ReadinessChecker
	readinessTimeout time.Duration

	listener   net.Listener
	httpServer *http.Server
	running    atomic.Bool
}

// NewServer creates the metrics and health listener on addr ("host:port").
// It owns a private registry holding the Go, process and service collectors.
// A nil ready reports ready unconditionally.
func NewServer(addr string, ready ReadinessChecker, opts ...ServerOption) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := &Server{
		addr:             addr,
		registry:         registry,
		metrics:          NewMetrics(registry),
		ready:            ready,
		readinessTimeout: DefaultReadinessTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Metrics returns the service collectors registered on this server.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Handler returns the probe and metrics routes without binding a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("GET /healthz/liveness", s.handleLiveness)
	mux.HandleFunc("GET /healthz/readiness", s.handleReadiness)
	return mux
}

// Start listens and serves Handler. Serve failures after Start returns
// arrive on the channel, which closes on Stop.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("OBSERVABILITY_RUNNING").Errorf("metrics server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("OBSERVABILITY_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := s.httpServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("metrics server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	slog.Info("metrics server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop shuts the listener down. Stopping a stopped server is a no-op.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.running.Store(true)
		return oops.With("operation", "shutdown_observability_server").Wrap(err)
	}
	slog.Info("metrics server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeProbe(w, http.StatusOK, probeResponse{Status: "ok"})
}

// handleReadiness reports 503 with the failing error code. Error text is
// withheld since it can carry connection strings.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.ready == nil {
		writeProbe(w, http.StatusOK, probeResponse{Status: "ok"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.readinessTimeout)
	defer cancel()
	if err := s.ready(ctx); err != nil {
		errutil.LogWarn(slog.Default(), "readiness check failed", err)
		code := errutil.CodeOf(err)
		if code == "" {
			code = "NOT_READY"
		}
		writeProbe(w, http.StatusServiceUnavailable, probeResponse{Status: "unavailable", Code: code})
		return
	}
	writeProbe(w, http.StatusOK, probeResponse{Status: "ok"})
}

func writeProbe(w http.ResponseWriter, status int, body probeResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	//nolint:errcheck // probe clients may disconnect
	json.NewEncoder(w).Encode(body)
}

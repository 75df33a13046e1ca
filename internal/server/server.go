package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voltlog/voltlog/internal/health"
	"github.com/voltlog/voltlog/internal/logging"
	"github.com/voltlog/voltlog/pkg/types"
)

// SnapshotProvider hands out a copy of the current record log.
type SnapshotProvider interface {
	Snapshot() []types.Record
}

// Config holds server configuration
type Config struct {
	// Enabled turns the HTTP server on
	Enabled bool `yaml:"enabled"`

	// Address is the listen address
	Address string `yaml:"address"`

	// MetricsPath is the Prometheus scrape path
	MetricsPath string `yaml:"metrics_path,omitempty"`
}

// DefaultConfig returns default server configuration
func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		Address:     ":9090",
		MetricsPath: "/metrics",
	}
}

// Server exposes metrics, health probes and the live record log over HTTP
type Server struct {
	config    Config
	server    *http.Server
	snapshots SnapshotProvider
	logger    *logging.Logger
}

// New creates a new server
func New(cfg Config, registry *prometheus.Registry, checker *health.Checker, snapshots SnapshotProvider, logger *logging.Logger) *Server {
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}

	s := &Server{
		config:    cfg,
		snapshots: snapshots,
		logger:    logger.WithComponent("server"),
	}

	mux := http.NewServeMux()
	if registry != nil {
		mux.Handle(cfg.MetricsPath, promhttp.HandlerFor(
			registry,
			promhttp.HandlerOpts{EnableOpenMetrics: true},
		))
	}
	if checker != nil {
		mux.HandleFunc("/health", checker.HTTPHandler())
		mux.HandleFunc("/health/live", checker.LivenessHandler())
		mux.HandleFunc("/health/ready", checker.ReadinessHandler())
	}
	if snapshots != nil {
		mux.HandleFunc("/data.json", s.handleData)
	}

	s.server = &http.Server{
		Addr:         cfg.Address,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the HTTP handler. Intended for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// handleData serves the record log in the same shape the file sink writes.
func (s *Server) handleData(w http.ResponseWriter, r *http.Request) {
	records := s.snapshots.Snapshot()
	if records == nil {
		records = []types.Record{}
	}

	data, err := json.MarshalIndent(records, "", "    ")
	if err != nil {
		http.Error(w, "failed to encode records", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// Start starts the server
func (s *Server) Start() error {
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info().Str("address", s.server.Addr).Msg("Starting HTTP server")

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// Surface immediate bind failures.
	select {
	case err := <-errCh:
		return err
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}

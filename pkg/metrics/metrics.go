// Package metrics exposes the Prometheus collectors shared by all
// services, plus the optional plain-HTTP /metrics listener.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rangelabs/rangecloud/internal/logger"
)

var (
	// ActionsTotal counts resolved actions by name and outcome.
	ActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rangecloud",
		Subsystem: "dispatcher",
		Name:      "actions_total",
		Help:      "Resolved actions by name and error type.",
	}, []string{"action", "error_type"})

	// FileTasksTotal counts file-service tasks by type and outcome.
	FileTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rangecloud",
		Subsystem: "filestore",
		Name:      "tasks_total",
		Help:      "File service tasks by type and error type.",
	}, []string{"task", "error_type"})

	// StoreBytes tracks the total size of all stored blobs.
	StoreBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "rangecloud",
		Subsystem: "filestore",
		Name:      "store_bytes",
		Help:      "Total bytes held by the file store.",
	})

	// StoreFiles tracks the number of indexed files.
	StoreFiles = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "rangecloud",
		Subsystem: "filestore",
		Name:      "store_files",
		Help:      "Number of files in the store index.",
	})

	// ProcessesTotal counts process runs by name and outcome.
	ProcessesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rangecloud",
		Subsystem: "process",
		Name:      "runs_total",
		Help:      "Process runs by process name and error type.",
	}, []string{"process", "error_type"})

	// MailTotal counts outbound mail attempts by outcome.
	MailTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rangecloud",
		Subsystem: "mailer",
		Name:      "mail_total",
		Help:      "Outbound mail attempts by result (sent/failed).",
	}, []string{"result"})

	// HTTPRequestsTotal counts listener requests by listener and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rangecloud",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by listener and status code.",
	}, []string{"listener", "status"})

	// RateLimitedTotal counts requests rejected by the per-peer limiter.
	RateLimitedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rangecloud",
		Subsystem: "http",
		Name:      "rate_limited_total",
		Help:      "Requests rejected by the per-peer rate limiter.",
	}, []string{"listener"})
)

// Config controls the metrics listener.
type Config struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`
	Port    int  `json:"port" mapstructure:"port" validate:"omitempty,min=1,max=65535"`
}

// Server serves the Prometheus registry over plain HTTP.
type Server struct {
	srv *http.Server
}

// NewServer builds a metrics server on the configured port.
func NewServer(cfg Config) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Start serves until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()
	logger.Info("Metrics server listening", "addr", s.srv.Addr)

	select {
	case <-ctx.Done():
		return s.Stop()
	case err := <-errChan:
		return fmt.Errorf("metrics server failed: %w", err)
	}
}

// Stop shuts the metrics server down gracefully.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

package api

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rangelabs/rangecloud/internal/logger"
)

// ListenerConfig describes one TLS listener.
type ListenerConfig struct {
	// Name labels the listener in logs: public or private.
	Name string

	// Port is the TCP port to bind.
	Port int

	// TLS carries the certificate and client-auth policy.
	TLS *tls.Config

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

func (c *ListenerConfig) applyDefaults() {
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 90 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 120 * time.Second
	}
}

// Listener is one of the two TLS endpoints in front of the dispatcher.
//
// The listener is created in a stopped state. Call Start() to begin
// serving; it supports graceful shutdown via context cancellation.
type Listener struct {
	server       *http.Server
	config       ListenerConfig
	shutdownOnce sync.Once
}

// NewListener wraps the handler into an HTTPS server for one endpoint.
func NewListener(config ListenerConfig, handler http.Handler) *Listener {
	config.applyDefaults()

	return &Listener{
		server: &http.Server{
			Addr:         fmt.Sprintf(":%d", config.Port),
			Handler:      handler,
			TLSConfig:    config.TLS,
			ReadTimeout:  config.ReadTimeout,
			WriteTimeout: config.WriteTimeout,
			IdleTimeout:  config.IdleTimeout,
		},
		config: config,
	}
}

// Start serves TLS connections and blocks until the context is
// cancelled or the server fails.
//
// Returns nil on graceful shutdown.
func (l *Listener) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("Listener started", "listener", l.config.Name, "port", l.config.Port)

		// Certificate material comes from TLSConfig.GetCertificate.
		if err := l.server.ListenAndServeTLS("", ""); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Listener shutdown signal received", "listener", l.config.Name)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return l.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("%s listener failed: %w", l.config.Name, err)
	}
}

// Stop gracefully shuts the listener down, letting in-flight requests
// finish within the context's deadline. Safe to call more than once.
func (l *Listener) Stop(ctx context.Context) error {
	var err error
	l.shutdownOnce.Do(func() {
		logger.Info("Listener stopping", "listener", l.config.Name)
		err = l.server.Shutdown(ctx)
		if err != nil {
			logger.Error("Listener shutdown error", "listener", l.config.Name, "error", err)
		} else {
			logger.Info("Listener stopped", "listener", l.config.Name)
		}
	})
	return err
}

// Package server runs the TCP listeners that answer passive agent checks.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"sync"

	"github.com/infodancer/mailstatsd/internal/config"
	"github.com/infodancer/mailstatsd/internal/logging"
	"github.com/infodancer/mailstatsd/internal/metrics"
)

// Server coordinates multiple listeners.
type Server struct {
	cfg       *config.Config
	tlsConfig *tls.Config
	logger    *slog.Logger
	collector metrics.Collector
	handler   ConnectionHandler

	listeners []*Listener
	mu        sync.Mutex
}

// New creates a new Server with the given configuration. A nil logger
// builds one from cfg.LogLevel; a nil collector records nothing.
func New(cfg *config.Config, logger *slog.Logger, collector metrics.Collector) (*Server, error) {
	if logger == nil {
		logger = logging.NewLogger(cfg.LogLevel)
	}
	if collector == nil {
		collector = &metrics.NoopCollector{}
	}

	s := &Server{
		cfg:       cfg,
		logger:    logger,
		collector: collector,
	}

	// Load TLS configuration if certificates are specified
	if cfg.TLS.CertFile != "" && cfg.TLS.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading TLS certificate: %w", err)
		}

		s.tlsConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   cfg.TLS.MinTLSVersion(),
		}
		logger.Info("TLS configured",
			slog.String("cert", cfg.TLS.CertFile),
			slog.String("min_version", cfg.TLS.MinVersion),
		)
	}

	return s, nil
}

// SetHandler sets the connection handler for all listeners.
// Must be called before Run.
func (s *Server) SetHandler(handler ConnectionHandler) {
	s.handler = handler
}

// Run starts all configured listeners and blocks until the context is cancelled.
// All listeners run in their own goroutines.
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()

	if s.handler == nil {
		s.handler = s.defaultHandler
	}

	// Create listeners
	for _, lc := range s.cfg.Listeners {
		if lc.Mode == config.ModeAgentTLS && s.tlsConfig == nil {
			s.mu.Unlock()
			return fmt.Errorf("listener %s: TLS required for agent-tls mode but not configured", lc.Address)
		}

		// Only agent-tls listeners wrap connections in TLS
		var tlsCfg *tls.Config
		if lc.Mode == config.ModeAgentTLS {
			tlsCfg = s.tlsConfig
		}

		listener := NewListener(ListenerConfig{
			Address:           lc.Address,
			Mode:              lc.Mode,
			TLSConfig:         tlsCfg,
			ConnectionTimeout: s.cfg.Timeouts.ConnectionTimeout(),
			ReadTimeout:       s.cfg.Timeouts.CommandTimeout(),
			LogTransaction:    s.cfg.LogLevel == "debug",
			Logger:            s.logger,
			Collector:         s.collector,
			Handler:           s.handler,
		})
		s.listeners = append(s.listeners, listener)
	}

	s.mu.Unlock()

	s.logger.Info("starting server",
		slog.String("statistics_file", s.cfg.StatisticsFile),
		slog.Int("listener_count", len(s.listeners)),
	)

	// Start all listeners in goroutines
	var wg sync.WaitGroup
	errChan := make(chan error, len(s.listeners))

	for _, l := range s.listeners {
		wg.Add(1)
		go func(listener *Listener) {
			defer wg.Done()
			if err := listener.Start(ctx); err != nil && err != context.Canceled {
				errChan <- fmt.Errorf("listener %s: %w", listener.Address(), err)
			}
		}(l)
	}

	// Wait for context cancellation
	<-ctx.Done()

	s.logger.Info("server shutting down")

	// Wait for all listeners to stop
	wg.Wait()

	// Check for any errors
	close(errChan)
	var firstErr error
	for err := range errChan {
		if firstErr == nil {
			firstErr = err
		}
		s.logger.Error("listener error", slog.String("error", err.Error()))
	}

	s.logger.Info("server stopped")

	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

// Shutdown closes all listeners. In-flight requests finish on their own.
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range s.listeners {
		_ = l.Close()
	}
}

// Logger returns the server's logger.
func (s *Server) Logger() *slog.Logger {
	return s.logger
}

// TLSConfig returns the server's TLS configuration, if any.
func (s *Server) TLSConfig() *tls.Config {
	return s.tlsConfig
}

// Config returns the server's configuration.
func (s *Server) Config() *config.Config {
	return s.cfg
}

// defaultHandler closes connections without answering.
func (s *Server) defaultHandler(ctx context.Context, conn *Connection) {
	logger := logging.FromContext(ctx)
	logger.Warn("no connection handler configured, closing connection")
}

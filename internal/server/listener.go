package server

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/infodancer/mailstatsd/internal/config"
	"github.com/infodancer/mailstatsd/internal/logging"
	"github.com/infodancer/mailstatsd/internal/metrics"
)

// ConnectionHandler is called for each new connection.
// It receives the context and connection, and should answer the request.
type ConnectionHandler func(ctx context.Context, conn *Connection)

// Listener manages a single TCP listener for agent connections.
type Listener struct {
	address   string
	mode      config.ListenerMode
	tlsConfig *tls.Config
	connCfg   ConnectionConfig
	handler   ConnectionHandler
	collector metrics.Collector
	logger    *slog.Logger

	listener net.Listener
	wg       sync.WaitGroup
	mu       sync.Mutex
	closed   bool
}

// ListenerConfig holds configuration for creating a new Listener.
type ListenerConfig struct {
	Address           string
	Mode              config.ListenerMode
	TLSConfig         *tls.Config
	ConnectionTimeout time.Duration
	ReadTimeout       time.Duration
	LogTransaction    bool
	Logger            *slog.Logger
	Collector         metrics.Collector
	Handler           ConnectionHandler
}

// NewListener creates a new Listener with the given configuration.
func NewListener(cfg ListenerConfig) *Listener {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	collector := cfg.Collector
	if collector == nil {
		collector = &metrics.NoopCollector{}
	}

	return &Listener{
		address:   cfg.Address,
		mode:      cfg.Mode,
		tlsConfig: cfg.TLSConfig,
		connCfg: ConnectionConfig{
			ConnectionTimeout: cfg.ConnectionTimeout,
			ReadTimeout:       cfg.ReadTimeout,
			LogTransaction:    cfg.LogTransaction,
			Logger:            logger,
		},
		handler:   cfg.Handler,
		collector: collector,
		logger:    logging.WithListener(logger, cfg.Address, string(cfg.Mode)),
	}
}

// Start begins listening on the configured address.
// It blocks until the context is cancelled or an unrecoverable error occurs.
func (l *Listener) Start(ctx context.Context) error {
	var err error
	var ln net.Listener

	if l.mode == config.ModeAgentTLS {
		if l.tlsConfig == nil {
			return errors.New("TLS configuration required for agent-tls mode")
		}
		ln, err = tls.Listen("tcp", l.address, l.tlsConfig)
	} else {
		ln, err = net.Listen("tcp", l.address)
	}

	if err != nil {
		return err
	}

	return l.Serve(ctx, ln)
}

// Serve accepts connections on ln until the context is cancelled.
// The listener takes ownership of ln.
func (l *Listener) Serve(ctx context.Context, ln net.Listener) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		_ = ln.Close()
		return net.ErrClosed
	}
	l.listener = ln
	l.mu.Unlock()

	l.logger.Info("listener started",
		slog.String("address", ln.Addr().String()),
		slog.String("mode", string(l.mode)),
	)

	go l.acceptLoop(ctx)

	<-ctx.Done()

	l.logger.Info("listener shutting down")

	if err := l.Close(); err != nil {
		l.logger.Debug("error closing listener",
			slog.String("error", err.Error()),
		)
	}

	// Wait for in-flight requests to complete
	l.wg.Wait()

	l.logger.Info("listener stopped")
	return ctx.Err()
}

// acceptLoop accepts connections until the listener is closed.
func (l *Listener) acceptLoop(ctx context.Context) {
	for {
		conn, err := l.listener.Accept()
		if err != nil {
			l.mu.Lock()
			closed := l.closed
			l.mu.Unlock()

			if closed {
				return
			}

			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				l.logger.Warn("temporary accept error",
					slog.String("error", err.Error()),
				)
				time.Sleep(5 * time.Millisecond)
				continue
			}

			l.logger.Error("accept error",
				slog.String("error", err.Error()),
			)
			return
		}

		l.wg.Add(1)
		go l.handleConnection(ctx, conn)
	}
}

// handleConnection wraps a connection and calls the handler.
func (l *Listener) handleConnection(ctx context.Context, netConn net.Conn) {
	defer l.wg.Done()

	l.collector.ConnectionOpened()
	defer l.collector.ConnectionClosed()

	conn := NewConnection(netConn, l.connCfg)
	defer func() { _ = conn.Close() }()

	conn.Logger().Debug("connection accepted")

	if err := conn.StartDeadline(); err != nil {
		conn.Logger().Error("failed to set connection deadline",
			slog.String("error", err.Error()),
		)
		return
	}

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	connCtx = logging.NewContext(connCtx, conn.Logger())

	// Unblock the handler if the server shuts down mid-request.
	stop := context.AfterFunc(connCtx, func() { _ = conn.Close() })
	defer stop()

	if l.handler != nil {
		l.handler(connCtx, conn)
	}

	conn.Logger().Debug("connection closed")
}

// Close stops the listener from accepting new connections.
func (l *Listener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true

	if l.listener != nil {
		return l.listener.Close()
	}
	return nil
}

// Address returns the configured listen address.
func (l *Listener) Address() string {
	return l.address
}

// Addr returns the bound address, or nil before the listener is serving.
func (l *Listener) Addr() net.Addr {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.listener == nil {
		return nil
	}
	return l.listener.Addr()
}

// Mode returns the listener's mode.
func (l *Listener) Mode() config.ListenerMode {
	return l.mode
}

// TLSConfig returns the TLS configuration, if any.
func (l *Listener) TLSConfig() *tls.Config {
	return l.tlsConfig
}

package server

import (
	"bufio"
	"crypto/tls"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/infodancer/mailstatsd/internal/logging"
)

// Connection wraps a net.Conn with deadline management and optional
// transaction logging. Agent connections carry a single request, so there
// is no idle monitor: the whole exchange runs under one connection deadline.
type Connection struct {
	conn        net.Conn
	reader      *bufio.Reader
	writer      *bufio.Writer
	logger      *slog.Logger
	connTimeout time.Duration
	readTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

// ConnectionConfig holds configuration for a new connection.
type ConnectionConfig struct {
	// ConnectionTimeout bounds the whole exchange. Zero disables it.
	ConnectionTimeout time.Duration
	// ReadTimeout bounds reading the request. Zero disables it.
	ReadTimeout    time.Duration
	LogTransaction bool
	Logger         *slog.Logger
}

// NewConnection creates a new Connection wrapper.
func NewConnection(conn net.Conn, cfg ConnectionConfig) *Connection {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	connLogger := logging.WithConnection(logger, conn.RemoteAddr().String())

	c := &Connection{
		conn:        conn,
		logger:      connLogger,
		connTimeout: cfg.ConnectionTimeout,
		readTimeout: cfg.ReadTimeout,
	}

	var r io.Reader = conn
	var w io.Writer = conn

	if cfg.LogTransaction {
		r = logging.NewTransactionReader(conn, connLogger, "recv")
		w = logging.NewTransactionWriter(conn, connLogger, "send")
	}

	c.reader = bufio.NewReader(r)
	c.writer = bufio.NewWriter(w)

	return c
}

// Logger returns the connection-scoped logger.
func (c *Connection) Logger() *slog.Logger {
	return c.logger
}

// RemoteAddr returns the remote address of the connection.
func (c *Connection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Reader returns the buffered reader for the connection.
func (c *Connection) Reader() *bufio.Reader {
	return c.reader
}

// Writer returns the buffered writer for the connection.
func (c *Connection) Writer() *bufio.Writer {
	return c.writer
}

// Flush flushes the write buffer.
func (c *Connection) Flush() error {
	return c.writer.Flush()
}

// StartDeadline sets the connection deadline from now.
func (c *Connection) StartDeadline() error {
	if c.connTimeout > 0 {
		return c.conn.SetDeadline(time.Now().Add(c.connTimeout))
	}
	return nil
}

// StartRead sets a read deadline for the request, never later than the
// connection deadline already in force.
func (c *Connection) StartRead() error {
	if c.readTimeout <= 0 {
		return nil
	}
	timeout := c.readTimeout
	if c.connTimeout > 0 && c.connTimeout < timeout {
		timeout = c.connTimeout
	}
	return c.conn.SetReadDeadline(time.Now().Add(timeout))
}

// Close closes the connection. It is safe to call more than once.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true

	return c.conn.Close()
}

// IsClosed returns true if the connection has been closed.
func (c *Connection) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// IsTLS returns true if the connection is encrypted with TLS.
func (c *Connection) IsTLS() bool {
	_, ok := c.conn.(*tls.Conn)
	return ok
}

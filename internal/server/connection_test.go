package server

import (
	"bytes"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"
)

// mockConn implements net.Conn for testing.
type mockConn struct {
	readData      []byte
	readPos       int
	writeData     []byte
	localAddr     net.Addr
	remoteAddr    net.Addr
	closed        bool
	closeCount    int
	deadline      time.Time
	readDeadline  time.Time
	writeDeadline time.Time
}

func newMockConn() *mockConn {
	return &mockConn{
		localAddr:  &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 10050},
		remoteAddr: &net.TCPAddr{IP: net.ParseIP("192.168.1.100"), Port: 54321},
	}
}

func (m *mockConn) Read(b []byte) (n int, err error) {
	if m.readPos >= len(m.readData) {
		return 0, io.EOF
	}
	n = copy(b, m.readData[m.readPos:])
	m.readPos += n
	return n, nil
}

func (m *mockConn) Write(b []byte) (n int, err error) {
	m.writeData = append(m.writeData, b...)
	return len(b), nil
}

func (m *mockConn) Close() error {
	m.closed = true
	m.closeCount++
	return nil
}

func (m *mockConn) LocalAddr() net.Addr {
	return m.localAddr
}

func (m *mockConn) RemoteAddr() net.Addr {
	return m.remoteAddr
}

func (m *mockConn) SetDeadline(t time.Time) error {
	m.deadline = t
	return nil
}

func (m *mockConn) SetReadDeadline(t time.Time) error {
	m.readDeadline = t
	return nil
}

func (m *mockConn) SetWriteDeadline(t time.Time) error {
	m.writeDeadline = t
	return nil
}

func TestNewConnection(t *testing.T) {
	mock := newMockConn()

	conn := NewConnection(mock, ConnectionConfig{
		ConnectionTimeout: 30 * time.Second,
		ReadTimeout:       3 * time.Second,
		Logger:            slog.Default(),
	})

	if conn.Logger() == nil {
		t.Error("expected connection logger")
	}
	if conn.RemoteAddr().String() != "192.168.1.100:54321" {
		t.Errorf("RemoteAddr() = %s", conn.RemoteAddr())
	}
	if conn.IsTLS() {
		t.Error("plain connection reported as TLS")
	}
}

func TestConnectionReadWrite(t *testing.T) {
	mock := newMockConn()
	mock.readData = []byte("agent.ping\n")

	conn := NewConnection(mock, ConnectionConfig{})

	line, err := conn.Reader().ReadString('\n')
	if err != nil {
		t.Fatalf("ReadString() error = %v", err)
	}
	if line != "agent.ping\n" {
		t.Errorf("read %q, want %q", line, "agent.ping\n")
	}

	if _, err := conn.Writer().WriteString("1"); err != nil {
		t.Fatalf("WriteString() error = %v", err)
	}
	if len(mock.writeData) != 0 {
		t.Error("data written before flush")
	}
	if err := conn.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
	if string(mock.writeData) != "1" {
		t.Errorf("wrote %q, want %q", mock.writeData, "1")
	}
}

func TestConnectionClose(t *testing.T) {
	mock := newMockConn()
	conn := NewConnection(mock, ConnectionConfig{})

	if conn.IsClosed() {
		t.Error("new connection reported closed")
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if !conn.IsClosed() || !mock.closed {
		t.Error("connection not closed")
	}
	if mock.closeCount != 1 {
		t.Errorf("underlying Close called %d times, want 1", mock.closeCount)
	}
}

func TestConnectionStartDeadline(t *testing.T) {
	mock := newMockConn()
	conn := NewConnection(mock, ConnectionConfig{ConnectionTimeout: 30 * time.Second})

	before := time.Now()
	if err := conn.StartDeadline(); err != nil {
		t.Fatalf("StartDeadline() error = %v", err)
	}
	if mock.deadline.Before(before.Add(30 * time.Second)) {
		t.Errorf("deadline %v earlier than expected", mock.deadline)
	}

	mock = newMockConn()
	conn = NewConnection(mock, ConnectionConfig{})
	if err := conn.StartDeadline(); err != nil {
		t.Fatalf("StartDeadline() error = %v", err)
	}
	if !mock.deadline.IsZero() {
		t.Error("deadline set with zero timeout")
	}
}

func TestConnectionStartReadCappedByConnectionTimeout(t *testing.T) {
	mock := newMockConn()
	conn := NewConnection(mock, ConnectionConfig{
		ConnectionTimeout: time.Second,
		ReadTimeout:       time.Minute,
	})

	if err := conn.StartRead(); err != nil {
		t.Fatalf("StartRead() error = %v", err)
	}
	if mock.readDeadline.After(time.Now().Add(2 * time.Second)) {
		t.Errorf("read deadline %v not capped by connection timeout", mock.readDeadline)
	}

	mock = newMockConn()
	conn = NewConnection(mock, ConnectionConfig{ConnectionTimeout: time.Second})
	if err := conn.StartRead(); err != nil {
		t.Fatalf("StartRead() error = %v", err)
	}
	if !mock.readDeadline.IsZero() {
		t.Error("read deadline set with zero read timeout")
	}
}

func TestConnectionTransactionLogging(t *testing.T) {
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logBuf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	mock := newMockConn()
	mock.readData = []byte("agent.ping\n")

	conn := NewConnection(mock, ConnectionConfig{LogTransaction: true, Logger: logger})

	if _, err := conn.Reader().ReadString('\n'); err != nil {
		t.Fatalf("ReadString() error = %v", err)
	}
	_, _ = conn.Writer().WriteString("1")
	_ = conn.Flush()

	output := logBuf.String()
	if !strings.Contains(output, "direction=recv") || !strings.Contains(output, "direction=send") {
		t.Errorf("expected both directions logged, got:\n%s", output)
	}
}

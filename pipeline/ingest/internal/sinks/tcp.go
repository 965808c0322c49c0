package sinks

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/Log-Tools/nsg-flowlogs-pipeline/pipeline/faults"
)

const tcpDialTimeout = 10 * time.Second

// TCPSink writes CEF payloads to a line-oriented collector. The connection
// is opened lazily and dropped after a failed write.
type TCPSink struct {
	address string
	timeout time.Duration
	dialer  net.Dialer

	mu   sync.Mutex
	conn net.Conn
}

// NewTCPSink creates a TCP sink for host:port. A write that has not finished
// after timeout fails, unless ctx carries an earlier deadline.
func NewTCPSink(address string, timeout time.Duration) *TCPSink {
	return &TCPSink{
		address: address,
		timeout: timeout,
		dialer:  net.Dialer{Timeout: tcpDialTimeout, KeepAlive: 30 * time.Second},
	}
}

func (s *TCPSink) Name() string { return "arcsight" }

// Send writes the whole payload on the shared connection
func (s *TCPSink) Send(ctx context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		conn, err := s.dialer.DialContext(ctx, "tcp", s.address)
		if err != nil {
			return faults.Transport("sinks.tcp", "failed to connect to %s: %w", s.address, err)
		}
		s.conn = conn
	}

	if err := s.conn.SetWriteDeadline(s.writeDeadline(ctx)); err != nil {
		s.reset()
		return faults.Transport("sinks.tcp", "failed to set write deadline: %w", err)
	}

	if _, err := s.conn.Write(payload); err != nil {
		s.reset()
		return faults.Transport("sinks.tcp", "failed to write %d bytes to %s: %w", len(payload), s.address, err)
	}
	return nil
}

// writeDeadline is the earlier of the ctx deadline and now+timeout
func (s *TCPSink) writeDeadline(ctx context.Context) time.Time {
	deadline, ok := ctx.Deadline()
	if s.timeout <= 0 {
		return deadline
	}
	if limit := time.Now().Add(s.timeout); !ok || limit.Before(deadline) {
		return limit
	}
	return deadline
}

func (s *TCPSink) reset() {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

// Close closes the open connection, if any
func (s *TCPSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}

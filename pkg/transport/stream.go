package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"syscall"
	"time"
)

const (
	connectRetries    = 10
	connectRetryDelay = time.Second
)

// Stream is the connection-oriented transport. The listening side holds a
// TCP listener until Accept attaches a peer; the dialing side holds the
// connection from construction.
//
// The mutex guards the field pointers only. Blocking socket calls run on a
// snapshot so Close from another goroutine can interrupt them.
type Stream struct {
	mu       sync.Mutex
	listener *net.TCPListener
	conn     *net.TCPConn
}

func (s *Stream) getConn() *net.TCPConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// ListenStream binds and listens on the given port (receiver side).
func ListenStream(port int) (*Stream, error) {
	addr := &net.TCPAddr{Port: port}
	listener, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on port %d: %w", port, err)
	}

	return &Stream{listener: listener}, nil
}

// DialStream connects to addr, retrying connection-refused up to 10 times
// one second apart to cover the window where the peer is not up yet.
func DialStream(ctx context.Context, addr string) (*Stream, error) {
	var lastErr error

	for attempt := 1; attempt <= connectRetries; attempt++ {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			tcpConn := conn.(*net.TCPConn)
			// Disable send coalescing so queueing delay is not measured
			// as network latency.
			_ = tcpConn.SetNoDelay(true)
			return &Stream{conn: tcpConn}, nil
		}

		lastErr = err
		if !errors.Is(err, syscall.ECONNREFUSED) {
			return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
		}
		if attempt == connectRetries {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(connectRetryDelay):
		}
	}

	return nil, fmt.Errorf("%w: %s after %d attempts: %v", ErrConnectFailed, addr, connectRetries, lastErr)
}

// Accept waits for an inbound peer, polling with a bounded deadline so a
// cancelled context is observed within one ReadTimeout.
func (s *Stream) Accept(ctx context.Context) error {
	s.mu.Lock()
	listener := s.listener
	s.mu.Unlock()
	if listener == nil {
		return errors.New("transport: accept on a dialing stream")
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := listener.SetDeadline(time.Now().Add(ReadTimeout)); err != nil {
			return fmt.Errorf("failed to arm accept deadline: %w", err)
		}

		conn, err := listener.AcceptTCP()
		if err != nil {
			if isTimeout(err) {
				continue
			}
			return fmt.Errorf("accept failed: %w", err)
		}

		_ = conn.SetNoDelay(true)
		s.mu.Lock()
		s.conn = conn
		s.mu.Unlock()
		return nil
	}
}

// Send writes the whole frame to the stream.
func (s *Stream) Send(p []byte) error {
	conn := s.getConn()
	if conn == nil {
		return ErrNotConnected
	}
	if _, err := conn.Write(p); err != nil {
		return fmt.Errorf("stream send failed: %w", err)
	}
	return nil
}

// ReceiveExact reads exactly n bytes, retrying short reads until the
// request is satisfied. It returns (nil, nil) when the read deadline
// expires and ErrConnectionClosed when the peer closes the stream.
func (s *Stream) ReceiveExact(n int) ([]byte, error) {
	conn := s.getConn()
	if conn == nil {
		return nil, ErrNotConnected
	}

	buf := make([]byte, n)
	read := 0
	for read < n {
		if err := conn.SetReadDeadline(time.Now().Add(ReadTimeout)); err != nil {
			return nil, fmt.Errorf("failed to arm read deadline: %w", err)
		}

		nr, err := conn.Read(buf[read:])
		read += nr
		if err != nil {
			if isTimeout(err) {
				return nil, nil
			}
			if errors.Is(err, io.EOF) {
				return nil, ErrConnectionClosed
			}
			return nil, fmt.Errorf("stream receive failed: %w", err)
		}
	}

	return buf, nil
}

// ReceiveDatagram is not meaningful on a byte stream.
func (s *Stream) ReceiveDatagram() ([]byte, error) {
	return nil, errors.New("transport: datagram receive on a stream transport")
}

// Peer returns the remote address of the attached connection, nil before
// a peer is attached.
func (s *Stream) Peer() net.Addr {
	conn := s.getConn()
	if conn == nil {
		return nil
	}
	return conn.RemoteAddr()
}

// Close releases the connection and listener. Best effort and safe to
// call more than once, including concurrently with Accept or a receive.
func (s *Stream) Close() error {
	s.mu.Lock()
	conn, listener := s.conn, s.listener
	s.conn, s.listener = nil, nil
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if listener != nil {
		_ = listener.Close()
	}
	return nil
}

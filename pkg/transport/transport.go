package transport

import (
	"context"
	"errors"
	"net"
	"time"
)

// ReadTimeout bounds every blocking network read so loops can observe
// cancellation between attempts.
const ReadTimeout = time.Second

var (
	// ErrConnectFailed is returned after connect retries are exhausted.
	ErrConnectFailed = errors.New("transport: connect failed")

	// ErrConnectionClosed is returned when the peer closes a stream
	// connection.
	ErrConnectionClosed = errors.New("transport: connection closed by peer")

	// ErrNotConnected is returned when reading before a peer is attached.
	ErrNotConnected = errors.New("transport: not connected")
)

// Transport is the single contract shared by both modes. ReceiveExact is
// meaningful for stream transports and ReceiveDatagram for datagram
// transports; the inapplicable method reports an error.
//
// Both receive methods return (nil, nil) when the read deadline expires
// without data, so callers can poll a cancellation signal between attempts.
type Transport interface {
	Send(p []byte) error
	ReceiveExact(n int) ([]byte, error)
	ReceiveDatagram() ([]byte, error)
	Peer() net.Addr
	Close() error
}

// Acceptor is implemented by transports that must wait for an inbound peer
// before data can flow (the listening side of stream mode).
type Acceptor interface {
	Accept(ctx context.Context) error
}

// isTimeout reports whether err is a read-deadline expiry.
func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

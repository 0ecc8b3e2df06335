package transport

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// maxDatagramSize bounds a single receive; a datagram is one whole frame.
const maxDatagramSize = 65535

// Datagram is the connectionless transport. The sending side uses a
// connected UDP socket (no handshake); the receiving side binds the port
// and remembers the peer address of the last datagram.
// The mutex guards the field pointers only, so Close from another
// goroutine can interrupt a blocked receive.
type Datagram struct {
	mu   sync.Mutex
	conn *net.UDPConn
	peer net.Addr
}

func (d *Datagram) getConn() *net.UDPConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn
}

// ListenDatagram binds a UDP socket on the given port (receiver side).
func ListenDatagram(port int) (*Datagram, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: port})
	if err != nil {
		return nil, fmt.Errorf("failed to bind udp port %d: %w", port, err)
	}

	return &Datagram{conn: conn}, nil
}

// DialDatagram prepares a connected UDP socket towards addr. There is no
// handshake; this cannot detect an absent peer.
func DialDatagram(addr string) (*Datagram, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", addr, err)
	}

	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	return &Datagram{conn: conn, peer: udpAddr}, nil
}

// Send transmits one frame as a single datagram.
func (d *Datagram) Send(p []byte) error {
	conn := d.getConn()
	if conn == nil {
		return ErrNotConnected
	}
	if _, err := conn.Write(p); err != nil {
		return fmt.Errorf("datagram send failed: %w", err)
	}
	return nil
}

// ReceiveExact is not meaningful on a message-oriented transport.
func (d *Datagram) ReceiveExact(n int) ([]byte, error) {
	return nil, errors.New("transport: exact receive on a datagram transport")
}

// ReceiveDatagram reads one datagram, returning (nil, nil) when the read
// deadline expires. The sender address is recorded and available via Peer.
func (d *Datagram) ReceiveDatagram() ([]byte, error) {
	conn := d.getConn()
	if conn == nil {
		return nil, ErrNotConnected
	}

	if err := conn.SetReadDeadline(time.Now().Add(ReadTimeout)); err != nil {
		return nil, fmt.Errorf("failed to arm read deadline: %w", err)
	}

	buf := make([]byte, maxDatagramSize)
	n, addr, err := conn.ReadFromUDP(buf)
	if err != nil {
		if isTimeout(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("datagram receive failed: %w", err)
	}

	d.mu.Lock()
	d.peer = addr
	d.mu.Unlock()
	return buf[:n], nil
}

// Peer returns the address of the most recent correspondent, nil before
// any datagram arrived on the receiving side.
func (d *Datagram) Peer() net.Addr {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.peer
}

// LocalAddr returns the bound address, nil after Close.
func (d *Datagram) LocalAddr() net.Addr {
	conn := d.getConn()
	if conn == nil {
		return nil
	}
	return conn.LocalAddr()
}

// Close releases the socket. Best effort and safe to call more than once,
// including concurrently with a blocked receive.
func (d *Datagram) Close() error {
	d.mu.Lock()
	conn := d.conn
	d.conn = nil
	d.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	return nil
}

package bench

import (
	"context"
	"encoding/binary"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netbench/pkg/config"
	"netbench/pkg/frame"
	"netbench/pkg/transport"
)

// startDatagramReceiver runs a receiver loop against a bound UDP socket
// and returns the peer address to send to plus a shutdown func.
func startDatagramReceiver(t *testing.T, cfg *config.Config, rec *Recorder) (string, func()) {
	t.Helper()

	tr, err := transport.ListenDatagram(0)
	require.NoError(t, err)

	localAddr := trLocalAddr(t, tr)

	ctx, cancel := context.WithCancel(context.Background())
	receiver := NewReceiver(cfg, tr, rec, testLogger())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		receiver.Run(ctx)
	}()

	stop := func() {
		cancel()
		wg.Wait()
		_ = tr.Close()
	}
	return localAddr, stop
}

func trLocalAddr(t *testing.T, tr *transport.Datagram) string {
	t.Helper()
	addr := tr.LocalAddr().(*net.UDPAddr)
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(addr.Port))
}

func TestDatagramReceiverDropsOversizedDeclaredPayload(t *testing.T) {
	cfg := config.Default()
	cfg.Mode = config.ModeDatagram
	cfg.Sender = false

	rec := NewRecorder()
	addr, stop := startDatagramReceiver(t, &cfg, rec)
	defer stop()

	conn, err := net.Dial("udp", addr)
	require.NoError(t, err)
	defer conn.Close()

	// Header declares 100 payload bytes but the datagram carries 10.
	truncated := frame.EncodeAt(1, frame.Now(), make([]byte, 100))[:frame.HeaderSize+10]
	_, err = conn.Write(truncated)
	require.NoError(t, err)

	// A sound frame after the bad one must still be processed.
	good, _ := frame.Encode(2, []byte("payload"))
	_, err = conn.Write(good)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return rec.ReceivedCount() == 1
	}, 5*time.Second, 10*time.Millisecond)

	_, metrics := rec.Snapshot()
	require.Len(t, metrics, 1)
	assert.Equal(t, uint32(2), metrics[0].MsgID)
	assert.Equal(t, len("payload"), metrics[0].PayloadSize)
}

func TestDatagramReceiverDropsShortHeader(t *testing.T) {
	cfg := config.Default()
	cfg.Mode = config.ModeDatagram
	cfg.Sender = false

	rec := NewRecorder()
	addr, stop := startDatagramReceiver(t, &cfg, rec)
	defer stop()

	conn, err := net.Dial("udp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("short"))
	require.NoError(t, err)

	good, _ := frame.Encode(1, []byte("ok"))
	_, err = conn.Write(good)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return rec.ReceivedCount() == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestStreamReceiverReassemblesSplitFrame(t *testing.T) {
	cfg := config.Default()
	cfg.Mode = config.ModeStream
	cfg.Sender = false
	cfg.Port = freePort(t)

	tr, err := transport.ListenStream(cfg.Port)
	require.NoError(t, err)
	defer tr.Close()

	rec := NewRecorder()
	receiver := NewReceiver(&cfg, tr, rec, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		receiver.Run(ctx)
	}()

	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.Port)))
	require.NoError(t, err)
	defer conn.Close()

	data, _ := frame.Encode(7, []byte("0123456789"))

	// Header split 3+13, payload delivered byte by byte.
	_, err = conn.Write(data[:3])
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	_, err = conn.Write(data[3:frame.HeaderSize])
	require.NoError(t, err)
	for _, b := range data[frame.HeaderSize:] {
		time.Sleep(5 * time.Millisecond)
		_, err = conn.Write([]byte{b})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return rec.ReceivedCount() == 1
	}, 5*time.Second, 10*time.Millisecond)

	_, metrics := rec.Snapshot()
	require.Len(t, metrics, 1)
	assert.Equal(t, uint32(7), metrics[0].MsgID)
	assert.Equal(t, 10, metrics[0].PayloadSize)

	cancel()
	wg.Wait()
	assert.Equal(t, StateStopped, receiver.State())
}

func TestStreamReceiverStopsOnNegativeLengthHeader(t *testing.T) {
	cfg := config.Default()
	cfg.Mode = config.ModeStream
	cfg.Sender = false
	cfg.Port = freePort(t)

	tr, err := transport.ListenStream(cfg.Port)
	require.NoError(t, err)
	defer tr.Close()

	rec := NewRecorder()
	receiver := NewReceiver(&cfg, tr, rec, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		receiver.Run(ctx)
	}()

	conn, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(cfg.Port)))
	require.NoError(t, err)
	defer conn.Close()

	// A negative declared length means the stream is desynchronized;
	// the receiver ends the session.
	bad := frame.EncodeAt(1, frame.Now(), nil)
	binary.LittleEndian.PutUint32(bad[12:16], uint32(0xffffffff))
	_, err = conn.Write(bad)
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("receiver did not stop on desynchronized stream")
	}
	assert.Equal(t, 0, rec.ReceivedCount())
}

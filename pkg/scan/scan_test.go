package scan

import (
	"context"
	"net"
	"net/netip"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanFindsListeningPeer(t *testing.T) {
	listener, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer listener.Close()

	port := listener.Addr().(*net.TCPAddr).Port

	found, err := Scan(context.Background(), "127.0.0.1/32", port, Options{}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, []string{"127.0.0.1"}, found)
}

func TestScanEmptyWhenNothingListens(t *testing.T) {
	// Reserve a port and close it so nothing is behind it.
	listener, err := net.ListenTCP("tcp", &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	found, err := Scan(context.Background(), "127.0.0.1/32", port, Options{}, zerolog.Nop())
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestScanRejectsBadNetwork(t *testing.T) {
	_, err := Scan(context.Background(), "not-a-network", 5000, Options{}, zerolog.Nop())
	assert.Error(t, err)
}

func TestHostAddrsExcludesNetworkAndBroadcast(t *testing.T) {
	addrs := hostAddrs(netip.MustParsePrefix("192.168.1.0/28"))

	require.Len(t, addrs, 14)
	assert.Equal(t, "192.168.1.1", addrs[0].String())
	assert.Equal(t, "192.168.1.14", addrs[len(addrs)-1].String())
}

func TestHostAddrsSingleHostPrefix(t *testing.T) {
	addrs := hostAddrs(netip.MustParsePrefix("10.0.0.5/32"))

	require.Len(t, addrs, 1)
	assert.Equal(t, "10.0.0.5", addrs[0].String())
}

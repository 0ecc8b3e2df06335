package scan

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	defaultTimeout = 500 * time.Millisecond
	defaultWorkers = 100
	progressEvery  = 50
)

// Options tunes a subnet scan. Zero values fall back to the defaults.
type Options struct {
	Timeout time.Duration
	Workers int
}

// Scan probes every host address in cidr for an open TCP port and returns
// the responders in address order. It is used to discover a benchmark
// peer before a run.
func Scan(ctx context.Context, cidr string, port int, opts Options, logger zerolog.Logger) ([]string, error) {
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return nil, fmt.Errorf("invalid network %q: %w", cidr, err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}

	hosts := hostAddrs(prefix)
	logger.Info().Str("network", cidr).Int("port", port).Int("hosts", len(hosts)).Msg("scanning for peers")

	var (
		mu      sync.Mutex
		found   []string
		scanned int
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, host := range hosts {
		host := host
		addr := net.JoinHostPort(host.String(), strconv.Itoa(port))
		g.Go(func() error {
			open := probe(ctx, addr, timeout)

			mu.Lock()
			scanned++
			if open {
				found = append(found, host.String())
				logger.Info().Str("host", host.String()).Msg("found peer")
			}
			if scanned%progressEvery == 0 {
				logger.Info().Int("scanned", scanned).Int("total", len(hosts)).Msg("scan progress")
			}
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Strings(found)
	return found, nil
}

// probe reports whether a TCP connect to addr succeeds within timeout.
func probe(ctx context.Context, addr string, timeout time.Duration) bool {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// hostAddrs enumerates the host addresses of a prefix, excluding the
// network and broadcast addresses of IPv4 subnets wider than /31.
func hostAddrs(prefix netip.Prefix) []netip.Addr {
	prefix = prefix.Masked()

	var addrs []netip.Addr
	for addr := prefix.Addr(); prefix.Contains(addr); addr = addr.Next() {
		addrs = append(addrs, addr)
	}

	if prefix.Addr().Is4() && prefix.Bits() < 31 && len(addrs) > 2 {
		addrs = addrs[1 : len(addrs)-1]
	}

	return addrs
}

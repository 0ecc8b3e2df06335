package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"netbench/pkg/bench"
	"netbench/pkg/config"
	"netbench/pkg/scan"
	"netbench/pkg/stats"
)

func main() {
	def := config.Default()

	flags := pflag.NewFlagSet("netbench", pflag.ExitOnError)
	flags.String("mode", string(def.Mode), "transport mode: stream or datagram")
	flags.String("host", def.Host, "remote peer address")
	flags.Int("port", def.Port, "port number")
	flags.Bool("sender", false, "act as sender (sends packets)")
	flags.Bool("receiver", false, "act as receiver (receives packets)")
	both := flags.Bool("both", false, "act as both sender and receiver")
	flags.Int("payload-size", def.PayloadSize, "payload size in bytes")
	flags.Int("max-packets", def.MaxPackets, "maximum packets to send")
	flags.Float64("send-delay", def.SendDelay, "delay between packets in seconds")
	flags.Int("duration", 0, "run for the given seconds (overrides max-packets termination)")
	flags.Bool("quiet", false, "disable progress logging")
	flags.Int("log-frequency", def.LogFrequency, "log progress every N packets")
	flags.String("output", def.Output, "output file for results")
	flags.Int("idle-timeout-count", def.IdleTimeoutCount, "consecutive receive timeouts before the receiver stops")
	flags.Bool("sample-system", false, "sample host cpu and network counters during the run")
	flags.Int("sample-interval", def.SampleInterval, "system sampling interval in seconds")
	scanNet := flags.String("scan", "", "discover the peer by scanning this network (CIDR) before the run")
	configFile := flags.String("config", "", "config file (yaml or json)")

	if err := flags.Parse(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.Load(*configFile, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if cfg.Quiet {
		logger = logger.Level(zerolog.WarnLevel)
	}

	if *both {
		cfg.Sender = true
		cfg.Receiver = true
	}
	if !cfg.Sender && !cfg.Receiver {
		logger.Info().Msg("no role specified, defaulting to both sender and receiver")
		cfg.Sender = true
		cfg.Receiver = true
	}

	if *scanNet != "" {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		peers, err := scan.Scan(ctx, *scanNet, cfg.Port, scan.Options{}, logger)
		cancel()
		if err != nil {
			logger.Fatal().Err(err).Msg("peer scan failed")
		}
		if len(peers) == 0 {
			logger.Fatal().Str("network", *scanNet).Msg("no peer found")
		}
		cfg.Host = peers[0]
		logger.Info().Str("host", cfg.Host).Msg("using discovered peer")
	}

	b := bench.New(cfg, logger)
	if err := b.Start(); err != nil {
		logger.Fatal().Err(err).Msg("failed to start benchmark")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	if cfg.Duration > 0 {
		logger.Info().Int("duration", cfg.Duration).Msg("running for a fixed duration")
		select {
		case <-quit:
			logger.Info().Msg("interrupted")
		case <-time.After(time.Duration(cfg.Duration) * time.Second):
		}
	} else {
		select {
		case <-quit:
			logger.Info().Msg("interrupted")
		case <-b.Done():
		}
	}

	report := b.Stop()
	if !cfg.Quiet {
		writeSummary(os.Stdout, report)
	}
}

// writeSummary prints the human-readable results banner.
func writeSummary(w io.Writer, report *stats.Report) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "======================== BENCHMARK RESULTS ========================")
	fmt.Fprintf(w, "Mode:             %s\n", report.Config.Mode)
	fmt.Fprintf(w, "Payload Size:     %d bytes\n", report.Config.PayloadSize)
	fmt.Fprintf(w, "Send Delay:       %g seconds\n", report.Config.SendDelay)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Packets Sent:     %d\n", report.Summary.PacketsSent)
	fmt.Fprintf(w, "Packets Received: %d\n", report.Summary.PacketsReceived)
	fmt.Fprintf(w, "Packet Loss:      %.2f%%\n", report.Summary.PacketLossPct)

	if lat := report.Summary.Latency; lat != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "--- Latency Statistics ---")
		fmt.Fprintf(w, "Min:              %.2f ms\n", lat.MinMs)
		fmt.Fprintf(w, "Max:              %.2f ms\n", lat.MaxMs)
		fmt.Fprintf(w, "Average:          %.2f ms\n", lat.AvgMs)
		fmt.Fprintf(w, "Median:           %.2f ms\n", lat.MedianMs)
		fmt.Fprintf(w, "95th percentile:  %.2f ms\n", lat.P95Ms)
		fmt.Fprintf(w, "99th percentile:  %.2f ms\n", lat.P99Ms)
	}

	if tp := report.Summary.Throughput; tp != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "--- Throughput Statistics ---")
		fmt.Fprintf(w, "Total Bytes:      %d\n", tp.TotalBytes)
		fmt.Fprintf(w, "Time Span:        %.2f seconds\n", tp.TimeSpanSec)
		fmt.Fprintf(w, "Throughput:       %.2f kbps\n", tp.BitsPerSecond/1000)
		fmt.Fprintf(w, "Throughput:       %.2f Mbps\n", tp.BitsPerSecond/1e6)
	}

	fmt.Fprintln(w, "====================================================================")
}

package sysmetrics

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/net"

	"netbench/pkg/stats"
)

// Sampler periodically captures host CPU usage and NIC counter deltas
// while a run is active. Samples end up in the results report so a
// benchmark can be correlated with other traffic on the box.
type Sampler struct {
	interval time.Duration
	logger   zerolog.Logger

	samples []stats.SystemSample
	done    chan struct{}

	lastNetStats []net.IOCountersStat
	lastCPUStats []cpu.TimesStat
}

func NewSampler(interval time.Duration, logger zerolog.Logger) *Sampler {
	if interval <= 0 {
		interval = time.Second
	}
	return &Sampler{
		interval: interval,
		logger:   logger.With().Str("component", "sysmetrics").Logger(),
		done:     make(chan struct{}),
	}
}

// Start launches the sampling loop. It stops when ctx is cancelled.
func (s *Sampler) Start(ctx context.Context) {
	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		// Prime the counters so the first real sample is a delta.
		s.collect(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if sample := s.collect(ctx); sample != nil {
					s.samples = append(s.samples, *sample)
				}
			}
		}
	}()
}

// Wait blocks until the sampling loop has exited and returns everything
// collected. Only call after the context passed to Start is cancelled.
func (s *Sampler) Wait() []stats.SystemSample {
	<-s.done
	return s.samples
}

func (s *Sampler) collect(ctx context.Context) *stats.SystemSample {
	sample := &stats.SystemSample{Timestamp: time.Now()}

	cpuPercent, err := s.cpuUsage(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to sample cpu usage")
	} else {
		sample.CPUUsagePercent = cpuPercent
	}

	if err := s.netCounters(ctx, sample); err != nil {
		s.logger.Warn().Err(err).Msg("failed to sample network counters")
	}

	return sample
}

// netCounters fills in NIC byte/packet deltas since the previous sample.
func (s *Sampler) netCounters(ctx context.Context, sample *stats.SystemSample) error {
	current, err := net.IOCountersWithContext(ctx, false)
	if err != nil {
		return err
	}
	if len(current) == 0 {
		return nil
	}

	if len(s.lastNetStats) > 0 {
		applyNetDelta(s.lastNetStats[0], current[0], sample)
	}

	s.lastNetStats = current
	return nil
}

// applyNetDelta fills a sample with the counter movement between two
// cumulative NIC readings.
func applyNetDelta(last, cur net.IOCountersStat, sample *stats.SystemSample) {
	sample.BytesReceived = int64(cur.BytesRecv - last.BytesRecv)
	sample.BytesSent = int64(cur.BytesSent - last.BytesSent)
	sample.PacketsReceived = int64(cur.PacketsRecv - last.PacketsRecv)
	sample.PacketsSent = int64(cur.PacketsSent - last.PacketsSent)
}

// cpuUsage derives an overall usage percentage from cumulative CPU time
// deltas between samples.
func (s *Sampler) cpuUsage(ctx context.Context) (float64, error) {
	current, err := cpu.TimesWithContext(ctx, false)
	if err != nil {
		return 0, err
	}

	if len(s.lastCPUStats) == 0 || len(current) == 0 {
		s.lastCPUStats = current
		return 0, nil
	}

	usage := cpuDelta(s.lastCPUStats[0], current[0])
	s.lastCPUStats = current
	return usage, nil
}

// cpuDelta derives a usage percentage from two cumulative CPU time
// readings, clamped to [0, 100]. A non-advancing clock reads as 0.
func cpuDelta(last, cur cpu.TimesStat) float64 {
	totalCur := cur.User + cur.System + cur.Nice + cur.Iowait + cur.Irq + cur.Softirq + cur.Steal + cur.Idle
	totalLast := last.User + last.System + last.Nice + last.Iowait + last.Irq + last.Softirq + last.Steal + last.Idle

	totalDelta := totalCur - totalLast
	if totalDelta <= 0 {
		return 0
	}

	usage := (1.0 - (cur.Idle-last.Idle)/totalDelta) * 100.0
	if usage < 0 {
		return 0
	}
	if usage > 100 {
		return 100
	}
	return usage
}

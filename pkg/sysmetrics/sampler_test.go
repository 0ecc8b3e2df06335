package sysmetrics

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/stretchr/testify/assert"

	"netbench/pkg/stats"
)

func TestCPUDelta(t *testing.T) {
	cases := []struct {
		name string
		last cpu.TimesStat
		cur  cpu.TimesStat
		want float64
	}{
		{
			name: "quarter busy",
			last: cpu.TimesStat{User: 10, System: 10, Idle: 80},
			cur:  cpu.TimesStat{User: 13, System: 12, Idle: 95},
			want: 25,
		},
		{
			name: "fully idle",
			last: cpu.TimesStat{Idle: 100},
			cur:  cpu.TimesStat{Idle: 110},
			want: 0,
		},
		{
			name: "fully busy",
			last: cpu.TimesStat{User: 50, Idle: 50},
			cur:  cpu.TimesStat{User: 60, Idle: 50},
			want: 100,
		},
		{
			name: "clock did not advance",
			last: cpu.TimesStat{User: 10, Idle: 90},
			cur:  cpu.TimesStat{User: 10, Idle: 90},
			want: 0,
		},
		{
			name: "counters went backwards",
			last: cpu.TimesStat{User: 20, Idle: 80},
			cur:  cpu.TimesStat{User: 10, Idle: 70},
			want: 0,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, cpuDelta(tc.last, tc.cur), 1e-9)
		})
	}
}

func TestApplyNetDelta(t *testing.T) {
	last := net.IOCountersStat{BytesRecv: 1000, BytesSent: 2000, PacketsRecv: 10, PacketsSent: 20}
	cur := net.IOCountersStat{BytesRecv: 1500, BytesSent: 2100, PacketsRecv: 15, PacketsSent: 21}

	var sample stats.SystemSample
	applyNetDelta(last, cur, &sample)

	assert.Equal(t, int64(500), sample.BytesReceived)
	assert.Equal(t, int64(100), sample.BytesSent)
	assert.Equal(t, int64(5), sample.PacketsReceived)
	assert.Equal(t, int64(1), sample.PacketsSent)
}

func TestSamplerCollectsUntilCancelled(t *testing.T) {
	s := NewSampler(20*time.Millisecond, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	time.Sleep(120 * time.Millisecond)
	cancel()

	samples := s.Wait()
	assert.NotEmpty(t, samples)
	for _, sample := range samples {
		assert.False(t, sample.Timestamp.IsZero())
		assert.GreaterOrEqual(t, sample.CPUUsagePercent, 0.0)
		assert.LessOrEqual(t, sample.CPUUsagePercent, 100.0)
	}
}

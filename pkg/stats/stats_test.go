package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func metricsWithLatencies(latencies ...float64) []PacketMetric {
	metrics := make([]PacketMetric, len(latencies))
	for i, l := range latencies {
		metrics[i] = PacketMetric{
			MsgID:       uint32(i + 1),
			LatencyMs:   l,
			PayloadSize: 100,
		}
	}
	return metrics
}

func TestLossPercent(t *testing.T) {
	cases := []struct {
		name     string
		sent     int
		received int
		want     float64
	}{
		{"no loss", 10, 10, 0},
		{"half lost", 10, 5, 50},
		{"all lost", 10, 0, 100},
		{"nothing sent", 0, 0, 0},
		{"nothing sent but received", 0, 3, 0},
		{"more received than sent", 5, 8, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			report := BuildReport(RunInfo{}, tc.sent, metricsWithLatencies(make([]float64, tc.received)...))
			assert.Equal(t, tc.want, report.Summary.PacketLossPct)
		})
	}
}

func TestLatencyNearestRank(t *testing.T) {
	report := BuildReport(RunInfo{}, 5, metricsWithLatencies(1, 2, 3, 4, 5))

	lat := report.Summary.Latency
	require.NotNil(t, lat)
	assert.Equal(t, 1.0, lat.MinMs)
	assert.Equal(t, 5.0, lat.MaxMs)
	assert.Equal(t, 3.0, lat.AvgMs)
	assert.Equal(t, 3.0, lat.MedianMs)
	// floor(0.95*5) = 4 -> value 5, no interpolation
	assert.Equal(t, 5.0, lat.P95Ms)
	assert.Equal(t, 5.0, lat.P99Ms)
}

func TestLatencyUnsortedInput(t *testing.T) {
	report := BuildReport(RunInfo{}, 5, metricsWithLatencies(5, 1, 4, 2, 3))

	lat := report.Summary.Latency
	require.NotNil(t, lat)
	assert.Equal(t, 1.0, lat.MinMs)
	assert.Equal(t, 5.0, lat.MaxMs)
	assert.Equal(t, 3.0, lat.MedianMs)
}

func TestMedianEvenLengthTakesLowerMiddle(t *testing.T) {
	report := BuildReport(RunInfo{}, 4, metricsWithLatencies(1, 2, 3, 4))

	lat := report.Summary.Latency
	require.NotNil(t, lat)
	assert.Equal(t, 2.0, lat.MedianMs)
}

func TestThroughput(t *testing.T) {
	metrics := []PacketMetric{
		{MsgID: 1, RecvTime: 100.0, PayloadSize: 500},
		{MsgID: 2, RecvTime: 101.0, PayloadSize: 500},
		{MsgID: 3, RecvTime: 102.0, PayloadSize: 500},
	}

	report := BuildReport(RunInfo{}, 3, metrics)

	tp := report.Summary.Throughput
	require.NotNil(t, tp)
	assert.Equal(t, int64(1500), tp.TotalBytes)
	assert.Equal(t, 2.0, tp.TimeSpanSec)
	assert.Equal(t, 6000.0, tp.BitsPerSecond)
}

func TestThroughputUndefinedForSingleMetric(t *testing.T) {
	report := BuildReport(RunInfo{}, 1, []PacketMetric{{MsgID: 1, RecvTime: 100.0, PayloadSize: 500}})
	assert.Nil(t, report.Summary.Throughput)
}

func TestThroughputUndefinedForZeroSpan(t *testing.T) {
	metrics := []PacketMetric{
		{MsgID: 1, RecvTime: 100.0, PayloadSize: 500},
		{MsgID: 2, RecvTime: 100.0, PayloadSize: 500},
	}
	report := BuildReport(RunInfo{}, 2, metrics)
	assert.Nil(t, report.Summary.Throughput)
}

func TestEmptyRunStillProducesReport(t *testing.T) {
	report := BuildReport(RunInfo{Mode: "stream"}, 0, nil)

	require.NotNil(t, report)
	assert.Equal(t, 0, report.Summary.PacketsSent)
	assert.Equal(t, 0, report.Summary.PacketsReceived)
	assert.Equal(t, 0.0, report.Summary.PacketLossPct)
	assert.Nil(t, report.Summary.Latency)
	assert.Nil(t, report.Summary.Throughput)
}

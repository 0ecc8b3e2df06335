package stats

import (
	"sort"
	"time"
)

// PacketMetric records one successfully decoded inbound frame. Entries are
// appended in arrival order and never mutated afterwards.
type PacketMetric struct {
	MsgID       uint32  `json:"msg_id"`
	SendTime    float64 `json:"send_time"`
	RecvTime    float64 `json:"recv_time"`
	PayloadSize int     `json:"payload_size"`
	LatencyMs   float64 `json:"latency_ms"`
}

// RunInfo echoes the run parameters into the persisted report.
type RunInfo struct {
	Mode        string  `json:"mode"`
	Host        string  `json:"host"`
	Port        int     `json:"port"`
	PayloadSize int     `json:"payload_size"`
	MaxPackets  int     `json:"max_packets"`
	SendDelay   float64 `json:"send_delay"`
}

// LatencyStats is the latency distribution over all received frames, in
// milliseconds. Percentiles use the nearest-rank method (no interpolation).
type LatencyStats struct {
	MinMs    float64 `json:"min_ms"`
	MaxMs    float64 `json:"max_ms"`
	AvgMs    float64 `json:"avg_ms"`
	MedianMs float64 `json:"median_ms"`
	P95Ms    float64 `json:"p95_ms"`
	P99Ms    float64 `json:"p99_ms"`
}

// ThroughputStats covers the span between the first and last received
// frame. Only meaningful with at least two frames.
type ThroughputStats struct {
	TotalBytes    int64   `json:"total_bytes"`
	TimeSpanSec   float64 `json:"time_span_sec"`
	BitsPerSecond float64 `json:"throughput_bps"`
}

// Summary aggregates the outcome of a run.
type Summary struct {
	PacketsSent     int              `json:"packets_sent"`
	PacketsReceived int              `json:"packets_received"`
	PacketLossPct   float64          `json:"packet_loss_pct"`
	Latency         *LatencyStats    `json:"latency,omitempty"`
	Throughput      *ThroughputStats `json:"throughput,omitempty"`
}

// Report is the immutable results snapshot built once at stop and written
// to the output file.
type Report struct {
	Config    RunInfo        `json:"config"`
	Summary   Summary        `json:"summary"`
	Metrics   []PacketMetric `json:"metrics"`
	System    []SystemSample `json:"system,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// SystemSample is one optional host-level measurement taken while the run
// was active.
type SystemSample struct {
	Timestamp       time.Time `json:"timestamp"`
	CPUUsagePercent float64   `json:"cpu_usage_percent"`
	BytesReceived   int64     `json:"bytes_received"`
	BytesSent       int64     `json:"bytes_sent"`
	PacketsReceived int64     `json:"packets_received"`
	PacketsSent     int64     `json:"packets_sent"`
}

// BuildReport computes the results report from the raw per-frame records.
// It is a pure function: callers pass stable snapshots of the shared state.
func BuildReport(info RunInfo, packetsSent int, metrics []PacketMetric) *Report {
	report := &Report{
		Config: info,
		Summary: Summary{
			PacketsSent:     packetsSent,
			PacketsReceived: len(metrics),
			PacketLossPct:   lossPercent(packetsSent, len(metrics)),
		},
		Metrics:   metrics,
		CreatedAt: time.Now(),
	}

	if len(metrics) > 0 {
		report.Summary.Latency = latencyStats(metrics)
	}
	if tp := throughputStats(metrics); tp != nil {
		report.Summary.Throughput = tp
	}

	return report
}

// lossPercent reports 0% when nothing was sent, and clamps to [0, 100]
// otherwise.
func lossPercent(sent, received int) float64 {
	if sent < 1 {
		return 0
	}
	loss := float64(sent-received) / float64(sent) * 100
	if loss < 0 {
		return 0
	}
	if loss > 100 {
		return 100
	}
	return loss
}

func latencyStats(metrics []PacketMetric) *LatencyStats {
	sorted := make([]float64, len(metrics))
	var total float64
	for i, m := range metrics {
		sorted[i] = m.LatencyMs
		total += m.LatencyMs
	}
	sort.Float64s(sorted)

	n := len(sorted)
	return &LatencyStats{
		MinMs:    sorted[0],
		MaxMs:    sorted[n-1],
		AvgMs:    total / float64(n),
		MedianMs: median(sorted),
		P95Ms:    nearestRank(sorted, 0.95),
		P99Ms:    nearestRank(sorted, 0.99),
	}
}

// median returns the middle element of a sorted slice, taking the lower of
// the two middles on even lengths.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 0 {
		return sorted[n/2-1]
	}
	return sorted[n/2]
}

// nearestRank indexes a sorted slice at floor(p*n) without interpolating.
func nearestRank(sorted []float64, p float64) float64 {
	idx := int(p * float64(len(sorted)))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func throughputStats(metrics []PacketMetric) *ThroughputStats {
	if len(metrics) < 2 {
		return nil
	}

	minRecv := metrics[0].RecvTime
	maxRecv := metrics[0].RecvTime
	var totalBytes int64
	for _, m := range metrics {
		if m.RecvTime < minRecv {
			minRecv = m.RecvTime
		}
		if m.RecvTime > maxRecv {
			maxRecv = m.RecvTime
		}
		totalBytes += int64(m.PayloadSize)
	}

	span := maxRecv - minRecv
	if span <= 0 {
		return nil
	}

	return &ThroughputStats{
		TotalBytes:    totalBytes,
		TimeSpanSec:   span,
		BitsPerSecond: float64(totalBytes) * 8 / span,
	}
}

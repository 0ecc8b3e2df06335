package bench

import (
	"sync"

	"netbench/pkg/stats"
)

// Recorder is the shared bookkeeping between the sender and receiver
// loops. A single mutex guards both the sent map and the metrics
// sequence; writers hold it only for the append, never across a network
// call.
type Recorder struct {
	mu      sync.Mutex
	sent    map[uint32]float64
	metrics []stats.PacketMetric
}

func NewRecorder() *Recorder {
	return &Recorder{
		sent: make(map[uint32]float64),
	}
}

// RecordSent stores the send timestamp for a transmitted message id.
func (r *Recorder) RecordSent(msgID uint32, sendTime float64) {
	r.mu.Lock()
	r.sent[msgID] = sendTime
	r.mu.Unlock()
}

// RecordMetric appends one decoded inbound frame in arrival order.
func (r *Recorder) RecordMetric(m stats.PacketMetric) {
	r.mu.Lock()
	r.metrics = append(r.metrics, m)
	r.mu.Unlock()
}

// SentCount returns the number of transmitted frames so far.
func (r *Recorder) SentCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

// ReceivedCount returns the number of decoded inbound frames so far.
func (r *Recorder) ReceivedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.metrics)
}

// Snapshot returns a stable copy of the collected state for aggregation.
func (r *Recorder) Snapshot() (sent int, metrics []stats.PacketMetric) {
	r.mu.Lock()
	defer r.mu.Unlock()

	metrics = make([]stats.PacketMetric, len(r.metrics))
	copy(metrics, r.metrics)
	return len(r.sent), metrics
}

package bench

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"netbench/pkg/config"
	"netbench/pkg/frame"
	"netbench/pkg/stats"
	"netbench/pkg/transport"
)

// ReceiverState tracks the receiver loop through its lifecycle.
type ReceiverState string

const (
	StateAwaitingConnection ReceiverState = "awaiting_connection"
	StateReceiving          ReceiverState = "receiving"
	StateStopped            ReceiverState = "stopped"
)

// Receiver drains inbound frames and turns each one into a PacketMetric.
// Stream mode reassembles frames out of the byte stream; datagram mode
// treats every datagram as one frame and drops the malformed ones.
type Receiver struct {
	cfg      *config.Config
	tr       transport.Transport
	recorder *Recorder
	logger   zerolog.Logger

	mu    sync.Mutex
	state ReceiverState
}

func NewReceiver(cfg *config.Config, tr transport.Transport, recorder *Recorder, logger zerolog.Logger) *Receiver {
	return &Receiver{
		cfg:      cfg,
		tr:       tr,
		recorder: recorder,
		logger:   logger.With().Str("component", "receiver").Logger(),
		state:    StateAwaitingConnection,
	}
}

// State returns the current lifecycle state.
func (r *Receiver) State() ReceiverState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Receiver) setState(s ReceiverState) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

// Run executes the receive loop until cancellation, peer close, or the
// idle-timeout threshold.
func (r *Receiver) Run(ctx context.Context) {
	defer r.setState(StateStopped)

	// Stream mode has to wait for a peer first.
	if acceptor, ok := r.tr.(transport.Acceptor); ok {
		r.logger.Info().Int("port", r.cfg.Port).Msg("waiting for connection")
		if err := acceptor.Accept(ctx); err != nil {
			if !errors.Is(err, context.Canceled) {
				r.logger.Error().Err(err).Msg("accept failed")
			}
			return
		}
		r.logger.Info().Stringer("peer", r.tr.Peer()).Msg("connection accepted")
	}

	r.setState(StateReceiving)

	packetsReceived := 0
	consecutiveTimeouts := 0

	for ctx.Err() == nil {
		metric, timedOut, fatal := r.receiveOne()
		if fatal {
			break
		}
		if timedOut {
			consecutiveTimeouts++
			if consecutiveTimeouts >= r.cfg.IdleTimeoutCount {
				r.logger.Info().
					Int("attempts", consecutiveTimeouts).
					Msg("idle timeout threshold reached, stopping")
				break
			}
			continue
		}
		consecutiveTimeouts = 0

		if metric == nil {
			// Malformed datagram, dropped; the session continues.
			continue
		}

		r.recorder.RecordMetric(*metric)
		packetsReceived++

		if int(metric.MsgID)%r.cfg.LogFrequency == 0 {
			r.logger.Info().
				Uint32("msg_id", metric.MsgID).
				Float64("latency_ms", metric.LatencyMs).
				Msg("receive progress")
		}
	}

	r.logger.Info().Int("packets_received", packetsReceived).Msg("receiver finished")
}

// receiveOne reads and decodes a single frame. It reports a timed-out
// attempt, a dropped frame (nil metric, datagram mode only), or a fatal
// condition ending the loop.
func (r *Receiver) receiveOne() (metric *stats.PacketMetric, timedOut, fatal bool) {
	if r.cfg.Mode == config.ModeStream {
		return r.receiveStream()
	}
	return r.receiveDatagram()
}

// receiveStream reassembles one frame out of the byte stream: exactly 16
// header bytes, then exactly the declared payload length. A truncated
// payload means the stream is desynchronized and ends the session.
func (r *Receiver) receiveStream() (*stats.PacketMetric, bool, bool) {
	header, err := r.tr.ReceiveExact(frame.HeaderSize)
	if err != nil {
		if errors.Is(err, transport.ErrConnectionClosed) {
			r.logger.Info().Msg("peer closed connection")
		} else {
			r.logger.Error().Err(err).Msg("receive failed")
		}
		return nil, false, true
	}
	if header == nil {
		return nil, true, false
	}

	msgID, sendTime, payloadLen, err := frame.DecodeHeader(header)
	if err != nil {
		r.logger.Error().Err(err).Msg("malformed header, stream desynchronized")
		return nil, false, true
	}

	payload, err := r.tr.ReceiveExact(int(payloadLen))
	if err != nil || (payload == nil && payloadLen > 0) {
		if errors.Is(err, transport.ErrConnectionClosed) {
			r.logger.Info().Msg("peer closed connection mid-frame")
		} else {
			r.logger.Error().Err(err).Uint32("msg_id", msgID).Msg("truncated payload, stream desynchronized")
		}
		return nil, false, true
	}

	return r.buildMetric(msgID, sendTime, len(payload)), false, false
}

// receiveDatagram treats one datagram as one complete frame. Decode
// failures drop the frame without ending the session.
func (r *Receiver) receiveDatagram() (*stats.PacketMetric, bool, bool) {
	data, err := r.tr.ReceiveDatagram()
	if err != nil {
		r.logger.Error().Err(err).Msg("receive failed")
		return nil, false, true
	}
	if data == nil {
		return nil, true, false
	}

	msgID, sendTime, payload, err := frame.Decode(data)
	if err != nil {
		r.logger.Warn().Err(err).Int("datagram_size", len(data)).Msg("dropping undecodable datagram")
		return nil, false, false
	}

	return r.buildMetric(msgID, sendTime, len(payload)), false, false
}

func (r *Receiver) buildMetric(msgID uint32, sendTime float64, payloadSize int) *stats.PacketMetric {
	recvTime := frame.Now()
	return &stats.PacketMetric{
		MsgID:       msgID,
		SendTime:    sendTime,
		RecvTime:    recvTime,
		PayloadSize: payloadSize,
		LatencyMs:   (recvTime - sendTime) * 1000,
	}
}

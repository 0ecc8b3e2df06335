package bench

import (
	"bytes"
	"context"
	"time"

	"github.com/rs/zerolog"

	"netbench/pkg/config"
	"netbench/pkg/frame"
	"netbench/pkg/transport"
)

// Sender emits frames at the configured pace until the packet limit is
// reached or the run is cancelled. A transmission error aborts the sender
// only; the receiver keeps running.
type Sender struct {
	cfg      *config.Config
	tr       transport.Transport
	recorder *Recorder
	logger   zerolog.Logger
}

func NewSender(cfg *config.Config, tr transport.Transport, recorder *Recorder, logger zerolog.Logger) *Sender {
	return &Sender{
		cfg:      cfg,
		tr:       tr,
		recorder: recorder,
		logger:   logger.With().Str("component", "sender").Logger(),
	}
}

// Run executes the paced send loop. It returns when the packet limit is
// reached, ctx is cancelled, or a transmission fails.
func (s *Sender) Run(ctx context.Context) {
	payload := bytes.Repeat([]byte{'a'}, s.cfg.PayloadSize)
	delay := s.cfg.Delay()

	s.logger.Info().
		Int("max_packets", s.cfg.MaxPackets).
		Int("payload_size", s.cfg.PayloadSize).
		Float64("send_delay", s.cfg.SendDelay).
		Msg("sender started")

	startTime := time.Now()
	packetsSent := 0

	for msgID := uint32(1); int(msgID) <= s.cfg.MaxPackets; msgID++ {
		if ctx.Err() != nil {
			break
		}

		data, sendTime := frame.Encode(msgID, payload)
		if err := s.tr.Send(data); err != nil {
			s.logger.Error().Err(err).Uint32("msg_id", msgID).Msg("send failed, stopping sender")
			break
		}

		s.recorder.RecordSent(msgID, sendTime)
		packetsSent++

		if int(msgID)%s.cfg.LogFrequency == 0 {
			elapsed := time.Since(startTime).Seconds()
			rate := 0.0
			if elapsed > 0 {
				rate = float64(packetsSent) / elapsed
			}
			s.logger.Info().
				Uint32("msg_id", msgID).
				Int("max_packets", s.cfg.MaxPackets).
				Float64("pkt_per_sec", rate).
				Msg("send progress")
		}

		if delay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(delay):
			}
		}
	}

	s.logger.Info().Int("packets_sent", packetsSent).Msg("sender finished")
}

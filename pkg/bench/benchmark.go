package bench

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"netbench/pkg/config"
	"netbench/pkg/stats"
	"netbench/pkg/storage"
	"netbench/pkg/sysmetrics"
	"netbench/pkg/transport"
)

const (
	// receiverGrace lets the receiver come up before the sender starts
	// when both roles run in one process.
	receiverGrace = 500 * time.Millisecond

	// catchUpDelay gives the receiver time to drain in-flight frames
	// after the sender finishes.
	catchUpDelay = 2 * time.Second

	// joinTimeout bounds how long Stop waits for the loops to exit.
	joinTimeout = 5 * time.Second
)

// Benchmark wires transports, the sender/receiver loops, and the
// aggregator into one run lifecycle. Start launches the loops, Stop runs
// the shutdown sequence exactly once and yields the report.
type Benchmark struct {
	cfg      *config.Config
	logger   zerolog.Logger
	recorder *Recorder

	ctx    context.Context
	cancel context.CancelFunc

	sendTr transport.Transport
	recvTr transport.Transport

	receiver *Receiver
	sampler  *sysmetrics.Sampler

	wg           sync.WaitGroup
	senderDone   chan struct{}
	receiverDone chan struct{}
	done         chan struct{}

	startTime time.Time
	stopOnce  sync.Once
	report    *stats.Report
}

// New prepares a benchmark for the given run config.
func New(cfg *config.Config, logger zerolog.Logger) *Benchmark {
	ctx, cancel := context.WithCancel(context.Background())

	return &Benchmark{
		cfg:          cfg,
		logger:       logger,
		recorder:     NewRecorder(),
		ctx:          ctx,
		cancel:       cancel,
		senderDone:   make(chan struct{}),
		receiverDone: make(chan struct{}),
		done:         make(chan struct{}),
	}
}

// Start establishes the transports for the configured roles and launches
// the engine loops, receiver first. Setup failures (bind, connect after
// retries) are fatal to the run.
func (b *Benchmark) Start() error {
	if !b.cfg.Sender && !b.cfg.Receiver {
		return fmt.Errorf("run has no role: enable sender, receiver, or both")
	}

	b.startTime = time.Now()
	b.logger.Info().
		Str("mode", string(b.cfg.Mode)).
		Bool("sender", b.cfg.Sender).
		Bool("receiver", b.cfg.Receiver).
		Str("remote", b.cfg.Addr()).
		Msg("starting benchmark")

	if b.cfg.Receiver {
		tr, err := b.listen()
		if err != nil {
			b.cancel()
			return err
		}
		b.recvTr = tr

		b.receiver = NewReceiver(b.cfg, tr, b.recorder, b.logger)
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			defer close(b.receiverDone)
			b.receiver.Run(b.ctx)
		}()
	}

	if b.cfg.Sender {
		if b.cfg.Receiver {
			time.Sleep(receiverGrace)
		}

		tr, err := b.dial()
		if err != nil {
			b.cancel()
			b.closeTransports()
			return err
		}
		b.sendTr = tr

		sender := NewSender(b.cfg, tr, b.recorder, b.logger)
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			defer close(b.senderDone)
			sender.Run(b.ctx)
		}()
	} else {
		close(b.senderDone)
	}

	if b.cfg.SampleSystem {
		b.sampler = sysmetrics.NewSampler(time.Duration(b.cfg.SampleInterval)*time.Second, b.logger)
		b.sampler.Start(b.ctx)
	}

	go b.watchCompletion()

	return nil
}

// watchCompletion closes Done when the run finishes on its own: the
// sender hit its packet limit (plus a receiver catch-up window), or in
// receiver-only runs the receiver stopped (peer close or idle timeout).
func (b *Benchmark) watchCompletion() {
	if b.cfg.Sender {
		<-b.senderDone
		if b.cfg.Receiver {
			select {
			case <-b.receiverDone:
			case <-time.After(catchUpDelay):
			case <-b.ctx.Done():
			}
		}
	} else {
		<-b.receiverDone
	}
	close(b.done)
}

// Done is closed when the run completes naturally. Callers still invoke
// Stop to produce the report.
func (b *Benchmark) Done() <-chan struct{} {
	return b.done
}

// SentCount exposes live sender progress.
func (b *Benchmark) SentCount() int { return b.recorder.SentCount() }

// ReceivedCount exposes live receiver progress.
func (b *Benchmark) ReceivedCount() int { return b.recorder.ReceivedCount() }

// Stop signals cancellation, joins both loops with a bounded wait, closes
// transports, aggregates the collected metrics, and persists the report
// when an output path is configured. It is idempotent: the stop sequence
// runs once and later calls return the same report.
func (b *Benchmark) Stop() *stats.Report {
	b.stopOnce.Do(func() {
		b.logger.Info().Msg("stopping benchmark")
		b.cancel()

		loopsDone := make(chan struct{})
		go func() {
			b.wg.Wait()
			close(loopsDone)
		}()
		select {
		case <-loopsDone:
		case <-time.After(joinTimeout):
			b.logger.Warn().Msg("engine loops did not stop within the join timeout")
		}

		b.closeTransports()

		sent, metrics := b.recorder.Snapshot()
		report := stats.BuildReport(b.cfg.RunInfo(), sent, metrics)
		if b.sampler != nil {
			report.System = b.sampler.Wait()
		}
		b.report = report

		b.logSummary(report)

		if b.cfg.Output != "" {
			if err := storage.WriteReport(b.cfg.Output, report); err != nil {
				b.logger.Error().Err(err).Str("path", b.cfg.Output).Msg("failed to persist report")
			} else {
				b.logger.Info().Str("path", b.cfg.Output).Msg("report saved")
			}
		}
	})

	return b.report
}

func (b *Benchmark) logSummary(report *stats.Report) {
	event := b.logger.Info().
		Int("packets_sent", report.Summary.PacketsSent).
		Int("packets_received", report.Summary.PacketsReceived).
		Float64("packet_loss_pct", report.Summary.PacketLossPct).
		Dur("elapsed", time.Since(b.startTime))

	if lat := report.Summary.Latency; lat != nil {
		event = event.
			Float64("latency_min_ms", lat.MinMs).
			Float64("latency_avg_ms", lat.AvgMs).
			Float64("latency_p99_ms", lat.P99Ms)
	}
	if tp := report.Summary.Throughput; tp != nil {
		event = event.Float64("throughput_bps", tp.BitsPerSecond)
	}

	event.Msg("benchmark finished")
}

func (b *Benchmark) listen() (transport.Transport, error) {
	if b.cfg.Mode == config.ModeStream {
		return transport.ListenStream(b.cfg.Port)
	}
	return transport.ListenDatagram(b.cfg.Port)
}

func (b *Benchmark) dial() (transport.Transport, error) {
	if b.cfg.Mode == config.ModeStream {
		return transport.DialStream(b.ctx, b.cfg.Addr())
	}
	return transport.DialDatagram(b.cfg.Addr())
}

// closeTransports releases sockets best effort; close errors are
// swallowed so stop stays idempotent.
func (b *Benchmark) closeTransports() {
	if b.sendTr != nil {
		_ = b.sendTr.Close()
	}
	if b.recvTr != nil {
		_ = b.recvTr.Close()
	}
}

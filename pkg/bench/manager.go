package bench

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"netbench/pkg/config"
	"netbench/pkg/stats"
	"netbench/pkg/storage"
)

// RunStatus describes a run as seen by the control server.
type RunStatus struct {
	RunID           string        `json:"run_id"`
	Status          string        `json:"status"` // running | completed
	Config          stats.RunInfo `json:"config"`
	PacketsSent     int           `json:"packets_sent"`
	PacketsReceived int           `json:"packets_received"`
}

// Manager runs one benchmark at a time and serves completed runs from
// file storage. Stopping an already completed run is idempotent.
type Manager struct {
	mu        sync.Mutex
	currentID string
	current   *Benchmark
	store     *storage.FileStorage
	logger    zerolog.Logger
}

func NewManager(store *storage.FileStorage, logger zerolog.Logger) *Manager {
	return &Manager{
		store:  store,
		logger: logger.With().Str("component", "run-manager").Logger(),
	}
}

// StartRun launches a benchmark under the given id. Starting the id that
// is already running is idempotent; a second concurrent run is rejected,
// as is restarting a completed run.
func (m *Manager) StartRun(runID string, cfg config.Config) error {
	if runID == "" {
		return fmt.Errorf("run id must not be empty")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.currentID != "" {
		if m.currentID == runID {
			return nil
		}
		return fmt.Errorf("run %s is already active, stop it first", m.currentID)
	}

	if m.store.Exists(runID) {
		return fmt.Errorf("run %s already completed, cannot restart", runID)
	}

	// The manager owns persistence; the run itself writes no file.
	cfg.Output = ""

	b := New(&cfg, m.logger.With().Str("run_id", runID).Logger())
	if err := b.Start(); err != nil {
		return fmt.Errorf("failed to start run %s: %w", runID, err)
	}

	m.currentID = runID
	m.current = b

	go func() {
		<-b.Done()
		if _, err := m.finalize(runID); err != nil {
			m.logger.Error().Err(err).Str("run_id", runID).Msg("failed to finalize run")
		}
	}()

	return nil
}

// StopRun ends a run and returns its report. Completed runs are served
// from storage, so stopping twice yields the same report.
func (m *Manager) StopRun(runID string) (*stats.Report, error) {
	if report, err := m.store.Load(runID); err == nil {
		return report, nil
	}

	report, err := m.finalize(runID)
	if err != nil {
		// The natural-completion watcher may have finalized the run in
		// the meantime; the stored report wins.
		if stored, loadErr := m.store.Load(runID); loadErr == nil {
			return stored, nil
		}
		return nil, err
	}
	return report, nil
}

// GetRun returns the live status of the active run or the stored report's
// summary view for a completed one.
func (m *Manager) GetRun(runID string) (*RunStatus, error) {
	m.mu.Lock()
	if m.currentID == runID && m.current != nil {
		status := &RunStatus{
			RunID:           runID,
			Status:          "running",
			Config:          m.current.cfg.RunInfo(),
			PacketsSent:     m.current.SentCount(),
			PacketsReceived: m.current.ReceivedCount(),
		}
		m.mu.Unlock()
		return status, nil
	}
	m.mu.Unlock()

	report, err := m.store.Load(runID)
	if err != nil {
		return nil, fmt.Errorf("run %s not found", runID)
	}

	return &RunStatus{
		RunID:           runID,
		Status:          "completed",
		Config:          report.Config,
		PacketsSent:     report.Summary.PacketsSent,
		PacketsReceived: report.Summary.PacketsReceived,
	}, nil
}

// GetReport returns the persisted report of a completed run.
func (m *Manager) GetReport(runID string) (*stats.Report, error) {
	return m.store.Load(runID)
}

// ListRuns returns the active run (if any) followed by all stored runs.
func (m *Manager) ListRuns() ([]RunStatus, error) {
	var runs []RunStatus

	m.mu.Lock()
	if m.current != nil {
		runs = append(runs, RunStatus{
			RunID:           m.currentID,
			Status:          "running",
			Config:          m.current.cfg.RunInfo(),
			PacketsSent:     m.current.SentCount(),
			PacketsReceived: m.current.ReceivedCount(),
		})
	}
	m.mu.Unlock()

	stored, err := m.store.List()
	if err != nil {
		return nil, err
	}
	for _, info := range stored {
		report, err := m.store.Load(info.RunID)
		if err != nil {
			m.logger.Warn().Err(err).Str("run_id", info.RunID).Msg("skipping unreadable report")
			continue
		}
		runs = append(runs, RunStatus{
			RunID:           info.RunID,
			Status:          "completed",
			Config:          report.Config,
			PacketsSent:     report.Summary.PacketsSent,
			PacketsReceived: report.Summary.PacketsReceived,
		})
	}

	return runs, nil
}

// StopAll ends the active run, if any. Used on server shutdown.
func (m *Manager) StopAll() {
	m.mu.Lock()
	runID := m.currentID
	m.mu.Unlock()

	if runID == "" {
		return
	}
	if _, err := m.StopRun(runID); err != nil {
		m.logger.Warn().Err(err).Str("run_id", runID).Msg("failed to stop active run")
	}
}

// finalize runs the stop sequence for the active run, persists the
// report, and clears the active slot.
func (m *Manager) finalize(runID string) (*stats.Report, error) {
	m.mu.Lock()
	if m.currentID != runID || m.current == nil {
		m.mu.Unlock()
		return nil, fmt.Errorf("run %s not found", runID)
	}
	b := m.current
	m.mu.Unlock()

	report := b.Stop()

	m.mu.Lock()
	if m.currentID == runID {
		m.currentID = ""
		m.current = nil
	}
	m.mu.Unlock()

	if err := m.store.Save(runID, report); err != nil {
		return report, fmt.Errorf("failed to persist report for run %s: %w", runID, err)
	}

	return report, nil
}

package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"netbench/pkg/stats"
)

// WriteReport serializes a results report to a single JSON file at path,
// creating parent directories as needed.
func WriteReport(path string, report *stats.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create report directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	return nil
}

// FileStorage keeps one JSON report per run id under a base directory.
// Used by the control server to serve completed runs.
type FileStorage struct {
	basePath string
}

// NewFileStorage creates the base directory if needed.
func NewFileStorage(basePath string) (*FileStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &FileStorage{basePath: basePath}, nil
}

// Save persists the report for a run.
func (fs *FileStorage) Save(runID string, report *stats.Report) error {
	return WriteReport(fs.reportPath(runID), report)
}

// Load reads a previously saved report.
func (fs *FileStorage) Load(runID string) (*stats.Report, error) {
	data, err := os.ReadFile(fs.reportPath(runID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("report not found for run %s", runID)
		}
		return nil, fmt.Errorf("failed to read report: %w", err)
	}

	var report stats.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}

	return &report, nil
}

// Exists reports whether a run already has a persisted report.
func (fs *FileStorage) Exists(runID string) bool {
	_, err := os.Stat(fs.reportPath(runID))
	return err == nil
}

// Delete removes a run's report.
func (fs *FileStorage) Delete(runID string) error {
	if err := os.Remove(fs.reportPath(runID)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("report not found for run %s", runID)
		}
		return fmt.Errorf("failed to delete report: %w", err)
	}
	return nil
}

// RunFileInfo is basic information about a stored run.
type RunFileInfo struct {
	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
	Size      int64     `json:"size"`
}

// List returns all stored runs.
func (fs *FileStorage) List() ([]RunFileInfo, error) {
	files, err := os.ReadDir(fs.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage directory: %w", err)
	}

	var runs []RunFileInfo
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}

		info, err := file.Info()
		if err != nil {
			continue
		}

		runs = append(runs, RunFileInfo{
			RunID:     strings.TrimSuffix(file.Name(), ".json"),
			CreatedAt: info.ModTime(),
			Size:      info.Size(),
		})
	}

	return runs, nil
}

// Path returns the storage base directory.
func (fs *FileStorage) Path() string {
	return fs.basePath
}

func (fs *FileStorage) reportPath(runID string) string {
	return filepath.Join(fs.basePath, runID+".json")
}

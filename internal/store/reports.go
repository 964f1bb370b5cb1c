package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ibeckermayer/webprobe/internal/config"
	"github.com/ibeckermayer/webprobe/internal/probe"
)

// ReportsDir returns the directory JSON reports are cached in.
// On Linux this is ~/.cache/webprobe/reports/
func ReportsDir() (string, error) {
	cacheDir, err := config.CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, "reports"), nil
}

// reportFilename sorts chronologically; dashes replace colons for filesystem compatibility
func reportFilename(r *probe.Report) string {
	id := r.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return r.StartedAt.UTC().Format("2006-01-02T15-04-05.000") + "_" + id + ".json"
}

// WriteReport writes a report as indented JSON to path
func WriteReport(path string, r *probe.Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	return nil
}

// SaveReportFile writes a report into dir under a timestamped name.
// Returns the path to the saved file.
func SaveReportFile(dir string, r *probe.Report) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create reports dir: %w", err)
	}

	path := filepath.Join(dir, reportFilename(r))
	if err := WriteReport(path, r); err != nil {
		return "", err
	}

	return path, nil
}

// LoadReportFile reads a report written by WriteReport
func LoadReportFile(path string) (*probe.Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report: %w", err)
	}

	var r probe.Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to unmarshal report: %w", err)
	}

	return &r, nil
}

// LatestReportFile returns the path to the most recent report in dir
func LatestReportFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("no reports in %s", dir)
		}
		return "", err
	}

	// os.ReadDir sorts by name, which is chronological for our filenames
	var latest string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			latest = entry.Name()
		}
	}

	if latest == "" {
		return "", fmt.Errorf("no reports in %s", dir)
	}

	return filepath.Join(dir, latest), nil
}

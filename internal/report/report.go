// Package report writes periodic JSON summary reports.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"etf-tracker/internal/analysis"
	"etf-tracker/internal/cache"
	"etf-tracker/internal/decision"
	"etf-tracker/internal/logging"
)

// Report is the serialized weekly summary.
type Report struct {
	GeneratedAt time.Time                    `json:"generated_at"`
	Period      string                       `json:"period"`
	Funds       int                          `json:"funds"`
	Summary     decision.Summary             `json:"summary"`
	Decisions   map[string]decision.Decision `json:"decisions"`
	Analyses    map[string]analysis.Result   `json:"analyses,omitempty"`
	CacheStats  *cache.Stats                 `json:"cache_stats,omitempty"`
}

// Writer persists reports to a directory, one file per run.
type Writer struct {
	dir string
	log zerolog.Logger
}

// NewWriter creates a report writer. The directory is created on first use.
func NewWriter(dir string, logger zerolog.Logger) *Writer {
	return &Writer{
		dir: dir,
		log: logging.WithComponent(logger, "report"),
	}
}

// Write builds and persists one report, returning its path.
func (w *Writer) Write(decisions map[string]decision.Decision, analyses map[string]analysis.Result, cacheStats *cache.Stats) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating report directory: %w", err)
	}

	now := time.Now()
	report := Report{
		GeneratedAt: now,
		Period:      "weekly",
		Funds:       len(decisions),
		Summary:     decision.Summarize(decisions),
		Decisions:   decisions,
		Analyses:    analyses,
		CacheStats:  cacheStats,
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding report: %w", err)
	}

	path := filepath.Join(w.dir, fmt.Sprintf("report_%s.json", now.Format("20060102_150405")))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}

	w.log.Info().Str("path", path).Int("funds", report.Funds).Msg("Report written")
	return path, nil
}

// Latest returns the most recent report on disk, or false when none exists.
func (w *Writer) Latest() (Report, bool, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return Report{}, false, nil
		}
		return Report{}, false, err
	}

	var newest string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		if e.Name() > newest {
			newest = e.Name()
		}
	}
	if newest == "" {
		return Report{}, false, nil
	}

	data, err := os.ReadFile(filepath.Join(w.dir, newest))
	if err != nil {
		return Report{}, false, err
	}
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return Report{}, false, fmt.Errorf("decoding report %s: %w", newest, err)
	}
	return r, true, nil
}

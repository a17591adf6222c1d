// Package report writes the unmatched/review report a batch leaves behind so
// users (and the retry command) can pick up where the pipeline stopped.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"tagflow/internal/store"
)

// Filename of the report at the library root.
const Filename = "_unmatched_report.json"

// Entry describes one track needing attention.
type Entry struct {
	FilePath   string  `json:"file_path"`
	Title      string  `json:"title,omitempty"`
	Artist     string  `json:"artist,omitempty"`
	Album      string  `json:"album,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// Report is the persisted batch report.
type Report struct {
	BatchID     string    `json:"batch_id"`
	GeneratedAt time.Time `json:"generated_at"`
	Totals      Totals    `json:"totals"`
	Unmatched   []Entry   `json:"unmatched"`
	Review      []Entry   `json:"review"`
	Errors      []Entry   `json:"errors"`
}

// Totals mirror the batch stats.
type Totals struct {
	Total     int `json:"total"`
	Applied   int `json:"applied"`
	Review    int `json:"review"`
	Unmatched int `json:"unmatched"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// WriteUnmatched writes the report for a batch to the library root,
// atomically via a temp file.
func WriteUnmatched(libraryRoot, batchID string, tracks []*store.Track, stats store.BatchStats) error {
	report := Report{
		BatchID:     batchID,
		GeneratedAt: time.Now().UTC(),
		Totals: Totals{
			Total:     stats.Total,
			Applied:   stats.Applied,
			Review:    stats.Review,
			Unmatched: stats.Unmatched,
			Failed:    stats.Failed,
			Skipped:   stats.Skipped,
		},
	}
	for _, track := range tracks {
		entry := Entry{
			FilePath:   track.SourcePath,
			Title:      track.Title,
			Artist:     track.Artist,
			Album:      track.Album,
			Confidence: track.Confidence,
			Error:      track.ErrorMessage,
		}
		switch track.Status {
		case store.StatusUnmatched:
			report.Unmatched = append(report.Unmatched, entry)
		case store.StatusReview:
			report.Review = append(report.Review, entry)
		case store.StatusFailed:
			report.Errors = append(report.Errors, entry)
		}
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.MkdirAll(libraryRoot, 0o755); err != nil {
		return fmt.Errorf("ensure library root: %w", err)
	}

	path := filepath.Join(libraryRoot, Filename)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp report: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename report: %w", err)
	}
	return nil
}

// Load reads the report at the library root. A missing report returns nil
// without error.
func Load(libraryRoot string) (*Report, error) {
	data, err := os.ReadFile(filepath.Join(libraryRoot, Filename))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read report: %w", err)
	}
	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("parse report: %w", err)
	}
	return &report, nil
}

// RetryPaths collects unmatched and error entries whose files still exist on
// disk. Review entries are not included.
func (r *Report) RetryPaths() []string {
	if r == nil {
		return nil
	}
	var paths []string
	for _, entries := range [][]Entry{r.Unmatched, r.Errors} {
		for _, entry := range entries {
			if _, err := os.Stat(entry.FilePath); err == nil {
				paths = append(paths, entry.FilePath)
			}
		}
	}
	return paths
}

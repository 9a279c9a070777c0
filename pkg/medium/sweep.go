package medium

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// SweepStats reports the outcome of Sweep.
type SweepStats struct {
	Removed []string      `json:"removed" yaml:"removed"`
	Kept    int           `json:"kept" yaml:"kept"`
	Elapsed time.Duration `json:"elapsed" yaml:"elapsed"`
}

// Sweep removes ephemeral media in dir last modified before now-age.
// Such files are left behind by children that never started their loader.
// An empty dir means os.TempDir and an empty pattern DefaultPattern.
func Sweep(dir, pattern string, age time.Duration) (SweepStats, error) {
	start := time.Now()
	if dir == "" {
		dir = os.TempDir()
	}
	if pattern == "" {
		pattern = DefaultPattern
	}

	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return SweepStats{}, err
	}

	var stats SweepStats
	cutoff := start.Add(-age)
	var errs []error
	for _, path := range matches {
		fi, err := os.Lstat(path)
		if err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}
		if !fi.Mode().IsRegular() || !fi.ModTime().Before(cutoff) {
			stats.Kept++
			continue
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		stats.Removed = append(stats.Removed, path)
	}

	stats.Elapsed = time.Since(start)
	return stats, errors.Join(errs...)
}

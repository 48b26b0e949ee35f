package workers

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/LabyrinthianWebsite/fantastic-waddle/logging"
	"github.com/LabyrinthianWebsite/fantastic-waddle/metrics"
	"github.com/robfig/cron/v3"
)

// UploadSweeper periodically deletes temporary uploads nobody claimed, e.g.
// after a crash between streaming the upload and ingesting it.
type UploadSweeper struct {
	dir    string
	maxAge time.Duration
	inUse  func(path string) bool
	cron   *cron.Cron
}

func NewUploadSweeper(dir string, maxAge time.Duration, schedule string, inUse func(path string) bool) (*UploadSweeper, error) {
	s := &UploadSweeper{
		dir:    dir,
		maxAge: maxAge,
		inUse:  inUse,
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.DefaultLogger),
			cron.SkipIfStillRunning(cron.DefaultLogger),
		)),
	}
	if _, err := s.cron.AddFunc(schedule, func() {
		if _, err := s.Sweep(time.Now()); err != nil {
			logging.Error("sweeper: %v", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *UploadSweeper) Start() {
	s.cron.Start()
	logging.Info("sweeper: Watching %s for uploads older than %s", s.dir, s.maxAge)
}

// Stop waits for a running sweep to finish
func (s *UploadSweeper) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep removes regular files in the upload dir last modified before now-maxAge
func (s *UploadSweeper) Sweep(now time.Time) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read upload dir %s: %w", s.dir, err)
	}

	cutoff := now.Add(-s.maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		full := filepath.Join(s.dir, entry.Name())
		if s.inUse != nil && s.inUse(full) {
			continue
		}
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			logging.Error("sweeper: Failed to remove %s: %v", full, err)
			continue
		}
		removed++
	}

	if removed > 0 {
		metrics.UploadTempSweptTotal.Add(float64(removed))
		logging.Info("sweeper: Removed %d stale upload(s) from %s", removed, s.dir)
	}
	return removed, nil
}

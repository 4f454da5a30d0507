package scratch

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	defaultSchedule = "@every 1h"
	defaultMaxAge   = 6 * time.Hour
)

// JanitorConfig configures the scratch-area sweeper.
type JanitorConfig struct {
	Schedule string            // Cron expression. Default: "@every 1h".
	MaxAge   time.Duration     // Files older than this are removed. Default: 6h.
	OnSweep  func(removed int) // Optional accounting hook, called after each sweep.
}

// Janitor removes orphaned scratch files on a schedule.
//
// Every build deletes its own artifacts at step end, so the area should
// normally be empty between builds. Files survive only when the host
// process dies mid-step; the janitor reclaims those without ever touching
// files young enough to belong to a live build.
type Janitor struct {
	area     *Area
	schedule string
	maxAge   time.Duration
	onSweep  func(removed int)
	cron     *cron.Cron
	logger   *slog.Logger
}

// NewJanitor creates a Janitor for the given area.
func NewJanitor(area *Area, cfg JanitorConfig, logger *slog.Logger) *Janitor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	schedule := cfg.Schedule
	if schedule == "" {
		schedule = defaultSchedule
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = defaultMaxAge
	}
	return &Janitor{
		area:     area,
		schedule: schedule,
		maxAge:   maxAge,
		onSweep:  cfg.OnSweep,
		logger:   logger,
	}
}

// Start begins scheduled sweeping in a background goroutine.
func (j *Janitor) Start() error {
	c := cron.New()
	if _, err := c.AddFunc(j.schedule, func() {
		if _, err := j.Sweep(time.Now()); err != nil {
			j.logger.Error("scratch sweep failed", slog.String("error", err.Error()))
		}
	}); err != nil {
		return fmt.Errorf("registering janitor schedule %q: %w", j.schedule, err)
	}
	c.Start()
	j.cron = c
	j.logger.Info("scratch janitor started",
		slog.String("schedule", j.schedule),
		slog.Duration("max_age", j.maxAge),
	)
	return nil
}

// Stop halts scheduled sweeping. A sweep already in flight finishes.
func (j *Janitor) Stop() {
	if j.cron != nil {
		j.cron.Stop()
	}
}

// Sweep removes scratch files whose modification time is older than the
// configured max age, returning how many were removed. Per-file failures
// are logged and skipped; the sweep continues.
func (j *Janitor) Sweep(now time.Time) (int, error) {
	entries, err := os.ReadDir(j.area.Root())
	if err != nil {
		return 0, fmt.Errorf("reading scratch area: %w", err)
	}

	cutoff := now.Add(-j.maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue // Raced with a build's own teardown.
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(j.area.Root(), entry.Name())
		if err := j.area.Delete(path); err != nil {
			j.logger.Error("failed to remove orphaned scratch file",
				slog.String("file", entry.Name()),
				slog.String("error", err.Error()),
			)
			continue
		}
		removed++
	}

	if removed > 0 {
		j.logger.Info("scratch sweep removed orphaned files", slog.Int("removed", removed))
	}
	if j.onSweep != nil {
		j.onSweep(removed)
	}
	return removed, nil
}

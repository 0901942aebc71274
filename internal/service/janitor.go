package service

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/singleflight"

	"github.com/MimeLyc/video-sub-translator/internal/jobs"
	"github.com/MimeLyc/video-sub-translator/pkg/file"
	"github.com/MimeLyc/video-sub-translator/pkg/icron"
	"github.com/MimeLyc/video-sub-translator/pkg/log"
)

const workspacePrefix = "vidsub-"

// Janitor removes job workspaces left behind by a crashed process.
type Janitor struct {
	tempDir  string
	maxAge   time.Duration
	cronExpr string
	cron     *cron.Cron
	current  func() (jobs.Record, bool)
	now      func() time.Time
	group    singleflight.Group
}

// NewJanitor sweeps tempDir on cronExpr. current reports the running job,
// whose workspace is never touched.
func NewJanitor(tempDir string, maxAge time.Duration, cronExpr string, c *cron.Cron, current func() (jobs.Record, bool)) *Janitor {
	if current == nil {
		current = func() (jobs.Record, bool) { return jobs.Record{}, false }
	}
	return &Janitor{
		tempDir:  tempDir,
		maxAge:   maxAge,
		cronExpr: cronExpr,
		cron:     c,
		current:  current,
		now:      time.Now,
	}
}

func (j *Janitor) Schedule(ctx context.Context) error {
	if info, err := icron.GetTriggerInfo(j.cronExpr, j.now()); err == nil {
		log.Info("Workspace janitor scheduled (%s), next run at %s", j.cronExpr, info.Next.Format(time.DateTime))
	}

	_, err := j.cron.AddFunc(j.cronExpr, func() {
		if _, err := j.Sweep(ctx); err != nil {
			log.Error("Workspace sweep failed: %v", err)
		}
	})
	return err
}

// Sweep removes stale workspaces and returns how many were deleted.
// Overlapping calls share one pass.
func (j *Janitor) Sweep(ctx context.Context) (int, error) {
	v, err, _ := j.group.Do("sweep", func() (any, error) {
		return j.sweep(ctx)
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

func (j *Janitor) sweep(ctx context.Context) (int, error) {
	stale, err := file.FindStale(j.tempDir, workspacePrefix, j.now().Add(-j.maxAge))
	if err != nil {
		return 0, err
	}

	skip := ""
	if rec, ok := j.current(); ok {
		skip = workspacePrefix + rec.ID + "-"
	}

	removed := 0
	for _, path := range stale {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if skip != "" && strings.Contains(path, skip) {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			log.Warn("Failed to remove stale workspace %s: %v", path, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		log.Info("Removed %d stale workspaces from %s", removed, j.tempDir)
	}
	return removed, nil
}

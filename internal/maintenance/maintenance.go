// Package maintenance runs the recurring housekeeping jobs: cache pruning,
// queue snapshots, and store backups. Jobs are cron-scheduled and checked
// once a minute; a failing job logs and waits for its next slot.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
)

// Job is one scheduled maintenance task.
type Job struct {
	Name     string
	Schedule string // cron expression
	Run      func(ctx context.Context) error
}

// Scheduler ticks once a minute and runs whichever jobs are due.
type Scheduler struct {
	jobs []Job
	cron *gronx.Gronx
}

// NewScheduler validates the job schedules and returns a scheduler. Jobs with
// an invalid cron expression are skipped with a warning.
func NewScheduler(jobs []Job) *Scheduler {
	cron := gronx.New()

	valid := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		if !cron.IsValid(job.Schedule) {
			slog.Warn("skipping maintenance job with invalid schedule",
				"job", job.Name, "schedule", job.Schedule)
			continue
		}
		valid = append(valid, job)
	}

	return &Scheduler{jobs: valid, cron: cron}
}

// Run blocks until ctx is cancelled, firing due jobs on minute boundaries.
func (s *Scheduler) Run(ctx context.Context) {
	if len(s.jobs) == 0 {
		slog.Info("no maintenance jobs scheduled")
		return
	}

	slog.Info("maintenance scheduler started", "jobs", len(s.jobs))

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.runDue(ctx, now)
		}
	}
}

func (s *Scheduler) runDue(ctx context.Context, now time.Time) {
	for _, job := range s.jobs {
		due, err := s.cron.IsDue(job.Schedule, now)
		if err != nil || !due {
			continue
		}

		start := time.Now()
		if err := job.Run(ctx); err != nil {
			slog.Error("maintenance job failed", "job", job.Name, "error", err)
			continue
		}
		slog.Info("maintenance job done", "job", job.Name, "duration", time.Since(start))
	}
}

package app

import (
	"context"
	"fmt"
	"time"

	pkgcron "github.com/querymind/core/internal/pkg/cron"
	"go.uber.org/zap"
)

// registerCronJobs registers all scheduled background jobs.
func (a *App) registerCronJobs() {
	cronLogger := a.logger.Named("CronService")

	if a.cfg.Learning.Enabled {
		interval := time.Duration(a.cfg.Learning.IntervalHours) * time.Hour
		a.sched.Register(pkgcron.Job{
			Name:        "learning_cycle",
			Description: fmt.Sprintf("run the learning cycle every %dh", a.cfg.Learning.IntervalHours),
			Interval:    interval,
			Fn: func(ctx context.Context) error {
				res, err := a.learning.Run(ctx)
				if err != nil {
					cronLogger.Warn("scheduled learning cycle refused", zap.Error(err))
					return err
				}
				cronLogger.Info("scheduled learning cycle done",
					zap.Int("warmed", res.PreWarm.Warmed),
					zap.Int("improved", res.Improve.Improved),
					zap.Int64("deleted", res.Cleanup.Deleted))
				return nil
			},
		})
	}

	if a.cfg.Archive.Enabled {
		a.sched.Register(pkgcron.Job{
			Name:        "archive_ledger",
			Description: fmt.Sprintf("archive ledger rows older than %d days to S3", a.cfg.Archive.RetentionDays),
			Interval:    24 * time.Hour,
			Fn: func(ctx context.Context) error {
				res, err := a.archive.Run(ctx)
				if err != nil {
					cronLogger.Warn("ledger archive failed", zap.Error(err))
					return err
				}
				if res.Archived > 0 {
					cronLogger.Info("ledger archive done", zap.Int64("archived", res.Archived))
				}
				return nil
			},
		})
	}

	a.sched.Register(pkgcron.Job{
		Name:        "cleanup_tasks",
		Description: "drop finished task records older than 7 days",
		Interval:    time.Hour,
		Fn: func(ctx context.Context) error {
			before := time.Now().AddDate(0, 0, -7).UnixMilli()
			return a.tasks.DeleteCompleted(ctx, before)
		},
	})
}

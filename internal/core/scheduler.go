package core

// scheduler.go runs import history retention on a cron schedule.
//
// Finished history records older than the retention window are deleted.
// Records still processing are never purged. A failed run is logged and
// retried at the next tick; it never stops the service.

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/JonMunkholm/inventory/internal/metrics"
)

const defaultRetentionSpec = "0 3 * * *"

// RetentionConfig holds configuration for the retention scheduler.
type RetentionConfig struct {
	RetentionDays int    // <= 0 disables the scheduler
	CronSpec      string // standard 5-field cron; default daily at 03:00
}

// StartRetentionScheduler registers the purge job and returns a stop
// function. The scheduler also stops when ctx is cancelled.
func (s *Service) StartRetentionScheduler(ctx context.Context, cfg RetentionConfig) (stop func(), err error) {
	if cfg.RetentionDays <= 0 {
		slog.Info("history retention disabled")
		return func() {}, nil
	}
	spec := strings.TrimSpace(cfg.CronSpec)
	if spec == "" {
		spec = defaultRetentionSpec
	}

	c := cron.New()
	id, err := c.AddJob(spec, s.retentionJob(ctx, cfg.RetentionDays))
	if err != nil {
		return nil, err
	}
	c.Start()
	slog.Info("history retention scheduler started",
		"cron", spec,
		"retention_days", cfg.RetentionDays,
		"next", c.Entry(id).Next,
	)

	var once sync.Once
	stop = func() {
		once.Do(func() {
			<-c.Stop().Done()
			slog.Info("history retention scheduler stopped")
		})
	}
	go func() {
		<-ctx.Done()
		stop()
	}()
	return stop, nil
}

// retentionJob wraps a purge cycle so a tick that fires while the previous
// run is still purging is skipped.
func (s *Service) retentionJob(ctx context.Context, days int) cron.Job {
	logger := cronLogger{slog.With("component", "retention")}
	return cron.NewChain(cron.SkipIfStillRunning(logger)).Then(cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		s.runRetention(ctx, days)
	}))
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	l *slog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Info("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}

// runRetention performs one purge cycle.
func (s *Service) runRetention(ctx context.Context, days int) {
	start := time.Now()
	n, err := s.PurgeHistory(ctx, days)
	if err != nil {
		slog.Error("history purge failed", "error", err)
		return
	}
	metrics.HistoryPurged.Add(float64(n))
	slog.Info("history purge completed",
		"records_purged", n,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

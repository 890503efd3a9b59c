package usecase

import (
	"context"
	"log/slog"
	"time"

	"ThesisScout/internal/ports"
)

// Scheduler wires the interval driver with starred-source monitoring.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	logger   *slog.Logger
}

// NewScheduler returns a helper to start/stop recurring monitoring.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, logger *slog.Logger) *Scheduler {
	return &Scheduler{driver: driver, pipeline: pipeline, logger: logger}
}

// Start registers the monitoring job with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	job := func(trigger time.Time) {
		report, err := s.pipeline.MonitorStarred(ctx)
		if s.logger == nil {
			return
		}
		if err != nil {
			s.logger.Error("monitoring run failed", "trigger", trigger, "error", err)
			return
		}
		s.logger.Info("monitoring run finished",
			"trigger", trigger,
			"sources", report.Sources,
			"new_articles", report.NewArticles,
			"matches", len(report.Matches),
			"notified", report.Notified,
		)
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}

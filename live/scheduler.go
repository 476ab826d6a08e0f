package live

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the periodic event refresh.
type Scheduler struct {
	cron    *cron.Cron
	tracker *Tracker
	logger  *slog.Logger
}

func NewScheduler(tracker *Tracker, logger *slog.Logger) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))
	return &Scheduler{cron: c, tracker: tracker, logger: logger}
}

// Start registers the refresh job. ctx bounds every refresh run.
func (s *Scheduler) Start(ctx context.Context, schedule string) error {
	_, err := s.cron.AddFunc(schedule, func() {
		s.tracker.Refresh(ctx)
	})
	if err != nil {
		return err
	}
	s.logger.Info("scheduled event refresh job", slog.String("schedule", schedule))
	s.cron.Start()
	return nil
}

// Stop returns a context that is done once running jobs have finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

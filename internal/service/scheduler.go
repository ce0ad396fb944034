package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/ifuryst/contentsync/internal/config"
	"github.com/ifuryst/contentsync/internal/runner"
)

// PendingStarter starts a run over never attempted items
type PendingStarter interface {
	StartPending(ctx context.Context, trigger string) (int, error)
}

// Scheduler periodically starts a run over pending queue items
type Scheduler struct {
	config *config.SchedulerConfig
	logger *zap.Logger
	runs   PendingStarter
	cron   *cron.Cron
}

func NewScheduler(cfg *config.SchedulerConfig, logger *zap.Logger, runs PendingStarter) *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	return &Scheduler{
		config: cfg,
		logger: logger,
		runs:   runs,
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger), cron.Recover(cron.DefaultLogger)),
		),
	}
}

// Spec returns the cron expression the scheduler runs on
func (s *Scheduler) Spec() string {
	if s.config.Cron != "" {
		return s.config.Cron
	}
	return "@every " + s.config.Interval
}

func (s *Scheduler) Start(ctx context.Context) error {
	if !s.config.Enabled {
		s.logger.Info("Scheduler is disabled")
		return nil
	}

	spec := s.Spec()
	if _, err := s.cron.AddFunc(spec, func() { s.runPending(ctx) }); err != nil {
		s.logger.Error("Invalid schedule", zap.String("schedule", spec), zap.Error(err))
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	s.logger.Info("Starting scheduler", zap.String("schedule", spec))

	// Pick up whatever is pending right away
	go s.runPending(ctx)

	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler shutdown completed")
}

func (s *Scheduler) runPending(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	start := time.Now()
	n, err := s.runs.StartPending(ctx, TriggerScheduler)
	switch {
	case errors.Is(err, runner.ErrNoItems):
		s.logger.Debug("No pending queue items")
	case errors.Is(err, runner.ErrAlreadyRunning), errors.Is(err, runner.ErrFinishing):
		s.logger.Debug("Run in progress, skipping scheduled run")
	case err != nil:
		s.logger.Error("Scheduled run failed to start",
			zap.Error(err),
			zap.Duration("duration", time.Since(start)))
	default:
		s.logger.Info("Scheduled run started", zap.Int("items", n))
	}
}

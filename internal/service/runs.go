package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ifuryst/contentsync/internal/destination"
	"github.com/ifuryst/contentsync/internal/metrics"
	"github.com/ifuryst/contentsync/internal/queue"
	"github.com/ifuryst/contentsync/internal/runner"
)

// Run triggers
const (
	TriggerAPI       = "api"
	TriggerScheduler = "scheduler"
)

// QueueReader lists the items a run works on
type QueueReader interface {
	ListStuck(ctx context.Context, limit int) ([]uint, error)
	ListByStatus(ctx context.Context, status destination.Status, limit int) ([]uint, error)
	Counts(ctx context.Context) (queue.Counts, error)
}

// RunService starts runs of the runner over items read from the queue
type RunService struct {
	runner  *runner.Runner
	queue   QueueReader
	metrics *metrics.Metrics
	limit   int
	logger  *zap.Logger

	// runs outlive the request that started them
	baseCtx context.Context
}

func NewRunService(ctx context.Context, r *runner.Runner, q QueueReader, m *metrics.Metrics, limit int, logger *zap.Logger) *RunService {
	return &RunService{
		runner:  r,
		queue:   q,
		metrics: m,
		limit:   limit,
		logger:  logger,
		baseCtx: ctx,
	}
}

func (s *RunService) Runner() *runner.Runner { return s.runner }

// StartStuck runs every stuck item. It returns the number of items in the run.
func (s *RunService) StartStuck(ctx context.Context, trigger string) (int, error) {
	ids, err := s.queue.ListStuck(ctx, s.limit)
	if err != nil {
		return 0, err
	}
	return s.start(ctx, trigger, ids)
}

// StartPending runs every item that was never attempted
func (s *RunService) StartPending(ctx context.Context, trigger string) (int, error) {
	ids, err := s.queue.ListByStatus(ctx, destination.StatusInit, s.limit)
	if err != nil {
		return 0, err
	}
	return s.start(ctx, trigger, ids)
}

func (s *RunService) start(ctx context.Context, trigger string, ids []uint) (int, error) {
	if len(ids) == 0 {
		return 0, runner.ErrNoItems
	}
	if s.runner.State() == runner.StateRunning || s.runner.State() == runner.StatePaused {
		return 0, runner.ErrAlreadyRunning
	}

	counts, err := s.queue.Counts(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read queue counts: %w", err)
	}
	s.runner.Counters().Reset(runner.Counters{
		Scheduled: counts.Scheduled,
		Completed: counts.Completed,
		Failed:    counts.Failed,
	})

	if err := s.runner.Start(s.baseCtx, ids); err != nil {
		return 0, err
	}
	s.metrics.RunStarted(trigger)

	s.logger.Info("Run scheduled",
		zap.String("trigger", trigger),
		zap.Int("items", len(ids)))
	return len(ids), nil
}

// Shutdown stops an active run and waits for its in-flight item
func (s *RunService) Shutdown(ctx context.Context) error {
	if _, err := s.runner.Stop(); err != nil && !errors.Is(err, runner.ErrNotRunning) {
		return err
	}
	return s.runner.Wait(ctx)
}

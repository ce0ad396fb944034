package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ifuryst/contentsync/internal/metrics"
	"github.com/ifuryst/contentsync/internal/queue"
)

// QueueMaintainer is the part of queue.Repository the stats updater needs
type QueueMaintainer interface {
	Counts(ctx context.Context) (queue.Counts, error)
	PurgeSucceeded(ctx context.Context, cutoff time.Time) (int64, error)
}

// StatsUpdater refreshes queue gauges and purges old successful items
type StatsUpdater struct {
	queue     QueueMaintainer
	metrics   *metrics.Metrics
	retention time.Duration
	logger    *zap.Logger
	ticker    *time.Ticker
	done      chan bool
}

func NewStatsUpdater(q QueueMaintainer, m *metrics.Metrics, retention time.Duration, logger *zap.Logger, interval time.Duration) *StatsUpdater {
	return &StatsUpdater{
		queue:     q,
		metrics:   m,
		retention: retention,
		logger:    logger,
		ticker:    time.NewTicker(interval),
		done:      make(chan bool),
	}
}

func (s *StatsUpdater) Start(ctx context.Context) {
	go func() {
		s.logger.Info("Starting stats updater")
		s.update(ctx)
		for {
			select {
			case <-s.done:
				s.logger.Info("Stats updater stopped")
				return
			case <-ctx.Done():
				s.logger.Info("Stats updater stopped due to context cancellation")
				return
			case <-s.ticker.C:
				s.update(ctx)
			}
		}
	}()
}

func (s *StatsUpdater) Stop() {
	s.ticker.Stop()
	close(s.done)
}

func (s *StatsUpdater) update(ctx context.Context) {
	counts, err := s.queue.Counts(ctx)
	if err != nil {
		s.logger.Error("Failed to update queue stats", zap.Error(err))
	} else {
		s.metrics.SetQueueItems(counts.Scheduled, counts.Started, counts.Completed, counts.Failed)
		s.logger.Debug("Queue stats updated",
			zap.Int64("scheduled", counts.Scheduled),
			zap.Int64("completed", counts.Completed),
			zap.Int64("failed", counts.Failed))
	}

	if s.retention <= 0 {
		return
	}
	purged, err := s.queue.PurgeSucceeded(ctx, time.Now().Add(-s.retention))
	if err != nil {
		s.logger.Error("Failed to purge queue items", zap.Error(err))
		return
	}
	if purged > 0 {
		s.logger.Info("Purged successful queue items", zap.Int64("purged", purged))
	}
}

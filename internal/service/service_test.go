package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ifuryst/contentsync/internal/config"
	"github.com/ifuryst/contentsync/internal/destination"
	"github.com/ifuryst/contentsync/internal/metrics"
	"github.com/ifuryst/contentsync/internal/models"
	"github.com/ifuryst/contentsync/internal/queue"
	"github.com/ifuryst/contentsync/internal/runner"
)

type fakeQueue struct {
	mu      sync.Mutex
	stuck   []uint
	pending []uint
	counts  queue.Counts
	purged  []time.Time
	err     error
}

func (q *fakeQueue) ListStuck(context.Context, int) ([]uint, error) { return q.stuck, q.err }

func (q *fakeQueue) ListByStatus(_ context.Context, status destination.Status, _ int) ([]uint, error) {
	if status != destination.StatusInit {
		return nil, errors.New("unexpected status")
	}
	return q.pending, q.err
}

func (q *fakeQueue) Counts(context.Context) (queue.Counts, error) { return q.counts, q.err }

func (q *fakeQueue) PurgeSucceeded(_ context.Context, cutoff time.Time) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.purged = append(q.purged, cutoff)
	return 2, nil
}

func (q *fakeQueue) purges() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.purged)
}

type okProcessor struct{}

func (okProcessor) Process(context.Context, uint) (models.ProcessResult, error) {
	return models.Succeeded(""), nil
}

func newRunService(t *testing.T, q *fakeQueue) (*RunService, *metrics.Metrics) {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	r := runner.New(okProcessor{}, time.Second, zap.NewNop(), m.RunObserver())
	return NewRunService(context.Background(), r, q, m, 100, zap.NewNop()), m
}

func TestRunService_StartStuck(t *testing.T) {
	q := &fakeQueue{stuck: []uint{4, 5}, counts: queue.Counts{Scheduled: 1, Completed: 7, Failed: 1}}
	svc, m := newRunService(t, q)

	n, err := svc.StartStuck(context.Background(), TriggerAPI)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, svc.Runner().Wait(ctx))

	assert.Equal(t, runner.Counters{Scheduled: 0, Completed: 9, Failed: 1}, svc.Runner().Counters().Counters())
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RunsStarted.WithLabelValues(TriggerAPI)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RunsFinished.WithLabelValues("completed")))
}

func TestRunService_NothingToRun(t *testing.T) {
	svc, _ := newRunService(t, &fakeQueue{})

	_, err := svc.StartStuck(context.Background(), TriggerAPI)
	assert.ErrorIs(t, err, runner.ErrNoItems)
	_, err = svc.StartPending(context.Background(), TriggerScheduler)
	assert.ErrorIs(t, err, runner.ErrNoItems)
}

func TestRunService_QueueError(t *testing.T) {
	svc, _ := newRunService(t, &fakeQueue{err: errors.New("connection reset")})

	_, err := svc.StartStuck(context.Background(), TriggerAPI)
	assert.Error(t, err)
	assert.Equal(t, runner.StateIdle, svc.Runner().State())
}

func TestRunService_ShutdownWithoutRun(t *testing.T) {
	svc, _ := newRunService(t, &fakeQueue{})
	assert.NoError(t, svc.Shutdown(context.Background()))
}

type pendingFunc func(ctx context.Context, trigger string) (int, error)

func (f pendingFunc) StartPending(ctx context.Context, trigger string) (int, error) {
	return f(ctx, trigger)
}

func TestScheduler_Spec(t *testing.T) {
	s := NewScheduler(&config.SchedulerConfig{Interval: "5m"}, zap.NewNop(), nil)
	assert.Equal(t, "@every 5m", s.Spec())

	s = NewScheduler(&config.SchedulerConfig{Interval: "5m", Cron: "*/10 * * * *"}, zap.NewNop(), nil)
	assert.Equal(t, "*/10 * * * *", s.Spec())
}

func TestScheduler_RunsImmediately(t *testing.T) {
	triggered := make(chan string, 1)
	s := NewScheduler(&config.SchedulerConfig{Enabled: true, Interval: "1h"}, zap.NewNop(),
		pendingFunc(func(_ context.Context, trigger string) (int, error) {
			triggered <- trigger
			return 0, runner.ErrNoItems
		}))

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	select {
	case trigger := <-triggered:
		assert.Equal(t, TriggerScheduler, trigger)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not run")
	}
}

func TestScheduler_Disabled(t *testing.T) {
	s := NewScheduler(&config.SchedulerConfig{Interval: "1m"}, zap.NewNop(),
		pendingFunc(func(context.Context, string) (int, error) {
			t.Fatal("disabled scheduler must not run")
			return 0, nil
		}))
	require.NoError(t, s.Start(context.Background()))
	s.Stop()
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	s := NewScheduler(&config.SchedulerConfig{Enabled: true, Cron: "every tuesday"}, zap.NewNop(), nil)
	assert.Error(t, s.Start(context.Background()))
}

func TestStatsUpdater_UpdatesGaugesAndPurges(t *testing.T) {
	q := &fakeQueue{counts: queue.Counts{Scheduled: 4, Started: 1, Completed: 9, Failed: 2}}
	m := metrics.New(prometheus.NewRegistry())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	u := NewStatsUpdater(q, m, time.Hour, zap.NewNop(), time.Hour)
	u.Start(ctx)
	defer u.Stop()

	require.Eventually(t, func() bool { return q.purges() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, float64(4), testutil.ToFloat64(m.QueueItems.WithLabelValues("init")))
	assert.Equal(t, float64(9), testutil.ToFloat64(m.QueueItems.WithLabelValues("success")))
}

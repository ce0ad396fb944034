package metrics

import (
	"github.com/ifuryst/contentsync/internal/destination"
	"github.com/ifuryst/contentsync/internal/runner"
)

// RunObserver records run outcomes
type RunObserver struct {
	m *Metrics
}

func (m *Metrics) RunObserver() *RunObserver {
	return &RunObserver{m: m}
}

// ItemFinished is a no-op, items are counted where they are processed
func (o *RunObserver) ItemFinished(uint, destination.Status) {}

func (o *RunObserver) RunFinished(report runner.Report) {
	o.m.RunsFinished.WithLabelValues(string(report.State)).Inc()
	o.m.RunActive.Set(0)
}

// RunStarted marks a run started by trigger as active
func (m *Metrics) RunStarted(trigger string) {
	m.RunsStarted.WithLabelValues(trigger).Inc()
	m.RunActive.Set(1)
}

// SetQueueItems publishes the stored item counts per status
func (m *Metrics) SetQueueItems(scheduled, started, completed, failed int64) {
	m.QueueItems.WithLabelValues(string(destination.StatusInit)).Set(float64(scheduled))
	m.QueueItems.WithLabelValues(string(destination.StatusStarted)).Set(float64(started))
	m.QueueItems.WithLabelValues(string(destination.StatusSuccess)).Set(float64(completed))
	m.QueueItems.WithLabelValues(string(destination.StatusFailed)).Set(float64(failed))
}

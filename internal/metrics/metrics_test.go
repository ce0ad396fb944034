package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ifuryst/contentsync/internal/runner"
)

func TestNew_RegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ItemsEnqueued.WithLabelValues("remote").Inc()
	m.SetQueueItems(12, 1, 3, 2)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "contentsync_queue_items_enqueued_total")
	assert.Contains(t, names, "contentsync_queue_items")

	assert.Equal(t, float64(12), testutil.ToFloat64(m.QueueItems.WithLabelValues("init")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.QueueItems.WithLabelValues("failed")))

	assert.Panics(t, func() { New(reg) })
}

func TestRunObserver(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RunStarted("api")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RunActive))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RunsStarted.WithLabelValues("api")))

	m.RunObserver().RunFinished(runner.Report{State: runner.StateStopped})
	assert.Equal(t, float64(0), testutil.ToFloat64(m.RunActive))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RunsFinished.WithLabelValues("stopped")))
}

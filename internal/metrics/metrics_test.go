package metrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edihub/internal/metrics"
)

func TestRecorderCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := metrics.New(reg)
	require.NoError(t, err)

	r.MessageEnqueued("NotifyAggregatedMeasureData")
	r.MessageEnqueued("NotifyAggregatedMeasureData")
	r.Peek("Aggregations", "hit")
	r.Dequeue("ok")
	r.AssignRetry()
	r.ObserveRender("Json", 5*time.Millisecond)

	assert.Equal(t, 2.0, total(t, reg, "edihub_messages_enqueued_total"))
	assert.Equal(t, 1.0, total(t, reg, "edihub_bundle_assign_retries_total"))
	n, err := testutil.GatherAndCount(reg, "edihub_peek_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRecorderReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := metrics.New(reg)
	require.NoError(t, err)
	b, err := metrics.New(reg)
	require.NoError(t, err)

	a.BundleCreated()
	b.BundleCreated()
	n, err := testutil.GatherAndCount(reg, "edihub_bundles_created_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 2.0, total(t, reg, "edihub_bundles_created_total"))
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *metrics.Recorder
	assert.NotPanics(t, func() {
		r.MessageEnqueued("x")
		r.Peek("None", "empty")
		r.OrphanedContent()
		r.ObserveRender("Xml", time.Second)
	})
}

func total(t *testing.T, g prometheus.Gatherer, name string) float64 {
	t.Helper()
	families, err := g.Gather()
	require.NoError(t, err)
	var sum float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			sum += m.GetCounter().GetValue()
		}
	}
	return sum
}

package services_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/drydock-pm/drydock/modules/workitems/infrastructure/memory"
)

func counterValue(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	mfs, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if matchLabels(m, labels) {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matchLabels(m *dto.Metric, want map[string]string) bool {
	got := map[string]string{}
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range want {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestAllocatorMetrics(t *testing.T) {
	a := newAllocator(t, memory.New())
	oneBefore := counterValue(t, "workitem_ids_allocated_total", map[string]string{"mode": "single"})
	batchBefore := counterValue(t, "workitem_ids_allocated_total", map[string]string{"mode": "batch"})

	_, err := a.GenerateOne(context.Background(), "p1", refDay)
	require.NoError(t, err)
	_, err = a.GenerateBatch(context.Background(), "p1", 3, refDay)
	require.NoError(t, err)

	require.GreaterOrEqual(t, counterValue(t, "workitem_ids_allocated_total", map[string]string{"mode": "single"}), oneBefore+1)
	require.GreaterOrEqual(t, counterValue(t, "workitem_ids_allocated_total", map[string]string{"mode": "batch"}), batchBefore+3)
}

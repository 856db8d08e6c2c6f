package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestRunFinishedClassifiesErrors(t *testing.T) {
	m := NewSchedulerMetricsForTest(prometheus.NewRegistry())

	m.RunFinished("compensation_retry", time.Millisecond, 0, fmt.Errorf("claim: %w", context.DeadlineExceeded))
	m.RunFinished("compensation_retry", time.Millisecond, 0, context.Canceled)
	m.RunFinished("compensation_retry", time.Millisecond, 0, errors.New("boom"))
	m.RunFinished("compensation_retry", time.Millisecond, 0, nil)

	require.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("compensation_retry", TxReasonDeadlineExceeded)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("compensation_retry", TxReasonCanceled)))
	require.Equal(t, 1.0, testutil.ToFloat64(m.errors.WithLabelValues("compensation_retry", TxReasonUnknown)))
	require.Equal(t, 3, testutil.CollectAndCount(m.errors))

	// One series per job; every run lands in it.
	require.Equal(t, 1, testutil.CollectAndCount(m.duration))
	count, err := durationSampleCount(m, "compensation_retry")
	require.NoError(t, err)
	require.EqualValues(t, 4, count)
}

func TestRunFinishedCountsProcessed(t *testing.T) {
	m := NewSchedulerMetricsForTest(prometheus.NewRegistry())

	m.RunFinished("compensation_retry", time.Millisecond, 3, nil)
	m.RunFinished("compensation_retry", time.Millisecond, 0, nil)

	require.Equal(t, 3.0, testutil.ToFloat64(m.processed.WithLabelValues("compensation_retry")))
}

func TestSchedulerCollectorsCarryServiceLabels(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewSchedulerMetricsForTest(registry)
	m.RunStarted("compensation_retry")

	families, err := registry.Gather()
	require.NoError(t, err)

	labels := map[string]string{}
	for _, family := range families {
		if family.GetName() != "eventreg_scheduler_job_runs_total" {
			continue
		}
		for _, pair := range family.GetMetric()[0].GetLabel() {
			labels[pair.GetName()] = pair.GetValue()
		}
	}
	require.Equal(t, map[string]string{"service": "eventreg", "env": "test", "job": "compensation_retry"}, labels)
}

func TestSchedulerMetricsNilSafe(t *testing.T) {
	var m *SchedulerMetrics

	m.RunStarted("compensation_retry")
	m.RunFinished("compensation_retry", time.Second, 1, errors.New("boom"))
	m.RunTimedOut("compensation_retry")
	m.LoopLag(time.Second)
}

func durationSampleCount(m *SchedulerMetrics, job string) (uint64, error) {
	observer, err := m.duration.GetMetricWithLabelValues(job)
	if err != nil {
		return 0, err
	}
	var out dto.Metric
	if err := observer.(prometheus.Metric).Write(&out); err != nil {
		return 0, err
	}
	return out.GetHistogram().GetSampleCount(), nil
}

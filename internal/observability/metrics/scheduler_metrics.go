package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SchedulerMetrics tracks background job runs. A nil value records nothing.
type SchedulerMetrics struct {
	runs      *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	timeouts  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	processed *prometheus.CounterVec
	lag       prometheus.Histogram
}

var (
	schedulerOnce sync.Once
	scheduler     *SchedulerMetrics
)

func Scheduler() *SchedulerMetrics {
	return SchedulerWithConfig(Config{})
}

// SchedulerWithConfig registers the scheduler collectors on the default
// registry once and returns them.
func SchedulerWithConfig(cfg Config) *SchedulerMetrics {
	schedulerOnce.Do(func() {
		scheduler = newSchedulerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return scheduler
}

func NewSchedulerMetricsForTest(registerer prometheus.Registerer) *SchedulerMetrics {
	return newSchedulerMetrics(registerer, Config{ServiceName: "eventreg", Environment: "test"})
}

func newSchedulerMetrics(registerer prometheus.Registerer, cfg Config) *SchedulerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	f := promauto.With(prometheus.WrapRegistererWith(serviceLabels(cfg), registerer))

	return &SchedulerMetrics{
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eventreg_scheduler_job_runs_total",
			Help: "Scheduler job runs by name.",
		}, []string{"job"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "eventreg_scheduler_job_duration_seconds",
			Help:    "Wall time of a scheduler job run.",
			Buckets: prometheus.ExponentialBucketsRange(0.01, 120, 12),
		}, []string{"job"}),
		timeouts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eventreg_scheduler_job_timeouts_total",
			Help: "Scheduler job runs cut short by their deadline.",
		}, []string{"job"}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eventreg_scheduler_job_errors_total",
			Help: "Failed scheduler job runs by reason.",
		}, []string{"job", "reason"}),
		processed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eventreg_scheduler_batch_processed_total",
			Help: "Items settled by scheduler jobs.",
		}, []string{"job"}),
		lag: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "eventreg_scheduler_runloop_lag_seconds",
			Help:    "How late a run loop tick started.",
			Buckets: prometheus.ExponentialBucketsRange(0.01, 60, 10),
		}),
	}
}

// serviceLabels are attached to every collector in this package.
func serviceLabels(cfg Config) prometheus.Labels {
	service := strings.TrimSpace(cfg.ServiceName)
	if service == "" {
		service = "eventreg"
	}
	env := strings.TrimSpace(cfg.Environment)
	if env == "" {
		env = "unknown"
	}
	return prometheus.Labels{"service": service, "env": env}
}

func (m *SchedulerMetrics) RunStarted(job string) {
	if m != nil {
		m.runs.WithLabelValues(job).Inc()
	}
}

// RunFinished records a completed run. A cancelled run counts as a deadline
// failure.
func (m *SchedulerMetrics) RunFinished(job string, took time.Duration, processed int, err error) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(job).Observe(took.Seconds())
	if processed > 0 {
		m.processed.WithLabelValues(job).Add(float64(processed))
	}
	if err == nil {
		return
	}
	m.errors.WithLabelValues(job, ClassifyTxReason(err)).Inc()
}

func (m *SchedulerMetrics) RunTimedOut(job string) {
	if m != nil {
		m.timeouts.WithLabelValues(job).Inc()
	}
}

func (m *SchedulerMetrics) LoopLag(d time.Duration) {
	if m != nil && d > 0 {
		m.lag.Observe(d.Seconds())
	}
}

package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"
)

const (
	TxReasonDeadlineExceeded     = "deadline_exceeded"
	TxReasonCanceled             = "canceled"
	TxReasonDBLockTimeout        = "db_lock_timeout"
	TxReasonSerializationFailure = "serialization_failure"
	TxReasonUniqueViolation      = "unique_violation"
	TxReasonUnknown              = "unknown"
)

const (
	LockResourceEventMutex = "event_mutex"
	LockResourceEventRedis = "event_redis"
	LockResourceEventRow   = "event_row"
	LockResourcePaymentRow = "payment_row"
)

// RegistrationMetrics captures capacity contention and outcome signals.
type RegistrationMetrics struct {
	decisions         *prometheus.CounterVec
	txErrors          *prometheus.CounterVec
	lockWait          *prometheus.HistogramVec
	notifyDropped     prometheus.Counter
	notifyQueueDepth  prometheus.Gauge
	rateLimited       *prometheus.CounterVec
	lockWaitObservers map[string]prometheus.Observer
}

var (
	registrationMetricsOnce sync.Once
	registrationMetrics     *RegistrationMetrics
)

// Registration returns the singleton registration metrics registry.
func Registration() *RegistrationMetrics {
	return RegistrationWithConfig(Config{})
}

// RegistrationWithConfig returns the singleton registry using config labels.
func RegistrationWithConfig(cfg Config) *RegistrationMetrics {
	registrationMetricsOnce.Do(func() {
		registrationMetrics = newRegistrationMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return registrationMetrics
}

// NewRegistrationMetricsForTest builds an unshared registry-backed instance.
func NewRegistrationMetricsForTest(registerer prometheus.Registerer) *RegistrationMetrics {
	return newRegistrationMetrics(registerer, Config{ServiceName: "eventreg", Environment: "test"})
}

func newRegistrationMetrics(registerer prometheus.Registerer, cfg Config) *RegistrationMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	f := promauto.With(prometheus.WrapRegistererWith(serviceLabels(cfg), registerer))

	m := &RegistrationMetrics{
		decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eventreg_capacity_decisions_total",
			Help: "Capacity ledger decisions by outcome and rejection reason.",
		}, []string{"decision", "reason"}),
		txErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eventreg_registration_tx_errors_total",
			Help: "Registration transaction failures by reason.",
		}, []string{"operation", "reason"}),
		lockWait: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "eventreg_lock_wait_seconds",
			Help:    "Time spent waiting for per-event and per-payment locks.",
			Buckets: prometheus.ExponentialBucketsRange(0.0005, 10, 14),
		}, []string{"resource"}),
		notifyDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "eventreg_notifications_dropped_total",
			Help: "Notifications dropped because the dispatch queue was full.",
		}),
		notifyQueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "eventreg_notification_queue_depth",
			Help: "Notifications waiting for the dispatch worker.",
		}),
		rateLimited: f.NewCounterVec(prometheus.CounterOpts{
			Name: "eventreg_rate_limited_total",
			Help: "Registration attempts rejected by the rate limiter.",
		}, []string{"scope"}),
		lockWaitObservers: map[string]prometheus.Observer{},
	}
	// pre-create the known lock series so they export zeros
	for _, resource := range []string{LockResourceEventMutex, LockResourceEventRedis, LockResourceEventRow, LockResourcePaymentRow} {
		m.lockWaitObservers[resource] = m.lockWait.WithLabelValues(resource)
	}
	return m
}

// IncDecision counts a capacity ledger decision.
func (m *RegistrationMetrics) IncDecision(decision, reason string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(decision, reason).Inc()
}

// IncTxError counts a failed registration transaction with classification.
func (m *RegistrationMetrics) IncTxError(operation string, err error) {
	if m == nil || err == nil {
		return
	}
	m.txErrors.WithLabelValues(operation, ClassifyTxReason(err)).Inc()
}

// ObserveLockWait records how long a lock acquisition took.
func (m *RegistrationMetrics) ObserveLockWait(resource string, wait time.Duration) {
	if m == nil {
		return
	}
	if observer, ok := m.lockWaitObservers[resource]; ok {
		observer.Observe(wait.Seconds())
		return
	}
	m.lockWait.WithLabelValues(resource).Observe(wait.Seconds())
}

func (m *RegistrationMetrics) IncNotificationDropped() {
	if m == nil {
		return
	}
	m.notifyDropped.Inc()
}

func (m *RegistrationMetrics) SetNotificationQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.notifyQueueDepth.Set(float64(depth))
}

// IncRateLimited counts a throttled registration attempt; scope is
// "participant" or "event".
func (m *RegistrationMetrics) IncRateLimited(scope string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(scope).Inc()
}

// ClassifyTxReason maps transaction errors to a bounded label set.
func ClassifyTxReason(err error) string {
	if err == nil {
		return TxReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return TxReasonDeadlineExceeded
	}
	if errors.Is(err, context.Canceled) {
		return TxReasonCanceled
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return TxReasonUniqueViolation
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr != nil {
		switch pgErr.Code {
		case "55P03":
			return TxReasonDBLockTimeout
		case "40001", "40P01":
			return TxReasonSerializationFailure
		case "23505":
			return TxReasonUniqueViolation
		}
	}
	return TxReasonUnknown
}

package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// NewProvider installs the global meter provider: OTLP with a 10s push
// interval when enabled, a no-op otherwise.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))),
	)
	otel.SetMeterProvider(provider)
	if lc != nil {
		lc.Append(fx.StopHook(provider.Shutdown))
	}
	log.Info("otlp metrics enabled",
		zap.String("endpoint", cfg.ExporterEndpoint),
		zap.String("protocol", cfg.ExporterProtocol),
	)
	return provider, nil
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	ctx := context.Background()
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		var opts []otlpmetrichttp.Option
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(ctx, opts...)
	case "", "grpc", "grpc/protobuf":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(ctx, opts...)
	}
	return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
}

type counter int

const (
	counterRegistrations counter = iota
	counterPaymentEvents
	counterRefunds
	counterLedgerEntries
	counterNotifications
	counterCompensations
	counterCount
)

var counterNames = [counterCount]string{
	counterRegistrations: "eventreg_registrations_total",
	counterPaymentEvents: "eventreg_payment_events_total",
	counterRefunds:       "eventreg_refunds_total",
	counterLedgerEntries: "eventreg_ledger_entries_total",
	counterNotifications: "eventreg_notifications_total",
	counterCompensations: "eventreg_compensations_total",
}

// Metrics holds the OTLP domain counters. A nil *Metrics records nothing.
type Metrics struct {
	counters [counterCount]metric.Int64Counter
}

func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "eventreg"
	}
	meter := provider.Meter(name)

	m := &Metrics{}
	for i, counterName := range counterNames {
		c, err := meter.Int64Counter(counterName)
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", counterName, err)
		}
		m.counters[i] = c
	}
	return m, nil
}

func (m *Metrics) add(ctx context.Context, c counter, attrs ...attribute.KeyValue) {
	if m == nil {
		return
	}
	m.counters[c].Add(ctx, 1, metric.WithAttributes(FilterAttributes(attrs...)...))
}

func label(key, value string) attribute.KeyValue {
	return attribute.String(key, strings.TrimSpace(value))
}

// RecordRegistration counts registration outcomes: confirmed, waitlisted or
// rejected with a reason.
func (m *Metrics) RecordRegistration(ctx context.Context, decision, reason string) {
	m.add(ctx, counterRegistrations, label("decision", decision), label("reason", reason))
}

func (m *Metrics) RecordPaymentEvent(ctx context.Context, provider, eventType string) {
	m.add(ctx, counterPaymentEvents, label("provider", provider), label("event_type", eventType))
}

func (m *Metrics) RecordRefund(ctx context.Context, provider, outcome string) {
	m.add(ctx, counterRefunds, label("provider", provider), label("outcome", outcome))
}

func (m *Metrics) RecordLedgerEntry(ctx context.Context, sourceType string) {
	m.add(ctx, counterLedgerEntries, label("source_type", sourceType))
}

func (m *Metrics) RecordNotification(ctx context.Context, transport, outcome string) {
	m.add(ctx, counterNotifications, label("transport", transport), label("outcome", outcome))
}

// RecordCompensation counts refunds of charges whose registration did not
// commit, first attempt and retries alike.
func (m *Metrics) RecordCompensation(ctx context.Context, step, outcome string) {
	m.add(ctx, counterCompensations, label("step", step), label("outcome", outcome))
}

var allowedLabelKeys = map[attribute.Key]bool{
	"decision":    true,
	"reason":      true,
	"provider":    true,
	"event_type":  true,
	"outcome":     true,
	"source_type": true,
	"transport":   true,
	"step":        true,
}

// FilterAttributes keeps only the low-cardinality label keys above, so ids
// never become metric labels.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := attrs[:0:0]
	for _, attr := range attrs {
		if allowedLabelKeys[attr.Key] {
			out = append(out, attr)
		}
	}
	return out
}

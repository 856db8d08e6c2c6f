package observability

import (
	"github.com/smallbiznis/eventreg/internal/observability/logger"
	"github.com/smallbiznis/eventreg/internal/observability/metrics"
	"github.com/smallbiznis/eventreg/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

// Module provides the process logger, the tracer and meter providers and the
// Prometheus collectors for HTTP, registration and scheduler traffic.
var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		Config.Logger,
		Config.Tracing,
		Config.Metrics,
		logger.New,
		tracing.NewProvider,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
		metrics.RegistrationWithConfig,
		metrics.SchedulerWithConfig,
	),
	// the tracer provider installs the global propagator; nothing else asks for it
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)

func (c Config) Logger() logger.Config {
	return logger.Config{
		ServiceName:      c.ServiceName,
		Environment:      c.Environment,
		Version:          c.Version,
		Level:            c.LogLevel,
		Format:           c.LogFormat,
		Debug:            c.Debug(),
		SampleInitial:    c.LogSampleInitial,
		SampleThereafter: c.LogSampleThereafter,
	}
}

func (c Config) Tracing() tracing.Config {
	return tracing.Config{
		Enabled:          c.OtelEnabled,
		ServiceName:      c.ServiceName,
		ServiceVersion:   c.Version,
		Environment:      c.Environment,
		ExporterEndpoint: c.OtelExporterEndpoint,
		ExporterProtocol: c.OtelExporterProtocol,
		SamplingRatio:    c.OtelSamplingRatio,
	}
}

func (c Config) Metrics() metrics.Config {
	return metrics.Config{
		Enabled:          c.OtelEnabled,
		ExporterEndpoint: c.OtelExporterEndpoint,
		ExporterProtocol: c.OtelExporterProtocol,
		ServiceName:      c.ServiceName,
		Environment:      c.Environment,
	}
}

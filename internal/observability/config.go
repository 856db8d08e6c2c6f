package observability

import (
	"strings"

	"github.com/smallbiznis/eventreg/internal/config"
)

// Config is the resolved telemetry setup shared by the logger, tracer and
// meter providers.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel            string
	LogFormat           string
	LogSampleInitial    int
	LogSampleThereafter int

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	t := cfg.Telemetry
	out := Config{
		ServiceName:          orDefault(cfg.AppName, "eventreg"),
		Environment:          strings.TrimSpace(cfg.Environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             orDefault(strings.ToLower(t.LogLevel), "info"),
		LogFormat:            orDefault(strings.ToLower(t.LogFormat), "json"),
		LogSampleInitial:     t.LogSampleInitial,
		LogSampleThereafter:  t.LogSampleThereafter,
		OtelEnabled:          t.OTLPEnabled && strings.TrimSpace(t.OTLPEndpoint) != "",
		OtelExporterEndpoint: strings.TrimSpace(t.OTLPEndpoint),
		OtelExporterProtocol: orDefault(strings.ToLower(t.OTLPProtocol), "grpc"),
		OtelSamplingRatio:    t.TraceSampleRatio,
	}
	switch {
	case out.OtelSamplingRatio < 0:
		out.OtelSamplingRatio = 0
	case out.OtelSamplingRatio > 1:
		out.OtelSamplingRatio = 1
	}
	return out
}

// Debug reports whether verbose logs and stacks should be emitted.
func (c Config) Debug() bool {
	if c.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func orDefault(value, def string) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	return def
}

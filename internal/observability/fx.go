package observability

import (
	"github.com/smallbiznis/invites/internal/config"
	"github.com/smallbiznis/invites/internal/observability/logger"
	"github.com/smallbiznis/invites/internal/observability/metrics"
	"github.com/smallbiznis/invites/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

// Module provides the zap logger, the tracer provider and the invite metrics,
// all configured from config.Config.
var Module = fx.Module("observability",
	fx.Provide(
		loggerConfig,
		logger.New,
		tracingConfig,
		tracing.NewProvider,
		metricsConfig,
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
	),
	// the provider registers itself globally; nothing else depends on it
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)

func loggerConfig(cfg config.Config) logger.Config {
	return logger.Config{
		Service:     cfg.AppName,
		Environment: cfg.Environment,
		Version:     cfg.AppVersion,
		Level:       cfg.Observability.LogLevel,
		Format:      cfg.Observability.LogFormat,
		Debug:       cfg.Debug(),
	}
}

func tracingConfig(cfg config.Config) tracing.Config {
	obs := cfg.Observability
	return tracing.Config{
		Enabled:          obs.OtelEnabled,
		ServiceName:      cfg.AppName,
		ServiceVersion:   cfg.AppVersion,
		Environment:      cfg.Environment,
		ExporterEndpoint: obs.OtelEndpoint,
		ExporterProtocol: obs.OtelProtocol,
		SamplingRatio:    obs.OtelSamplingRatio,
	}
}

func metricsConfig(cfg config.Config) metrics.Config {
	obs := cfg.Observability
	return metrics.Config{
		Enabled:          obs.OtelEnabled,
		ExporterEndpoint: obs.OtelEndpoint,
		ExporterProtocol: obs.OtelProtocol,
		ServiceName:      cfg.AppName,
		Environment:      cfg.Environment,
	}
}

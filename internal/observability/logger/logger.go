package logger

import (
	"context"
	"fmt"
	"strings"
	"time"

	obscontext "github.com/smallbiznis/invites/internal/observability/context"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Service     string
	Environment string
	Version     string
	Level       string
	// Format is "json" (default) or "console".
	Format string
	Debug  bool
}

// New builds the process logger, installs it as the zap global and syncs it
// on stop. Info and debug entries are sampled per second; warnings and errors
// never are.
func New(lc fx.Lifecycle, cfg Config) (*zap.Logger, error) {
	level := zap.NewAtomicLevelAt(zap.InfoLevel)
	if raw := strings.TrimSpace(cfg.Level); raw != "" {
		if err := level.UnmarshalText([]byte(raw)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", raw, err)
		}
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = level
	zapCfg.Sampling = nil
	zapCfg.OutputPaths = []string{"stdout"}
	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if strings.EqualFold(strings.TrimSpace(cfg.Format), "console") {
		zapCfg.Encoding = "console"
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	opts := []zap.Option{zap.WrapCore(sampleBelowWarn)}
	if cfg.Debug {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}
	log, err := zapCfg.Build(opts...)
	if err != nil {
		return nil, err
	}

	service := strings.TrimSpace(cfg.Service)
	if service == "" {
		service = "invites"
	}
	log = log.With(
		zap.String("service", service),
		zap.String("env", strings.TrimSpace(cfg.Environment)),
		zap.String("version", strings.TrimSpace(cfg.Version)),
	)
	zap.ReplaceGlobals(log)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				_ = log.Sync()
				return nil
			},
		})
	}
	return log, nil
}

// sampleBelowWarn keeps every warning and error, and samples the rest.
func sampleBelowWarn(core zapcore.Core) zapcore.Core {
	sampled := zapcore.NewSamplerWithOptions(core, time.Second, 100, 100)
	return zapcore.NewTee(
		levelFiltered{Core: sampled, keep: func(l zapcore.Level) bool { return l < zapcore.WarnLevel }},
		levelFiltered{Core: core, keep: func(l zapcore.Level) bool { return l >= zapcore.WarnLevel }},
	)
}

type levelFiltered struct {
	zapcore.Core
	keep func(zapcore.Level) bool
}

func (f levelFiltered) Enabled(l zapcore.Level) bool {
	return f.keep(l) && f.Core.Enabled(l)
}

func (f levelFiltered) With(fields []zapcore.Field) zapcore.Core {
	return levelFiltered{Core: f.Core.With(fields), keep: f.keep}
}

func (f levelFiltered) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !f.keep(e.Level) {
		return ce
	}
	return f.Core.Check(e, ce)
}

// FromContext is WithContext on the global logger.
func FromContext(ctx context.Context) *zap.Logger {
	return WithContext(ctx, zap.L())
}

// WithContext adds the request id and the active span, when present.
func WithContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if ctx == nil || base == nil {
		return base
	}
	var fields []zap.Field
	if id := obscontext.RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

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

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes invite-level instruments. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	invitesCreated  metric.Int64Counter
	invitesDeleted  metric.Int64Counter
	reindexed       metric.Int64Counter
	commitConflicts metric.Int64Counter
}

const (
	SourceGenerated = "generated"
	SourceProvided  = "provided"

	ModeSingle = "single"
	ModeBulk   = "bulk"
	ModeAll    = "all"
)

// NewProvider configures and registers the meter provider.
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

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "invites"
	}
	meter := provider.Meter(name)

	invitesCreated, err := meter.Int64Counter("invites_created_total")
	if err != nil {
		return nil, err
	}
	invitesDeleted, err := meter.Int64Counter("invites_delete_requests_total")
	if err != nil {
		return nil, err
	}
	reindexed, err := meter.Int64Counter("invites_reindexed_total")
	if err != nil {
		return nil, err
	}
	commitConflicts, err := meter.Int64Counter("invites_commit_conflicts_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		invitesCreated:  invitesCreated,
		invitesDeleted:  invitesDeleted,
		reindexed:       reindexed,
		commitConflicts: commitConflicts,
	}, nil
}

// RecordInviteCreated counts a stored invite by how its code was chosen.
func (m *Metrics) RecordInviteCreated(ctx context.Context, source string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("source", strings.TrimSpace(source)))
	m.invitesCreated.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordInvitesDeleted counts successful delete requests.
func (m *Metrics) RecordInvitesDeleted(ctx context.Context, mode string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("mode", strings.TrimSpace(mode)))
	m.invitesDeleted.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordReindex adds the number of records a reindex processed.
func (m *Metrics) RecordReindex(ctx context.Context, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.reindexed.Add(ctx, int64(count))
}

// RecordCommitConflict counts atomic commits rejected by the store.
func (m *Metrics) RecordCommitConflict(ctx context.Context, operation string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("operation", strings.TrimSpace(operation)))
	m.commitConflicts.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"endpoint":    {},
	"status_code": {},
	"source":      {},
	"mode":        {},
	"operation":   {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}

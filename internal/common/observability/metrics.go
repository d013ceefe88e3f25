package observability

import (
	"context"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/otlptranslator"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// Observability records plan generation outcomes through an OpenTelemetry
// meter exported to Prometheus.
type Observability struct {
	meterProvider *metric.MeterProvider
	meter         otelmetric.Meter
	genCounter    otelmetric.Int64Counter
	genDuration   otelmetric.Float64Histogram
	briefSize     otelmetric.Int64Histogram
}

// New registers the exporter with reg. A nil reg uses the default registry.
// Exported names are underscore-escaped, so plan.generations is scraped as
// plan_generations_total.
func New(serviceName string, reg promclient.Registerer) (*Observability, error) {
	opts := []prometheus.Option{
		prometheus.WithTranslationStrategy(otlptranslator.UnderscoreEscapingWithSuffixes),
	}
	if reg != nil {
		opts = append(opts, prometheus.WithRegisterer(reg))
	}
	exporter, err := prometheus.New(opts...)
	if err != nil {
		return nil, err
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	genCounter, err := meter.Int64Counter(
		"plan.generations",
		otelmetric.WithDescription("Number of plan generations by outcome"),
	)
	if err != nil {
		return nil, err
	}

	genDuration, err := meter.Float64Histogram(
		"plan.generation.duration",
		otelmetric.WithDescription("Plan generation duration"),
		otelmetric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	briefSize, err := meter.Int64Histogram(
		"plan.brief.size",
		otelmetric.WithDescription("Size of submitted briefs"),
		otelmetric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	return &Observability{
		meterProvider: provider,
		meter:         meter,
		genCounter:    genCounter,
		genDuration:   genDuration,
		briefSize:     briefSize,
	}, nil
}

// NewNoop returns an Observability whose record calls do nothing.
func NewNoop() *Observability {
	return &Observability{}
}

func (o *Observability) RecordGeneration(ctx context.Context, status string) {
	if o == nil || o.genCounter == nil {
		return
	}
	o.genCounter.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("status", status),
	))
}

func (o *Observability) RecordGenerationDuration(ctx context.Context, duration time.Duration, status string) {
	if o == nil || o.genDuration == nil {
		return
	}
	o.genDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
		attribute.String("status", status),
	))
}

func (o *Observability) RecordBriefSize(ctx context.Context, bytes int) {
	if o == nil || o.briefSize == nil {
		return
	}
	o.briefSize.Record(ctx, int64(bytes))
}

func (o *Observability) Shutdown(ctx context.Context) error {
	if o == nil || o.meterProvider == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return o.meterProvider.Shutdown(ctx)
}

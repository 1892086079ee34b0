package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/fieldtour/fieldtour/internal/telemetry"

// ProviderMetrics holds metrics for external routing provider calls.
// It satisfies routing.Recorder.
type ProviderMetrics struct {
	requestDuration metric.Float64Histogram
	requestTotal    metric.Int64Counter
	cacheHit        metric.Int64Counter
	cacheMiss       metric.Int64Counter
}

// NewProviderMetrics creates provider instruments on meter, or on the global
// meter provider when meter is nil.
func NewProviderMetrics(meter metric.Meter) (*ProviderMetrics, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}

	requestDuration, err := meter.Float64Histogram(
		"provider.request.duration",
		metric.WithDescription("Duration of provider requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	requestTotal, err := meter.Int64Counter(
		"provider.request.total",
		metric.WithDescription("Total number of provider requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	cacheHit, err := meter.Int64Counter(
		"provider.cache.hit",
		metric.WithDescription("Number of route cache hits"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, err
	}

	cacheMiss, err := meter.Int64Counter(
		"provider.cache.miss",
		metric.WithDescription("Number of route cache misses"),
		metric.WithUnit("{miss}"),
	)
	if err != nil {
		return nil, err
	}

	return &ProviderMetrics{
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheHit:        cacheHit,
		cacheMiss:       cacheMiss,
	}, nil
}

// RecordRequest records metrics for a provider request.
func (m *ProviderMetrics) RecordRequest(provider, operation string, duration time.Duration, err error) {
	attrs := providerAttrs(provider, operation)
	if err != nil {
		attrs = append(attrs, attribute.Bool("error", true))
	}

	// Recorded on a fresh context so a cancelled request is still counted.
	ctx := context.TODO()
	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.requestTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCacheHit records a cache hit for a provider.
func (m *ProviderMetrics) RecordCacheHit(provider, operation string) {
	m.cacheHit.Add(context.TODO(), 1, metric.WithAttributes(providerAttrs(provider, operation)...))
}

// RecordCacheMiss records a cache miss for a provider.
func (m *ProviderMetrics) RecordCacheMiss(provider, operation string) {
	m.cacheMiss.Add(context.TODO(), 1, metric.WithAttributes(providerAttrs(provider, operation)...))
}

func providerAttrs(provider, operation string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("provider.name", provider),
		attribute.String("provider.operation", operation),
	}
}

// PlanningMetrics holds tour optimization and navigation instruments.
type PlanningMetrics struct {
	optimizations   metric.Int64Counter
	degraded        metric.Int64Counter
	refreshDuration metric.Float64Histogram
	transitions     metric.Int64Counter
}

// NewPlanningMetrics creates planning instruments on meter, or on the global
// meter provider when meter is nil.
func NewPlanningMetrics(meter metric.Meter) (*PlanningMetrics, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}

	optimizations, err := meter.Int64Counter(
		"tour.optimization.total",
		metric.WithDescription("Tour optimizations by strategy"),
		metric.WithUnit("{optimization}"),
	)
	if err != nil {
		return nil, err
	}

	degraded, err := meter.Int64Counter(
		"tour.optimization.degraded",
		metric.WithDescription("Delegated optimizations that fell back to the local heuristic"),
		metric.WithUnit("{optimization}"),
	)
	if err != nil {
		return nil, err
	}

	refreshDuration, err := meter.Float64Histogram(
		"navigation.route_refresh.duration",
		metric.WithDescription("Duration of navigation route refreshes in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	transitions, err := meter.Int64Counter(
		"tour.stop.transition.total",
		metric.WithDescription("Stop status transitions by resulting status"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	return &PlanningMetrics{
		optimizations:   optimizations,
		degraded:        degraded,
		refreshDuration: refreshDuration,
		transitions:     transitions,
	}, nil
}

// RecordOptimization counts one optimization run.
func (m *PlanningMetrics) RecordOptimization(ctx context.Context, strategy string, degraded bool) {
	attrs := metric.WithAttributes(attribute.String("strategy", strategy))
	m.optimizations.Add(ctx, 1, attrs)
	if degraded {
		m.degraded.Add(ctx, 1, attrs)
	}
}

// RecordRouteRefresh records one navigation route refresh.
func (m *PlanningMetrics) RecordRouteRefresh(ctx context.Context, mode string, duration time.Duration, err error) {
	attrs := []attribute.KeyValue{attribute.String("travel.mode", mode)}
	if err != nil {
		attrs = append(attrs, attribute.Bool("error", true))
	}
	m.refreshDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordTransition counts one stop transition.
func (m *PlanningMetrics) RecordTransition(ctx context.Context, status string) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("stop.status", status)))
}

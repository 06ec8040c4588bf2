// Package observe provides application-wide observability primitives for
// voxgate: OpenTelemetry metrics, tracing, and HTTP middleware that ties them
// together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all voxgate metrics.
const meterName = "github.com/voxgate/voxgate"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// TurnDuration tracks end-to-end turn handling latency. Use with
	// attribute.String("resolved_by", "fast-path"|"model"|"fallback").
	TurnDuration metric.Float64Histogram

	// FastPathMatches counts fast-path evaluations. Use with
	// attribute.String("result", "hit"|"miss").
	FastPathMatches metric.Int64Counter

	// ResolverRequests counts model resolution calls. Use with
	// attribute.String("status", "invoke"|"no_action"|"invalid"|"error").
	ResolverRequests metric.Int64Counter

	// ResolverRejected counts resolutions refused because the inference queue
	// was full.
	ResolverRejected metric.Int64Counter

	// DispatchOutcomes counts capability executions. Use with
	// attribute.String("capability", ...), attribute.String("outcome", ...).
	DispatchOutcomes metric.Int64Counter

	// DispatchDuration tracks capability handler latency.
	DispatchDuration metric.Float64Histogram

	// ActiveSessions tracks sessions with at least one in-flight turn.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attribute.String("method", ...), attribute.String("path", ...).
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) tuned for
// voice-turn latencies: microsecond fast-path hits up to multi-second
// model resolutions.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.TurnDuration, err = m.Float64Histogram("voxgate.turn.duration",
		metric.WithDescription("End-to-end turn handling latency by resolution path."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FastPathMatches, err = m.Int64Counter("voxgate.fastpath.matches",
		metric.WithDescription("Fast-path evaluations by result."),
	); err != nil {
		return nil, err
	}
	if met.ResolverRequests, err = m.Int64Counter("voxgate.resolver.requests",
		metric.WithDescription("Model resolution calls by decision status."),
	); err != nil {
		return nil, err
	}
	if met.ResolverRejected, err = m.Int64Counter("voxgate.resolver.rejected",
		metric.WithDescription("Resolutions rejected because the inference queue was full."),
	); err != nil {
		return nil, err
	}
	if met.DispatchOutcomes, err = m.Int64Counter("voxgate.dispatch.outcomes",
		metric.WithDescription("Capability executions by capability and outcome."),
	); err != nil {
		return nil, err
	}
	if met.DispatchDuration, err = m.Float64Histogram("voxgate.dispatch.duration",
		metric.WithDescription("Capability handler latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("voxgate.active_sessions",
		metric.WithDescription("Sessions with at least one in-flight turn."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxgate.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordFastPath records one fast-path evaluation result ("hit" or "miss").
func (m *Metrics) RecordFastPath(ctx context.Context, result string) {
	m.FastPathMatches.Add(ctx, 1,
		metric.WithAttributes(attribute.String("result", result)),
	)
}

// RecordResolution records one model resolution by decision status.
func (m *Metrics) RecordResolution(ctx context.Context, status string) {
	m.ResolverRequests.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

// RecordDispatch records one capability execution outcome with its latency.
func (m *Metrics) RecordDispatch(ctx context.Context, capability, outcome string, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("capability", capability),
		attribute.String("outcome", outcome),
	)
	m.DispatchOutcomes.Add(ctx, 1, attrs)
	m.DispatchDuration.Record(ctx, seconds, attrs)
}

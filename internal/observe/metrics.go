// Package observe provides application-wide observability primitives for
// Semem: OpenTelemetry metrics and a Prometheus exporter bridge.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still
// be scraped via the standard /metrics endpoint. A package-level default
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

// meterName is the instrumentation scope name used for all Semem metrics.
const meterName = "github.com/danja/semem"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per subsystem ---

	// SPARQLDuration tracks triple store round-trip latency (C1).
	SPARQLDuration metric.Float64Histogram

	// LLMDuration tracks chat completion latency.
	LLMDuration metric.Float64Histogram

	// EmbeddingDuration tracks embedding call latency.
	EmbeddingDuration metric.Float64Histogram

	// IngestDuration tracks end-to-end tell/ingest latency (C8).
	IngestDuration metric.Float64Histogram

	// RetrievalDuration tracks hybrid retrieval latency (C10).
	RetrievalDuration metric.Float64Histogram

	// --- Counters ---

	// VerbDispatches counts verb dispatcher invocations. Use with
	// attributes: attribute.String("verb", ...), attribute.String("status", ...)
	VerbDispatches metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts LLM/embedding provider errors. Use with
	// attributes: attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// SPARQLErrors counts triple store errors. Use with attribute:
	//   attribute.String("op", ...)
	SPARQLErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of live ZPT navigation sessions.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds), covering
// the range from a sub-millisecond cache hit to a multi-second SPARQL or
// LLM round-trip.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.SPARQLDuration, err = m.Float64Histogram("semem.sparql.duration",
		metric.WithDescription("Latency of triple store SELECT/UPDATE round-trips."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("semem.llm.duration",
		metric.WithDescription("Latency of LLM chat completion calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.EmbeddingDuration, err = m.Float64Histogram("semem.embedding.duration",
		metric.WithDescription("Latency of embedding provider calls."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.IngestDuration, err = m.Float64Histogram("semem.ingest.duration",
		metric.WithDescription("End-to-end latency of the tell/ingestion pipeline."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RetrievalDuration, err = m.Float64Histogram("semem.retrieval.duration",
		metric.WithDescription("Latency of hybrid retrieval (similarity + exact + traversal fusion)."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.VerbDispatches, err = m.Int64Counter("semem.verb.dispatches",
		metric.WithDescription("Total verb dispatcher invocations by verb and status."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ProviderErrors, err = m.Int64Counter("semem.provider.errors",
		metric.WithDescription("Total LLM/embedding provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}
	if met.SPARQLErrors, err = m.Int64Counter("semem.sparql.errors",
		metric.WithDescription("Total triple store errors by operation."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("semem.active_sessions",
		metric.WithDescription("Number of live ZPT navigation sessions."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("semem.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
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

// RecordVerbDispatch is a convenience method that records a verb dispatch
// counter increment with the standard attribute set.
func (m *Metrics) RecordVerbDispatch(ctx context.Context, verb, status string) {
	m.VerbDispatches.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("verb", verb),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordSPARQLError is a convenience method that records a triple store
// error counter increment.
func (m *Metrics) RecordSPARQLError(ctx context.Context, op string) {
	m.SPARQLErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("op", op)),
	)
}

// RecordHTTPRequest records one HTTP server request's duration, labeled by
// method, route, and status code.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, status int, seconds float64) {
	m.HTTPRequestDuration.Record(ctx, seconds,
		metric.WithAttributes(
			attribute.String("method", method),
			attribute.String("path", path),
			attribute.Int("status", status),
		),
	)
}

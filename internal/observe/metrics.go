// Package observe provides application-wide observability primitives for
// NutriVox: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
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

// meterName is the instrumentation scope name used for all NutriVox metrics.
const meterName = "github.com/nutrivox/nutrivox"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// ScanDuration tracks end-to-end scan pipeline latency, from raw
	// evidence to reconciled record.
	ScanDuration metric.Float64Histogram

	// ExtractionDuration tracks structured-extraction latency. Use with
	// attribute: attribute.String("source", "ai"|"pattern").
	ExtractionDuration metric.Float64Histogram

	// BarcodeLookupDuration tracks barcode database lookup latency.
	BarcodeLookupDuration metric.Float64Histogram

	// STTDuration tracks speech-to-text transcription latency.
	STTDuration metric.Float64Histogram

	// TTSDuration tracks text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// AnswerDuration tracks question-answering latency (LLM call included).
	AnswerDuration metric.Float64Histogram

	// --- Counters ---

	// Scans counts scan pipeline runs. Use with attribute:
	//   attribute.String("outcome", "ok"|"degraded"|"no_evidence")
	Scans metric.Int64Counter

	// AllergenAlerts counts scans whose record carried at least one
	// profile-matched allergen.
	AllergenAlerts metric.Int64Counter

	// NarratedSections counts spoken sections. Use with attribute:
	//   attribute.String("category", ...)
	NarratedSections metric.Int64Counter

	// CaptureSessions counts voice capture sessions. Use with attributes:
	//   attribute.String("mode", "direct"|"fallback"), attribute.String("outcome", ...)
	CaptureSessions metric.Int64Counter

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveNarrations tracks narration sessions currently speaking or paused.
	ActiveNarrations metric.Int64UpDownCounter

	// ActiveCaptures tracks voice capture sessions currently open.
	ActiveCaptures metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) optimised
// for voice-pipeline latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.ScanDuration, err = m.Float64Histogram("nutrivox.scan.duration",
		metric.WithDescription("End-to-end scan pipeline latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ExtractionDuration, err = m.Float64Histogram("nutrivox.extraction.duration",
		metric.WithDescription("Structured-extraction latency by source."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BarcodeLookupDuration, err = m.Float64Histogram("nutrivox.barcode.lookup.duration",
		metric.WithDescription("Barcode database lookup latency."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.STTDuration, err = m.Float64Histogram("nutrivox.stt.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.TTSDuration, err = m.Float64Histogram("nutrivox.tts.duration",
		metric.WithDescription("Latency of text-to-speech synthesis."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AnswerDuration, err = m.Float64Histogram("nutrivox.answer.duration",
		metric.WithDescription("Question-answering latency including the model call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.Scans, err = m.Int64Counter("nutrivox.scans",
		metric.WithDescription("Total scan pipeline runs by outcome."),
	); err != nil {
		return nil, err
	}
	if met.AllergenAlerts, err = m.Int64Counter("nutrivox.allergen.alerts",
		metric.WithDescription("Total scans with at least one profile-matched allergen."),
	); err != nil {
		return nil, err
	}
	if met.NarratedSections, err = m.Int64Counter("nutrivox.narration.sections",
		metric.WithDescription("Total spoken sections by category."),
	); err != nil {
		return nil, err
	}
	if met.CaptureSessions, err = m.Int64Counter("nutrivox.capture.sessions",
		metric.WithDescription("Total voice capture sessions by mode and outcome."),
	); err != nil {
		return nil, err
	}
	if met.ProviderRequests, err = m.Int64Counter("nutrivox.provider.requests",
		metric.WithDescription("Total provider API requests by provider, kind, and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("nutrivox.provider.errors",
		metric.WithDescription("Total provider errors by provider and kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveNarrations, err = m.Int64UpDownCounter("nutrivox.active_narrations",
		metric.WithDescription("Narration sessions currently speaking or paused."),
	); err != nil {
		return nil, err
	}
	if met.ActiveCaptures, err = m.Int64UpDownCounter("nutrivox.active_captures",
		metric.WithDescription("Voice capture sessions currently open."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("nutrivox.http.request.duration",
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

// HistAttr wraps a single string attribute as a histogram record option.
func HistAttr(key, value string) metric.RecordOption {
	return metric.WithAttributes(attribute.String(key, value))
}

// RecordScan records one scan pipeline run with its outcome and duration.
func (m *Metrics) RecordScan(ctx context.Context, outcome string, seconds float64) {
	m.Scans.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	m.ScanDuration.Record(ctx, seconds)
}

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
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

// RecordNarratedSection records one spoken section by category.
func (m *Metrics) RecordNarratedSection(ctx context.Context, category string) {
	m.NarratedSections.Add(ctx, 1,
		metric.WithAttributes(attribute.String("category", category)),
	)
}

// RecordCaptureSession records one completed capture session.
func (m *Metrics) RecordCaptureSession(ctx context.Context, mode, outcome string) {
	m.CaptureSessions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("mode", mode),
			attribute.String("outcome", outcome),
		),
	)
}

// Package observe provides application-wide observability primitives:
// OpenTelemetry metrics with a Prometheus exporter bridge.
//
// Metrics are recorded through the OpenTelemetry Metrics API. [InitProvider]
// registers a global meter provider with a Prometheus exporter so metrics can
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

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/chippeddog/english.now-sub000"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// AssessDuration tracks end-to-end speech assessment latency per attempt,
	// including the provider round trip.
	AssessDuration metric.Float64Histogram

	// JobDuration tracks queue job processing latency. Use with attribute:
	//   attribute.String("job", ...)
	JobDuration metric.Float64Histogram

	// ProviderRequests counts speech provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts speech provider errors. Use with attribute:
	//   attribute.String("provider", ...)
	ProviderErrors metric.Int64Counter

	// JobsProcessed counts finished queue jobs. Use with attributes:
	//   attribute.String("job", ...), attribute.String("status", ...)
	JobsProcessed metric.Int64Counter

	// SessionsCompleted counts sessions that reached a terminal status. Use
	// with attribute: attribute.String("status", ...)
	SessionsCompleted metric.Int64Counter

	// ActiveJobs tracks the number of jobs currently being processed.
	ActiveJobs metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Assessment
// round trips dominate job time, so buckets extend well past typical request
// latencies.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.AssessDuration, err = m.Float64Histogram("englishnow.assess.duration",
		metric.WithDescription("Latency of speech assessment per attempt."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.JobDuration, err = m.Float64Histogram("englishnow.job.duration",
		metric.WithDescription("Queue job processing latency by job name."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.ProviderRequests, err = m.Int64Counter("englishnow.provider.requests",
		metric.WithDescription("Total speech provider API requests by provider and status."),
	); err != nil {
		return nil, err
	}
	if met.ProviderErrors, err = m.Int64Counter("englishnow.provider.errors",
		metric.WithDescription("Total speech provider errors by provider."),
	); err != nil {
		return nil, err
	}
	if met.JobsProcessed, err = m.Int64Counter("englishnow.jobs.processed",
		metric.WithDescription("Total finished queue jobs by job name and status."),
	); err != nil {
		return nil, err
	}
	if met.SessionsCompleted, err = m.Int64Counter("englishnow.sessions.completed",
		metric.WithDescription("Total sessions that reached a terminal status."),
	); err != nil {
		return nil, err
	}

	if met.ActiveJobs, err = m.Int64UpDownCounter("englishnow.active_jobs",
		metric.WithDescription("Number of jobs currently being processed."),
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

// RecordProviderRequest records a provider request counter increment with the
// standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError records a provider error counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("provider", provider)),
	)
}

// RecordJob records one finished job: its duration histogram sample and the
// processed counter increment.
func (m *Metrics) RecordJob(ctx context.Context, job, status string, seconds float64) {
	m.JobsProcessed.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job", job),
		attribute.String("status", status),
	))
	m.JobDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("job", job)),
	)
}

// RecordSessionCompleted records a session reaching a terminal status.
func (m *Metrics) RecordSessionCompleted(ctx context.Context, status string) {
	m.SessionsCompleted.Add(ctx, 1,
		metric.WithAttributes(attribute.String("status", status)),
	)
}

package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds all application metrics implementing the golden 4 signals:
// - Latency: How long requests/jobs take
// - Traffic: Request/job throughput
// - Errors: Rate of failures
// - Saturation: Resource utilization (active job, notifier queue)
type Metrics struct {
	meter metric.Meter

	// HTTP metrics (Latency, Traffic, Errors)
	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter

	// Job metrics (Latency, Traffic, Errors, Saturation)
	JobDuration    metric.Float64Histogram
	JobsTotal      metric.Int64Counter
	JobErrorsTotal metric.Int64Counter
	JobsActive     metric.Int64UpDownCounter
	PollsTotal     metric.Int64Counter

	// Notifier metrics (Latency, Traffic, Errors, Saturation)
	NotifierDuration  metric.Float64Histogram
	NotifierDelivered metric.Int64Counter
	NotifierFailed    metric.Int64Counter
	NotifierDropped   metric.Int64Counter
	NotifierQueueSize metric.Int64Gauge
}

// NewMetrics creates and registers all metrics with a Prometheus exporter.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("c2d-service")
	m := &Metrics{meter: meter}

	// HTTP metrics
	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPErrorsTotal, err = meter.Int64Counter(
		"http_errors_total",
		metric.WithDescription("Total number of HTTP errors (4xx and 5xx)"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Job metrics
	m.JobDuration, err = meter.Float64Histogram(
		"compute_job_duration_seconds",
		metric.WithDescription("Compute job observation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 10, 30, 60, 120, 300, 600),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobsTotal, err = meter.Int64Counter(
		"compute_jobs_total",
		metric.WithDescription("Total number of compute jobs submitted"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobErrorsTotal, err = meter.Int64Counter(
		"compute_job_errors_total",
		metric.WithDescription("Total number of failed compute jobs"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.JobsActive, err = meter.Int64UpDownCounter(
		"compute_jobs_active",
		metric.WithDescription("Number of currently running compute jobs (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.PollsTotal, err = meter.Int64Counter(
		"compute_polls_total",
		metric.WithDescription("Total number of provider status polls"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Notifier metrics
	m.NotifierDuration, err = meter.Float64Histogram(
		"notifier_duration_seconds",
		metric.WithDescription("Callback delivery latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.NotifierDelivered, err = meter.Int64Counter(
		"notifier_delivered_total",
		metric.WithDescription("Total events successfully delivered"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.NotifierFailed, err = meter.Int64Counter(
		"notifier_failed_total",
		metric.WithDescription("Total events failed after retries"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.NotifierDropped, err = meter.Int64Counter(
		"notifier_dropped_total",
		metric.WithDescription("Total events dropped (buffer full or max requeues)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.NotifierQueueSize, err = meter.Int64Gauge(
		"notifier_queue_size",
		metric.WithDescription("Current number of events in notifier queue (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.Handler(), nil
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(
		methodAttr(method),
		pathAttr(path),
		statusAttr(statusCode),
	)

	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)

	if statusCode >= 400 {
		m.HTTPErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordJobStarted records a new compute job being submitted.
func (m *Metrics) RecordJobStarted(ctx context.Context) {
	m.JobsTotal.Add(ctx, 1)
	m.JobsActive.Add(ctx, 1)
}

// RecordJobFinished records a job reaching a terminal phase.
func (m *Metrics) RecordJobFinished(ctx context.Context, success bool, durationSeconds float64) {
	attrs := metric.WithAttributes(successAttr(success))
	m.JobDuration.Record(ctx, durationSeconds, attrs)
	m.JobsActive.Add(ctx, -1)

	if !success {
		m.JobErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordPollAttempt records one provider status poll.
func (m *Metrics) RecordPollAttempt(ctx context.Context) {
	m.PollsTotal.Add(ctx, 1)
}

// RecordNotifierDelivered records a successful event delivery with its duration.
func (m *Metrics) RecordNotifierDelivered(ctx context.Context, durationSeconds float64) {
	m.NotifierDelivered.Add(ctx, 1)
	m.NotifierDuration.Record(ctx, durationSeconds)
}

// RecordNotifierFailed records a failed event delivery.
func (m *Metrics) RecordNotifierFailed(ctx context.Context) {
	m.NotifierFailed.Add(ctx, 1)
}

// RecordNotifierDropped records a dropped event.
func (m *Metrics) RecordNotifierDropped(ctx context.Context) {
	m.NotifierDropped.Add(ctx, 1)
}

// RecordNotifierQueueSize records the current queue size.
func (m *Metrics) RecordNotifierQueueSize(ctx context.Context, size int64) {
	m.NotifierQueueSize.Record(ctx, size)
}

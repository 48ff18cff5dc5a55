package sitehealth

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/sachin5713/unified-site-health-dashboard/internal/infra/probe/pagespeed"
)

// Metrics is the set of measurements the scan pipeline records.
type Metrics interface {
	pagespeed.Metrics

	IncRunsStarted(ctx context.Context)
	IncRunsCompleted(ctx context.Context)
	IncBatchesProcessed(ctx context.Context)
	IncProbeFailures(ctx context.Context, kind string)
	IncContinuationResumes(ctx context.Context)
	IncCASConflicts(ctx context.Context)
	AddAuditsStored(ctx context.Context, n int)
}

type siteHealthMetrics struct {
	runsStarted   metric.Int64Counter
	runsCompleted metric.Int64Counter
	batches       metric.Int64Counter

	probeAttempts metric.Int64Counter
	probeFailures metric.Int64Counter
	probeDuration metric.Float64Histogram

	resumes      metric.Int64Counter
	casConflicts metric.Int64Counter
	auditsStored metric.Int64Counter
}

const namespace = "sitehealth"

// NewMetrics registers the pipeline instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*siteHealthMetrics, error) {
	meter := mp.Meter(namespace, metric.WithInstrumentationVersion("v0.1.0"))

	m := new(siteHealthMetrics)
	var err error

	if m.runsStarted, err = meter.Int64Counter(
		"runs_started_total",
		metric.WithDescription("Total number of scan runs started"),
	); err != nil {
		return nil, err
	}

	if m.runsCompleted, err = meter.Int64Counter(
		"runs_completed_total",
		metric.WithDescription("Total number of scan runs completed"),
	); err != nil {
		return nil, err
	}

	if m.batches, err = meter.Int64Counter(
		"batches_processed_total",
		metric.WithDescription("Total number of batch invocations processed"),
	); err != nil {
		return nil, err
	}

	if m.probeAttempts, err = meter.Int64Counter(
		"probe_attempts_total",
		metric.WithDescription("Total number of outbound probe attempts"),
	); err != nil {
		return nil, err
	}

	if m.probeFailures, err = meter.Int64Counter(
		"probe_failures_total",
		metric.WithDescription("Total number of probes that failed terminally"),
	); err != nil {
		return nil, err
	}

	if m.probeDuration, err = meter.Float64Histogram(
		"probe_duration_seconds",
		metric.WithDescription("Duration of a single probe attempt"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.5, 1, 2, 5, 10, 20, 30, 45, 60, 90),
	); err != nil {
		return nil, err
	}

	if m.resumes, err = meter.Int64Counter(
		"continuation_resumes_total",
		metric.WithDescription("Total number of stale runs re-enqueued by the supervisor"),
	); err != nil {
		return nil, err
	}

	if m.casConflicts, err = meter.Int64Counter(
		"run_cas_conflicts_total",
		metric.WithDescription("Total number of scan run writes that lost a version race"),
	); err != nil {
		return nil, err
	}

	if m.auditsStored, err = meter.Int64Counter(
		"audits_stored_total",
		metric.WithDescription("Total number of audit records appended"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *siteHealthMetrics) IncRunsStarted(ctx context.Context)   { m.runsStarted.Add(ctx, 1) }
func (m *siteHealthMetrics) IncRunsCompleted(ctx context.Context) { m.runsCompleted.Add(ctx, 1) }
func (m *siteHealthMetrics) IncBatchesProcessed(ctx context.Context) {
	m.batches.Add(ctx, 1)
}

func (m *siteHealthMetrics) IncProbeAttempt(ctx context.Context, profile string) {
	m.probeAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("profile", profile)))
}

func (m *siteHealthMetrics) ObserveProbe(ctx context.Context, profile, outcome string, d time.Duration) {
	m.probeDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("profile", profile),
		attribute.String("outcome", outcome),
	))
}

func (m *siteHealthMetrics) IncProbeFailures(ctx context.Context, kind string) {
	m.probeFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *siteHealthMetrics) IncContinuationResumes(ctx context.Context) { m.resumes.Add(ctx, 1) }
func (m *siteHealthMetrics) IncCASConflicts(ctx context.Context)        { m.casConflicts.Add(ctx, 1) }

func (m *siteHealthMetrics) AddAuditsStored(ctx context.Context, n int) {
	m.auditsStored.Add(ctx, int64(n))
}

package sitehealth

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/sachin5713/unified-site-health-dashboard/internal/domain/sitehealth"
	"github.com/sachin5713/unified-site-health-dashboard/pkg/common/logger"
)

// Retention deletes audit records older than a fixed number of days.
type Retention struct {
	audits   domain.AuditRepository
	days     int
	interval time.Duration

	timeProvider timeProvider
	logger       *logger.Logger
	tracer       trace.Tracer
}

// NewRetention creates a Retention that trims every interval. A non-positive
// days keeps records forever.
func NewRetention(audits domain.AuditRepository, days int, interval time.Duration, log *logger.Logger, tracer trace.Tracer) *Retention {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Retention{
		audits:       audits,
		days:         days,
		interval:     interval,
		timeProvider: realTimeProvider{},
		logger:       log.With("component", "audit_retention"),
		tracer:       tracer,
	}
}

// Trim removes expired records and returns how many were deleted.
func (r *Retention) Trim(ctx context.Context) (int64, error) {
	if r.days <= 0 {
		return 0, nil
	}
	cutoff := r.timeProvider.Now().AddDate(0, 0, -r.days)

	ctx, span := r.tracer.Start(ctx, "retention.sitehealth.trim",
		trace.WithAttributes(attribute.String("cutoff", cutoff.Format(time.RFC3339))))
	defer span.End()

	removed, err := r.audits.TrimOlderThan(ctx, cutoff)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	span.SetAttributes(attribute.Int64("removed", removed))
	if removed > 0 {
		r.logger.Info(ctx, "trimmed audit records", "removed", removed, "cutoff", cutoff)
	}
	return removed, nil
}

// Run trims once at start and then every interval until ctx is canceled.
func (r *Retention) Run(ctx context.Context) error {
	if r.days <= 0 {
		return nil
	}
	if _, err := r.Trim(ctx); err != nil && ctx.Err() == nil {
		r.logger.Error(ctx, "audit retention failed", "error", err)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.Trim(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error(ctx, "audit retention failed", "error", err)
			}
		}
	}
}

package sitehealth

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sachin5713/unified-site-health-dashboard/internal/domain/events"
	domain "github.com/sachin5713/unified-site-health-dashboard/internal/domain/sitehealth"
	"github.com/sachin5713/unified-site-health-dashboard/pkg/common/logger"
)

// SupervisorConfig tunes stale run detection.
type SupervisorConfig struct {
	// CheckInterval is how often the run is inspected.
	CheckInterval time.Duration
	// StaleAfter is how long a running run may go without activity.
	StaleAfter time.Duration
}

// DefaultSupervisorConfig checks every 30 seconds for runs idle 10 minutes.
func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{CheckInterval: 30 * time.Second, StaleAfter: 10 * time.Minute}
}

// Supervisor resumes runs whose continuation was lost. A running run with no
// recent activity and no queued continuation gets a new continuation at
// targets_done.
type Supervisor struct {
	cfg       SupervisorConfig
	runs      domain.RunRepository
	queue     domain.ContinuationQueue
	publisher events.DomainEventPublisher

	timeProvider timeProvider
	metrics      Metrics
	logger       *logger.Logger
	tracer       trace.Tracer
}

// NewSupervisor creates a Supervisor.
func NewSupervisor(
	cfg SupervisorConfig,
	runs domain.RunRepository,
	queue domain.ContinuationQueue,
	publisher events.DomainEventPublisher,
	metrics Metrics,
	log *logger.Logger,
	tracer trace.Tracer,
) *Supervisor {
	def := DefaultSupervisorConfig()
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = def.CheckInterval
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = def.StaleAfter
	}
	return &Supervisor{
		cfg:          cfg,
		runs:         runs,
		queue:        queue,
		publisher:    publisher,
		timeProvider: realTimeProvider{},
		metrics:      metrics,
		logger:       log.With("component", "run_supervisor"),
		tracer:       tracer,
	}
}

// Run checks for stale runs until ctx is canceled.
func (s *Supervisor) Run(ctx context.Context) error {
	s.logger.Info(ctx, "run supervisor started",
		"interval", s.cfg.CheckInterval,
		"stale_after", s.cfg.StaleAfter,
	)
	ticker := time.NewTicker(s.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.checkStale(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error(ctx, "stale run check failed", "error", err)
			}
		}
	}
}

// checkStale re-enqueues the run if it is stalled. It reports whether a
// continuation was enqueued.
func (s *Supervisor) checkStale(ctx context.Context) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "supervisor.sitehealth.check_stale",
		trace.WithAttributes(attribute.String("stale_after", s.cfg.StaleAfter.String())))
	defer span.End()

	now := s.timeProvider.Now()
	run, err := s.runs.Get(ctx)
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	if !run.IsStale(now, s.cfg.StaleAfter) {
		return false, nil
	}
	span.SetAttributes(attribute.String("run_id", run.ID().String()))

	pending, err := s.queue.Pending(ctx, run.ID())
	if err != nil {
		span.RecordError(err)
		return false, err
	}
	if pending != nil {
		// A queued or leased entry will be picked up once due or expired.
		span.AddEvent("continuation_present")
		return false, nil
	}

	offset := run.TargetsDone()
	if err := s.queue.Enqueue(ctx, run.ID(), offset, now); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to enqueue continuation")
		return false, err
	}

	// Refresh activity so the next tick does not resume the run again before
	// the worker has a chance to claim it.
	run.Touch(now)
	if _, err := s.runs.CompareAndSwap(ctx, run); err != nil {
		s.logger.Warn(ctx, "failed to refresh stale run", "run_id", run.ID(), "error", err)
	}

	s.metrics.IncContinuationResumes(ctx)
	if s.publisher != nil {
		evt := events.NewDomainEvent(events.EventTypeRunResumed, run.ID().String(), now, map[string]any{
			"run_id": run.ID().String(),
			"offset": offset,
		})
		if err := s.publisher.PublishDomainEvent(ctx, evt, events.WithKey(run.ID().String())); err != nil {
			s.logger.Warn(ctx, "failed to publish resume event", "run_id", run.ID(), "error", err)
		}
	}

	span.SetStatus(codes.Ok, "run resumed")
	s.logger.Warn(ctx, "resumed stale scan run",
		"run_id", run.ID(),
		"offset", offset,
		"last_update", run.UpdatedAt(),
	)
	return true, nil
}

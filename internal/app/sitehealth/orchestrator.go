// Package sitehealth drives scan runs: starting them, processing their
// batches, resuming stalled runs and serving the read side.
package sitehealth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sachin5713/unified-site-health-dashboard/internal/app/sitehealth/classify"
	"github.com/sachin5713/unified-site-health-dashboard/internal/domain/events"
	domain "github.com/sachin5713/unified-site-health-dashboard/internal/domain/sitehealth"
	"github.com/sachin5713/unified-site-health-dashboard/pkg/common/logger"
	"github.com/sachin5713/unified-site-health-dashboard/pkg/common/uuid"
)

// MsgScanStarted is returned to the caller of StartScan on success.
const MsgScanStarted = "Scan started successfully."

type timeProvider interface {
	Now() time.Time
}

type realTimeProvider struct{}

func (realTimeProvider) Now() time.Time { return time.Now().UTC() }

// ConnectionTestError is returned by StartScan when the pre-flight probe fails.
type ConnectionTestError struct{ Err error }

func (e *ConnectionTestError) Error() string { return domain.ConnectionTestMessage(e.Err) }
func (e *ConnectionTestError) Unwrap() error { return e.Err }

// OrchestratorConfig tunes batch processing.
type OrchestratorConfig struct {
	// BatchSize is the number of targets processed per invocation.
	BatchSize int
	// ContinuationDelay is how long after a batch the next one becomes due.
	ContinuationDelay time.Duration
	// MaxCASRetries bounds how often a losing write is retried.
	MaxCASRetries int
}

// DefaultOrchestratorConfig returns batches of two targets five seconds apart.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{BatchSize: 2, ContinuationDelay: 5 * time.Second, MaxCASRetries: 10}
}

// Orchestrator owns the ScanRun state machine. Every write to the run goes
// through a compare-and-swap on its version, so overlapping invocations can
// not corrupt the counters.
type Orchestrator struct {
	cfg OrchestratorConfig

	runs       domain.RunRepository
	audits     domain.AuditRepository
	queue      domain.ContinuationQueue
	prober     domain.Prober
	classifier *classify.Classifier
	hosts      domain.HostChecker
	targets    domain.TargetSource
	creds      domain.CredentialProvider
	publisher  events.DomainEventPublisher

	timeProvider timeProvider
	newID        func() uuid.UUID

	metrics Metrics
	logger  *logger.Logger
	tracer  trace.Tracer
}

// OrchestratorDeps groups the collaborators of an Orchestrator. Hosts may be
// nil, in which case no non-probe checks run.
type OrchestratorDeps struct {
	Runs        domain.RunRepository
	Audits      domain.AuditRepository
	Queue       domain.ContinuationQueue
	Prober      domain.Prober
	Classifier  *classify.Classifier
	Hosts       domain.HostChecker
	Targets     domain.TargetSource
	Credentials domain.CredentialProvider
	Publisher   events.DomainEventPublisher
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(
	cfg OrchestratorConfig,
	deps OrchestratorDeps,
	metrics Metrics,
	log *logger.Logger,
	tracer trace.Tracer,
) *Orchestrator {
	def := DefaultOrchestratorConfig()
	if cfg.BatchSize < 1 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.ContinuationDelay < 0 {
		cfg.ContinuationDelay = def.ContinuationDelay
	}
	if cfg.MaxCASRetries < 1 {
		cfg.MaxCASRetries = def.MaxCASRetries
	}

	return &Orchestrator{
		cfg:          cfg,
		runs:         deps.Runs,
		audits:       deps.Audits,
		queue:        deps.Queue,
		prober:       deps.Prober,
		classifier:   deps.Classifier,
		hosts:        deps.Hosts,
		targets:      deps.Targets,
		creds:        deps.Credentials,
		publisher:    deps.Publisher,
		timeProvider: realTimeProvider{},
		newID:        uuid.New,
		metrics:      metrics,
		logger:       log.With("component", "scan_orchestrator"),
		tracer:       tracer,
	}
}

// StartScan validates credentials, targets and connectivity, resets the run
// and enqueues its first batch. It fails with domain.ErrRunAlreadyRunning
// while another run is in flight.
func (o *Orchestrator) StartScan(ctx context.Context) (uuid.UUID, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.sitehealth.start_scan")
	defer span.End()

	creds, err := o.creds.Credentials(ctx)
	if err != nil {
		span.RecordError(err)
		return uuid.Nil, fmt.Errorf("load credentials: %w", err)
	}
	if creds.Empty() {
		span.SetStatus(codes.Error, "missing credentials")
		return uuid.Nil, domain.ErrMissingCredentials
	}

	targets, err := o.targets.Targets(ctx)
	if err != nil {
		span.RecordError(err)
		return uuid.Nil, fmt.Errorf("load targets: %w", err)
	}
	if len(targets) == 0 {
		span.SetStatus(codes.Error, "no targets")
		return uuid.Nil, domain.ErrNoTargets
	}
	span.SetAttributes(attribute.Int("target_count", len(targets)))

	// Cheap pre-check so a running scan is not charged a connection test.
	current, err := o.runs.Get(ctx)
	if err != nil {
		span.RecordError(err)
		return uuid.Nil, fmt.Errorf("load scan run: %w", err)
	}
	if current.Status() == domain.RunStatusRunning {
		span.SetStatus(codes.Error, "scan already running")
		return uuid.Nil, domain.ErrRunAlreadyRunning
	}

	if err := o.prober.TestConnection(ctx, targets[0].URL, creds); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "connection test failed")
		o.logger.Warn(ctx, "connection test failed", "target_uri", targets[0].URL, "error", err)
		return uuid.Nil, &ConnectionTestError{Err: err}
	}

	runID := o.newID()
	now := o.timeProvider.Now()
	order := o.scanOrder()

	start := func() error {
		run, err := o.runs.Get(ctx)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("load scan run: %w", err))
		}
		if err := run.Start(runID, targets, order, now); err != nil {
			return backoff.Permanent(err)
		}
		if _, err := o.runs.CompareAndSwap(ctx, run); err != nil {
			if errors.Is(err, domain.ErrVersionConflict) {
				o.metrics.IncCASConflicts(ctx)
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}
	if err := backoff.Retry(start, o.casPolicy(ctx)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to start run")
		return uuid.Nil, err
	}

	if err := o.queue.Enqueue(ctx, runID, 0, now); err != nil {
		span.RecordError(err)
		return uuid.Nil, fmt.Errorf("enqueue first batch: %w", err)
	}

	span.SetAttributes(attribute.String("run_id", runID.String()))
	span.SetStatus(codes.Ok, "scan started")
	o.metrics.IncRunsStarted(ctx)
	o.publish(ctx, events.EventTypeRunStarted, runID, map[string]any{
		"run_id":        runID.String(),
		"targets_total": len(targets),
	})
	o.logger.Info(ctx, "scan started", "run_id", runID, "targets_total", len(targets))

	return runID, nil
}

func (o *Orchestrator) casPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 200 * time.Millisecond
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(o.cfg.MaxCASRetries)), ctx)
}

// update applies mutate to the stored run of runID and writes it back,
// rereading and retrying when another writer won the race.
func (o *Orchestrator) update(
	ctx context.Context,
	runID uuid.UUID,
	mutate func(run *domain.ScanRun, now time.Time) error,
) (*domain.ScanRun, error) {
	var stored *domain.ScanRun
	op := func() error {
		run, err := o.runs.Get(ctx)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("load scan run: %w", err))
		}
		if run.ID() != runID {
			return backoff.Permanent(domain.ErrRunSuperseded)
		}
		if err := mutate(run, o.timeProvider.Now()); err != nil {
			if errors.Is(err, domain.ErrRunNotRunning) {
				return backoff.Permanent(domain.ErrRunSuperseded)
			}
			return backoff.Permanent(err)
		}
		stored, err = o.runs.CompareAndSwap(ctx, run)
		if err != nil {
			if errors.Is(err, domain.ErrVersionConflict) {
				o.metrics.IncCASConflicts(ctx)
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}
	if err := backoff.Retry(op, o.casPolicy(ctx)); err != nil {
		return nil, err
	}
	return stored, nil
}

// scanOrder is the table's scan order, without Host Health when no host
// checker is configured.
func (o *Orchestrator) scanOrder() []domain.Category {
	order := o.classifier.Table().ScanOrder()
	if o.hosts != nil {
		return order
	}
	out := order[:0:0]
	for _, c := range order {
		if c != domain.CategoryHostHealth {
			out = append(out, c)
		}
	}
	return out
}

// probeCategories are the categories whose state the probe drives.
func (o *Orchestrator) probeCategories() []domain.Category {
	var out []domain.Category
	for _, c := range o.classifier.Table().ScanOrder() {
		if c != domain.CategoryHostHealth {
			out = append(out, c)
		}
	}
	return out
}

// ProcessBatch processes the slice of the run's targets that starts at
// offset, or at targets_done if that is further along. It then either
// enqueues the next slice or completes the run. A continuation for a
// replaced or finished run returns domain.ErrRunSuperseded.
func (o *Orchestrator) ProcessBatch(ctx context.Context, runID uuid.UUID, offset int) error {
	logr := logger.NewLoggerContext(o.logger.With("operation", "process_batch", "run_id", runID))
	ctx, span := o.tracer.Start(ctx, "orchestrator.sitehealth.process_batch",
		trace.WithAttributes(
			attribute.String("run_id", runID.String()),
			attribute.Int("offset", offset),
		))
	defer span.End()

	run, err := o.runs.Get(ctx)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("load scan run: %w", err)
	}
	if run.ID() != runID || run.Status() != domain.RunStatusRunning {
		span.SetStatus(codes.Ok, "run superseded")
		logr.Info(ctx, "skipping continuation for inactive run", "status", run.Status())
		return domain.ErrRunSuperseded
	}

	creds, err := o.creds.Credentials(ctx)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("load credentials: %w", err)
	}

	targets := run.Targets()
	start := max(offset, run.TargetsDone())
	end := min(start+o.cfg.BatchSize, len(targets))
	span.SetAttributes(attribute.Int("batch_start", start), attribute.Int("batch_end", end))
	logr.Add("batch_start", start)
	logr.Add("batch_end", end)

	for i := start; i < end; i++ {
		if err := o.processTarget(ctx, runID, i, targets[i], creds); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "target processing failed")
			return err
		}
	}
	o.metrics.IncBatchesProcessed(ctx)

	if end < len(targets) {
		due := o.timeProvider.Now().Add(o.cfg.ContinuationDelay)
		if err := o.queue.Enqueue(ctx, runID, end, due); err != nil {
			span.RecordError(err)
			return fmt.Errorf("enqueue continuation: %w", err)
		}
		o.publish(ctx, events.EventTypeRunBatchCompleted, runID, map[string]any{
			"run_id":        runID.String(),
			"targets_done":  end,
			"targets_total": len(targets),
		})
		span.SetStatus(codes.Ok, "batch processed")
		logr.Info(ctx, "batch processed", "next_offset", end)
		return nil
	}

	final, err := o.update(ctx, runID, func(r *domain.ScanRun, now time.Time) error {
		return r.Complete(now)
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("complete run: %w", err)
	}

	o.metrics.IncRunsCompleted(ctx)
	errCount := len(final.Errors())
	o.publish(ctx, events.EventTypeRunCompleted, runID, map[string]any{
		"run_id":        runID.String(),
		"targets_total": final.TargetsTotal(),
		"error_count":   errCount,
	})
	span.SetStatus(codes.Ok, "run completed")
	logr.Info(ctx, "scan run completed", "targets_total", final.TargetsTotal(), "error_count", errCount)
	return nil
}

// processTarget probes one target under every profile, runs the host checks
// and then counts the target as done.
func (o *Orchestrator) processTarget(
	ctx context.Context,
	runID uuid.UUID,
	index int,
	target domain.Target,
	creds domain.Credentials,
) error {
	ctx, span := o.tracer.Start(ctx, "orchestrator.sitehealth.process_target",
		trace.WithAttributes(
			attribute.Int("index", index),
			attribute.String("target_uri", target.URL),
		))
	defer span.End()

	probeCats := o.probeCategories()
	if _, err := o.update(ctx, runID, func(r *domain.ScanRun, now time.Time) error {
		if err := r.BeginTarget(index, now); err != nil {
			return err
		}
		if err := r.SetCurrentCategory("", now); err != nil {
			return err
		}
		for _, c := range probeCats {
			if _, err := r.AdvanceCategory(c, domain.CategoryRunning, now); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return err
	}

	for _, profile := range domain.Profiles() {
		if err := o.probeProfile(ctx, runID, target, profile, creds); err != nil {
			return err
		}
	}

	if o.hosts != nil {
		if err := o.runHostChecks(ctx, runID, target); err != nil {
			return err
		}
	}

	_, err := o.update(ctx, runID, func(r *domain.ScanRun, now time.Time) error {
		return r.CompleteTarget(index, now)
	})
	return err
}

// probeProfile runs one probe and stores its classified result. A failed
// probe is recorded on the run and does not stop the batch.
func (o *Orchestrator) probeProfile(
	ctx context.Context,
	runID uuid.UUID,
	target domain.Target,
	profile domain.Profile,
	creds domain.Credentials,
) error {
	raw, err := o.prober.Probe(ctx, target.URL, profile, creds)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msg, category, kind := describeProbeFailure(err)
		o.metrics.IncProbeFailures(ctx, kind)
		o.logger.Warn(ctx, "probe failed",
			"run_id", runID,
			"target_uri", target.URL,
			"profile", profile,
			"kind", kind,
		)
		_, uerr := o.update(ctx, runID, func(r *domain.ScanRun, now time.Time) error {
			return r.RecordError(target.Label(), msg, category, now)
		})
		return uerr
	}

	res := o.classifier.Classify(raw, target, profile, o.timeProvider.Now())
	records := append(res.Records, res.Aggregates...)
	if len(records) > 0 {
		if err := o.audits.Append(ctx, records...); err != nil {
			return fmt.Errorf("store audits: %w", err)
		}
		o.metrics.AddAuditsStored(ctx, len(records))
	}

	_, err = o.update(ctx, runID, func(r *domain.ScanRun, now time.Time) error {
		for _, agg := range res.Aggregates {
			if _, err := r.AdvanceCategory(agg.Category, domain.CategoryCompleted, now); err != nil {
				return err
			}
		}
		return nil
	})
	return err
}

// runHostChecks drives the Host Health category through running to
// completed, or failed when the checks error.
func (o *Orchestrator) runHostChecks(ctx context.Context, runID uuid.UUID, target domain.Target) error {
	if _, err := o.update(ctx, runID, func(r *domain.ScanRun, now time.Time) error {
		if err := r.SetCurrentCategory(domain.CategoryHostHealth, now); err != nil {
			return err
		}
		_, err := r.AdvanceCategory(domain.CategoryHostHealth, domain.CategoryRunning, now)
		return err
	}); err != nil {
		return err
	}

	checks, err := o.hosts.Check(ctx, target)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		o.logger.Warn(ctx, "host checks failed", "run_id", runID, "target_uri", target.URL, "error", err)
		_, uerr := o.update(ctx, runID, func(r *domain.ScanRun, now time.Time) error {
			if err := r.RecordError(target.Label(), "Host checks failed: "+err.Error(), domain.CategoryHostHealth, now); err != nil {
				return err
			}
			return r.SetCurrentCategory("", now)
		})
		return uerr
	}

	at := o.timeProvider.Now()
	records := make([]domain.AuditRecord, 0, len(checks))
	touched := []domain.Category{domain.CategoryHostHealth}
	for _, c := range checks {
		records = append(records, domain.AuditRecord{
			TargetID:        target.ID,
			TargetURI:       target.URL,
			Profile:         domain.ProfileDesktop,
			Category:        c.Category,
			Name:            c.Name,
			Score:           c.Score,
			Description:     c.Description,
			AffectedElement: c.AffectedElement,
			Severity:        c.Severity,
			RecordedAt:      at,
		})
		if c.Category != domain.CategoryHostHealth {
			touched = append(touched, c.Category)
		}
	}
	if len(records) > 0 {
		if err := o.audits.Append(ctx, records...); err != nil {
			return fmt.Errorf("store host checks: %w", err)
		}
		o.metrics.AddAuditsStored(ctx, len(records))
	}

	_, err = o.update(ctx, runID, func(r *domain.ScanRun, now time.Time) error {
		for _, c := range touched {
			if _, err := r.AdvanceCategory(c, domain.CategoryCompleted, now); err != nil {
				return err
			}
		}
		return r.SetCurrentCategory("", now)
	})
	return err
}

// describeProbeFailure returns the user-facing message, the attributable
// category and a metric label for a probe error.
func describeProbeFailure(err error) (string, domain.Category, string) {
	var pe *domain.ProbeError
	if errors.As(err, &pe) {
		return pe.Message, pe.Category(), string(pe.Kind)
	}
	if errors.Is(err, domain.ErrMissingCredentials) {
		return err.Error(), "", "missing-credentials"
	}
	return "Unexpected error: " + err.Error(), domain.CategoryPerformance, string(domain.ProbeUnexpected)
}

func (o *Orchestrator) publish(ctx context.Context, t events.EventType, runID uuid.UUID, payload map[string]any) {
	if o.publisher == nil {
		return
	}
	evt := events.NewDomainEvent(t, runID.String(), o.timeProvider.Now(), payload)
	if err := o.publisher.PublishDomainEvent(ctx, evt, events.WithKey(runID.String())); err != nil {
		o.logger.Warn(ctx, "failed to publish domain event", "event_type", t, "run_id", runID, "error", err)
	}
}

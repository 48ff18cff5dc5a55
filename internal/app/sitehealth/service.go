package sitehealth

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/sachin5713/unified-site-health-dashboard/internal/app/sitehealth/classify"
	"github.com/sachin5713/unified-site-health-dashboard/internal/domain/events"
	domain "github.com/sachin5713/unified-site-health-dashboard/internal/domain/sitehealth"
	"github.com/sachin5713/unified-site-health-dashboard/pkg/common/logger"
)

// RescanResult is the outcome of rescanning one target.
type RescanResult struct {
	HTML      string    `json:"html"`
	Score     *float64  `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}

// Service is the read side of the pipeline plus single-target rescans.
type Service struct {
	runs       domain.RunRepository
	audits     domain.AuditRepository
	prober     domain.Prober
	classifier *classify.Classifier
	targets    domain.TargetSource
	creds      domain.CredentialProvider
	publisher  events.DomainEventPublisher

	timeProvider timeProvider
	metrics      Metrics
	logger       *logger.Logger
	tracer       trace.Tracer
}

// NewService creates a Service from the same collaborators as the orchestrator.
func NewService(deps OrchestratorDeps, metrics Metrics, log *logger.Logger, tracer trace.Tracer) *Service {
	return &Service{
		runs:         deps.Runs,
		audits:       deps.Audits,
		prober:       deps.Prober,
		classifier:   deps.Classifier,
		targets:      deps.Targets,
		creds:        deps.Credentials,
		publisher:    deps.Publisher,
		timeProvider: realTimeProvider{},
		metrics:      metrics,
		logger:       log.With("component", "sitehealth_service"),
		tracer:       tracer,
	}
}

// Progress returns the current run snapshot.
func (s *Service) Progress(ctx context.Context) (domain.RunSnapshot, error) {
	ctx, span := s.tracer.Start(ctx, "service.sitehealth.progress")
	defer span.End()

	run, err := s.runs.Get(ctx)
	if err != nil {
		span.RecordError(err)
		return domain.RunSnapshot{}, fmt.Errorf("load scan run: %w", err)
	}
	return run.Snapshot(), nil
}

// CategoryScores returns the latest snapshot per category and profile.
func (s *Service) CategoryScores(ctx context.Context) ([]domain.CategoryScoreSnapshot, error) {
	ctx, span := s.tracer.Start(ctx, "service.sitehealth.category_scores")
	defer span.End()

	scores, err := s.audits.CategoryScores(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if scores == nil {
		scores = []domain.CategoryScoreSnapshot{}
	}
	return scores, nil
}

// AuditData lists the current records of a category and profile ordered by
// severity. When no current snapshot exists the full history is returned.
func (s *Service) AuditData(ctx context.Context, category domain.Category, profile domain.Profile) (domain.AuditData, error) {
	ctx, span := s.tracer.Start(ctx, "service.sitehealth.audit_data",
		trace.WithAttributes(
			attribute.String("category", category.String()),
			attribute.String("profile", profile.String()),
		))
	defer span.End()

	q := domain.AuditQuery{Category: category, Profile: profile}
	records, err := s.audits.Current(ctx, q)
	if err != nil {
		span.RecordError(err)
		return domain.AuditData{}, err
	}
	if len(records) == 0 {
		if records, err = s.audits.History(ctx, q); err != nil {
			span.RecordError(err)
			return domain.AuditData{}, err
		}
	}
	if len(records) == 0 {
		span.SetStatus(codes.Error, "no audit data")
		return domain.AuditData{}, domain.ErrNoAuditData
	}

	scanDate, err := s.audits.LatestScanDate(ctx, q)
	if err != nil {
		span.RecordError(err)
		return domain.AuditData{}, err
	}

	summary := domain.SummarizeCurrent(category, profile, records)
	return domain.AuditData{
		AverageScore: summary.AverageScore,
		Audits:       records,
		ScanDate:     scanDate,
	}, nil
}

// SectionIssues renders the current findings of a category as an HTML
// fragment, optionally narrowed to one target. Category Score rows are left
// out since they are not issues.
func (s *Service) SectionIssues(ctx context.Context, category domain.Category, targetURI string) (string, error) {
	ctx, span := s.tracer.Start(ctx, "service.sitehealth.section_issues",
		trace.WithAttributes(
			attribute.String("category", category.String()),
			attribute.String("target_uri", targetURI),
		))
	defer span.End()

	records, err := s.audits.Current(ctx, domain.AuditQuery{Category: category, TargetURI: targetURI})
	if err != nil {
		span.RecordError(err)
		return "", err
	}

	issues := make([]domain.AuditRecord, 0, len(records))
	for _, r := range records {
		if !r.IsCategoryScore() {
			issues = append(issues, r)
		}
	}
	return renderIssues(category.String(), issues)
}

// Statistics summarises the audit log.
func (s *Service) Statistics(ctx context.Context) (domain.ScanStatistics, error) {
	ctx, span := s.tracer.Start(ctx, "service.sitehealth.statistics")
	defer span.End()

	stats, err := s.audits.Statistics(ctx)
	if err != nil {
		span.RecordError(err)
	}
	return stats, err
}

// RescanTarget probes one configured target under every profile and stores
// the results. It does not touch the ScanRun. The returned score is the mean
// of the Category Score records written.
func (s *Service) RescanTarget(ctx context.Context, targetURI string) (RescanResult, error) {
	ctx, span := s.tracer.Start(ctx, "service.sitehealth.rescan_target",
		trace.WithAttributes(attribute.String("target_uri", targetURI)))
	defer span.End()

	target, err := s.findTarget(ctx, targetURI)
	if err != nil {
		span.RecordError(err)
		return RescanResult{}, err
	}

	creds, err := s.creds.Credentials(ctx)
	if err != nil {
		span.RecordError(err)
		return RescanResult{}, fmt.Errorf("load credentials: %w", err)
	}
	if creds.Empty() {
		return RescanResult{}, domain.ErrMissingCredentials
	}

	now := s.timeProvider.Now()
	var (
		stored []domain.AuditRecord
		sum    float64
		scored int
	)
	for _, profile := range domain.Profiles() {
		raw, err := s.prober.Probe(ctx, target.URL, profile, creds)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "probe failed")
			return RescanResult{}, err
		}
		res := s.classifier.Classify(raw, target, profile, now)
		stored = append(stored, res.Records...)
		stored = append(stored, res.Aggregates...)
		for _, agg := range res.Aggregates {
			if agg.Score != nil {
				sum += *agg.Score
				scored++
			}
		}
	}

	if len(stored) > 0 {
		if err := s.audits.Append(ctx, stored...); err != nil {
			span.RecordError(err)
			return RescanResult{}, fmt.Errorf("store audits: %w", err)
		}
		s.metrics.AddAuditsStored(ctx, len(stored))
	}

	result := RescanResult{Timestamp: now}
	if scored > 0 {
		result.Score = domain.Float(sum / float64(scored))
	}

	issues := make([]domain.AuditRecord, 0, len(stored))
	for _, r := range stored {
		if !r.IsCategoryScore() {
			issues = append(issues, r)
		}
	}
	if result.HTML, err = renderIssues(target.Label(), issues); err != nil {
		return RescanResult{}, err
	}

	if s.publisher != nil {
		evt := events.NewDomainEvent(events.EventTypeTargetRescanned, target.URL, now, map[string]any{
			"target_uri":   target.URL,
			"record_count": len(stored),
		})
		if err := s.publisher.PublishDomainEvent(ctx, evt); err != nil {
			s.logger.Warn(ctx, "failed to publish rescan event", "target_uri", target.URL, "error", err)
		}
	}

	span.SetStatus(codes.Ok, "target rescanned")
	s.logger.Info(ctx, "target rescanned", "target_uri", target.URL, "records", len(stored))
	return result, nil
}

func (s *Service) findTarget(ctx context.Context, uri string) (domain.Target, error) {
	targets, err := s.targets.Targets(ctx)
	if err != nil {
		return domain.Target{}, fmt.Errorf("load targets: %w", err)
	}
	for _, t := range targets {
		if t.URL == uri {
			return t, nil
		}
	}
	return domain.Target{}, fmt.Errorf("%w: %s", domain.ErrTargetNotFound, uri)
}

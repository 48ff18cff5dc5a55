package sitehealth

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/sachin5713/unified-site-health-dashboard/internal/app/sitehealth/classify"
	"github.com/sachin5713/unified-site-health-dashboard/internal/domain/events"
	domain "github.com/sachin5713/unified-site-health-dashboard/internal/domain/sitehealth"
	"github.com/sachin5713/unified-site-health-dashboard/internal/infra/storage/sitehealth/memory"
	"github.com/sachin5713/unified-site-health-dashboard/pkg/common/logger"
	"github.com/sachin5713/unified-site-health-dashboard/pkg/common/uuid"
)

type mockTimeProvider struct {
	mu  sync.Mutex
	now time.Time
}

func (m *mockTimeProvider) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *mockTimeProvider) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// noopMetrics discards every measurement.
type noopMetrics struct{}

func (noopMetrics) IncProbeAttempt(context.Context, string)                       {}
func (noopMetrics) ObserveProbe(context.Context, string, string, time.Duration) {}
func (noopMetrics) IncRunsStarted(context.Context)                              {}
func (noopMetrics) IncRunsCompleted(context.Context)                            {}
func (noopMetrics) IncBatchesProcessed(context.Context)                         {}
func (noopMetrics) IncProbeFailures(context.Context, string)                    {}
func (noopMetrics) IncContinuationResumes(context.Context)                      {}
func (noopMetrics) IncCASConflicts(context.Context)                             {}
func (noopMetrics) AddAuditsStored(context.Context, int)                        {}

// mockDomainEventPublisher implements events.DomainEventPublisher for testing.
type mockDomainEventPublisher struct {
	mu     sync.Mutex
	events []events.DomainEvent
}

func (m *mockDomainEventPublisher) PublishDomainEvent(_ context.Context, evt events.DomainEvent, _ ...events.PublishOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return nil
}

func (m *mockDomainEventPublisher) types() []events.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]events.EventType, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}

// mockProber implements domain.Prober with testify expectations.
type mockProber struct{ mock.Mock }

func (m *mockProber) Probe(ctx context.Context, uri string, profile domain.Profile, creds domain.Credentials) (*domain.ProbeResult, error) {
	args := m.Called(ctx, uri, profile, creds)
	if res := args.Get(0); res != nil {
		return res.(*domain.ProbeResult), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockProber) TestConnection(ctx context.Context, uri string, creds domain.Credentials) error {
	args := m.Called(ctx, uri, creds)
	return args.Error(0)
}

// stubHostChecker returns fixed checks.
type stubHostChecker struct {
	checks []domain.HostCheck
	err    error
}

func (s stubHostChecker) Check(context.Context, domain.Target) ([]domain.HostCheck, error) {
	return s.checks, s.err
}

func passingHostChecks() []domain.HostCheck {
	return []domain.HostCheck{
		{
			Category: domain.CategorySecurity,
			Name:     "Site served over HTTPS",
			Score:    domain.Float(1),
			Severity: domain.SeverityGood,
		},
		{
			Category: domain.CategoryHostHealth,
			Name:     "Runtime Version",
			Score:    domain.Float(1),
			Severity: domain.SeverityGood,
		},
	}
}

// probeResult returns a result whose four category aggregates all score s.
func probeResult(s float64) *domain.ProbeResult {
	return &domain.ProbeResult{
		Audits: []domain.RawAudit{
			{ID: "first-contentful-paint", Title: "First Contentful Paint", Score: domain.Float(s)},
			{ID: "document-title", Title: "Document has a title", Score: domain.Float(s)},
		},
		Categories: []domain.RawCategory{
			{Key: "performance", Title: "Performance", Score: domain.Float(s)},
			{Key: "seo", Title: "SEO", Score: domain.Float(s)},
			{Key: "accessibility", Title: "Accessibility", Score: domain.Float(s)},
			{Key: "best-practices", Title: "Best Practices", Score: domain.Float(s)},
		},
	}
}

func testTargets(n int) []domain.Target {
	out := make([]domain.Target, n)
	for i := range out {
		out[i] = domain.Target{
			ID:    fmt.Sprint(i + 1),
			Title: fmt.Sprintf("Page %c", 'A'+i),
			URL:   fmt.Sprintf("https://example.com/%d", i+1),
		}
	}
	return out
}

type pipeline struct {
	runs      *memory.RunStore
	audits    *memory.AuditStore
	queue     *memory.ContinuationQueue
	prober    *mockProber
	publisher *mockDomainEventPublisher
	orch      *Orchestrator
	service   *Service
	worker    *Worker
}

type pipelineOption func(*OrchestratorDeps)

func withHostChecker(h domain.HostChecker) pipelineOption {
	return func(d *OrchestratorDeps) { d.Hosts = h }
}

func withCredentials(key string) pipelineOption {
	return func(d *OrchestratorDeps) { d.Credentials = StaticCredentials{APIKey: key} }
}

func newPipeline(t *testing.T, targets []domain.Target, opts ...pipelineOption) *pipeline {
	t.Helper()

	table, err := classify.DefaultTable()
	require.NoError(t, err)

	p := &pipeline{
		runs:      memory.NewRunStore(),
		audits:    memory.NewAuditStore(),
		queue:     memory.NewContinuationQueue(),
		prober:    new(mockProber),
		publisher: new(mockDomainEventPublisher),
	}

	deps := OrchestratorDeps{
		Runs:        p.runs,
		Audits:      p.audits,
		Queue:       p.queue,
		Prober:      p.prober,
		Classifier:  classify.NewClassifier(table),
		Targets:     StaticTargets(targets),
		Credentials: StaticCredentials{APIKey: "test-key"},
		Publisher:   p.publisher,
	}
	for _, opt := range opts {
		opt(&deps)
	}

	tracer := noop.NewTracerProvider().Tracer("test")
	cfg := OrchestratorConfig{BatchSize: 2, ContinuationDelay: 0, MaxCASRetries: 5}
	p.orch = NewOrchestrator(cfg, deps, noopMetrics{}, logger.Noop(), tracer)
	p.service = NewService(deps, noopMetrics{}, logger.Noop(), tracer)
	p.worker = NewWorker(DefaultWorkerConfig(), p.queue, p.orch, logger.Noop(), tracer)
	return p
}

// drain processes continuations until the queue is empty and returns how
// many were processed.
func (p *pipeline) drain(t *testing.T, ctx context.Context) int {
	t.Helper()

	var n int
	for i := 0; i < 100; i++ {
		processed, err := p.worker.processNext(ctx)
		require.NoError(t, err)
		if !processed {
			return n
		}
		n++
	}
	t.Fatal("continuation queue did not drain")
	return n
}

// countingProcessor wraps a BatchProcessor and records each invocation.
type countingProcessor struct {
	next  BatchProcessor
	runs  domain.RunRepository
	calls []int
	done  []int
}

func (c *countingProcessor) ProcessBatch(ctx context.Context, runID uuid.UUID, offset int) error {
	c.calls = append(c.calls, offset)
	err := c.next.ProcessBatch(ctx, runID, offset)
	if run, gerr := c.runs.Get(ctx); gerr == nil {
		c.done = append(c.done, run.TargetsDone())
	}
	return err
}

package sitehealth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	domain "github.com/sachin5713/unified-site-health-dashboard/internal/domain/sitehealth"
	"github.com/sachin5713/unified-site-health-dashboard/pkg/common/logger"
)

func TestServiceAuditData(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, testTargets(1))
	at := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	_, err := p.service.AuditData(ctx, domain.CategorySEO, domain.ProfileMobile)
	assert.ErrorIs(t, err, domain.ErrNoAuditData)

	require.NoError(t, p.audits.Append(ctx,
		domain.AuditRecord{
			TargetID: "1", TargetURI: "https://example.com/1", Profile: domain.ProfileMobile,
			Category: domain.CategorySEO, Name: "Fine", Score: domain.Float(1),
			Severity: domain.SeverityGood, RecordedAt: at,
		},
		domain.AuditRecord{
			TargetID: "1", TargetURI: "https://example.com/1", Profile: domain.ProfileMobile,
			Category: domain.CategorySEO, Name: "Missing meta description", Score: domain.Float(0),
			Severity: domain.SeverityCritical, RecordedAt: at,
		},
	))

	data, err := p.service.AuditData(ctx, domain.CategorySEO, domain.ProfileMobile)
	require.NoError(t, err)
	require.Len(t, data.Audits, 2)
	assert.Equal(t, "Missing meta description", data.Audits[0].Name)
	require.NotNil(t, data.AverageScore)
	assert.InDelta(t, 0.5, *data.AverageScore, 1e-9)
	require.NotNil(t, data.ScanDate)
	assert.True(t, data.ScanDate.Equal(at))
}

func TestServiceSectionIssues(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, testTargets(1))
	at := time.Now().UTC()

	html, err := p.service.SectionIssues(ctx, domain.CategoryAccessibility, "")
	require.NoError(t, err)
	assert.Contains(t, html, "No issues found for Accessibility.")

	require.NoError(t, p.audits.Append(ctx,
		domain.AuditRecord{
			TargetID: "1", TargetURI: "https://example.com/1", Profile: domain.ProfileDesktop,
			Category: domain.CategoryAccessibility, Name: "Image <img> lacks alt", Score: domain.Float(0.3),
			Severity: domain.SeverityCritical, AffectedElement: "img.hero", RecordedAt: at,
		},
		domain.AuditRecord{
			TargetID: "1", TargetURI: "https://example.com/1", Profile: domain.ProfileDesktop,
			Category: domain.CategoryAccessibility, Name: domain.CategoryScoreName, Score: domain.Float(0.7),
			Severity: domain.SeverityWarning, RecordedAt: at,
		},
	))

	html, err = p.service.SectionIssues(ctx, domain.CategoryAccessibility, "https://example.com/1")
	require.NoError(t, err)
	assert.Contains(t, html, "Image &lt;img&gt; lacks alt")
	assert.Contains(t, html, "img.hero")
	assert.Contains(t, html, "30%")
	assert.NotContains(t, html, domain.CategoryScoreName)
}

func TestServiceRescanTarget(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, testTargets(2))
	p.prober.On("Probe", mock.Anything, "https://example.com/2", domain.ProfileMobile, mock.Anything).
		Return(probeResult(0.6), nil)
	p.prober.On("Probe", mock.Anything, "https://example.com/2", domain.ProfileDesktop, mock.Anything).
		Return(probeResult(1.0), nil)

	res, err := p.service.RescanTarget(ctx, "https://example.com/2")
	require.NoError(t, err)
	require.NotNil(t, res.Score)
	assert.InDelta(t, 0.8, *res.Score, 1e-9)
	assert.Contains(t, res.HTML, "First Contentful Paint")
	assert.False(t, res.Timestamp.IsZero())

	run, err := p.runs.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusIdle, run.Status())

	stats, err := p.service.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TargetsScanned)

	_, err = p.service.RescanTarget(ctx, "https://example.com/unknown")
	assert.ErrorIs(t, err, domain.ErrTargetNotFound)
}

func TestRetentionTrim(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, testTargets(1))
	now := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)

	require.NoError(t, p.audits.Append(ctx,
		domain.AuditRecord{TargetID: "1", Category: domain.CategorySEO, Name: "old", Severity: domain.SeverityInfo, RecordedAt: now.AddDate(0, 0, -31)},
		domain.AuditRecord{TargetID: "1", Category: domain.CategorySEO, Name: "new", Severity: domain.SeverityInfo, RecordedAt: now.AddDate(0, 0, -1)},
	))

	r := NewRetention(p.audits, 30, 0, logger.Noop(), noop.NewTracerProvider().Tracer("test"))
	r.timeProvider = &mockTimeProvider{now: now}

	removed, err := r.Trim(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	disabled := NewRetention(p.audits, 0, 0, logger.Noop(), noop.NewTracerProvider().Tracer("test"))
	removed, err = disabled.Trim(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestParseScanInterval(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "daily", want: 24 * time.Hour},
		{in: "weekly", want: 7 * 24 * time.Hour},
		{in: "monthly", want: 30 * 24 * time.Hour},
		{in: "hourly", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseScanInterval(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

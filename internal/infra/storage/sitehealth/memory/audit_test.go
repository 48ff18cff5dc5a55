package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sachin5713/unified-site-health-dashboard/internal/domain/sitehealth"
)

func record(
	cat sitehealth.Category,
	profile sitehealth.Profile,
	name string,
	score float64,
	sev sitehealth.Severity,
	at time.Time,
) sitehealth.AuditRecord {
	return sitehealth.AuditRecord{
		TargetID:   "1",
		TargetURI:  "https://example.com",
		Profile:    profile,
		Category:   cat,
		Name:       name,
		Score:      sitehealth.Float(score),
		Severity:   sev,
		RecordedAt: at,
	}
}

func TestAuditStore_CurrentReturnsLatestSnapshot(t *testing.T) {
	ctx := context.Background()
	store := NewAuditStore()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)

	require.NoError(t, store.Append(ctx,
		record(sitehealth.CategorySEO, sitehealth.ProfileMobile, "Old", 0.2, sitehealth.SeverityCritical, t0),
		record(sitehealth.CategorySEO, sitehealth.ProfileMobile, "Fine", 1, sitehealth.SeverityGood, t1),
		record(sitehealth.CategorySEO, sitehealth.ProfileMobile, "Broken", 0.1, sitehealth.SeverityCritical, t1),
		record(sitehealth.CategorySEO, sitehealth.ProfileDesktop, "Desktop", 0.6, sitehealth.SeverityWarning, t0),
	))

	got, err := store.Current(ctx, sitehealth.AuditQuery{Category: sitehealth.CategorySEO, Profile: sitehealth.ProfileMobile})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Broken", got[0].Name)
	assert.Equal(t, "Fine", got[1].Name)

	latest, err := store.LatestScanDate(ctx, sitehealth.AuditQuery{Category: sitehealth.CategorySEO})
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.True(t, latest.Equal(t1))
}

func TestAuditStore_CurrentEmpty(t *testing.T) {
	store := NewAuditStore()

	got, err := store.Current(context.Background(), sitehealth.AuditQuery{Category: sitehealth.CategorySecurity})
	require.NoError(t, err)
	assert.Empty(t, got)

	latest, err := store.LatestScanDate(context.Background(), sitehealth.AuditQuery{Category: sitehealth.CategorySecurity})
	require.NoError(t, err)
	assert.Nil(t, latest)
}

func TestAuditStore_CategoryScores(t *testing.T) {
	ctx := context.Background()
	store := NewAuditStore()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, store.Append(ctx,
		record(sitehealth.CategoryPerformance, sitehealth.ProfileMobile, "A", 0.4, sitehealth.SeverityCritical, t0),
		record(sitehealth.CategoryPerformance, sitehealth.ProfileMobile, "B", 0.8, sitehealth.SeverityWarning, t0.Add(time.Minute)),
		record(sitehealth.CategoryPerformance, sitehealth.ProfileMobile, "C", 1.0, sitehealth.SeverityGood, t0.Add(time.Minute)),
	))

	scores, err := store.CategoryScores(ctx)
	require.NoError(t, err)
	require.Len(t, scores, 1)
	assert.Equal(t, 2, scores[0].TotalAudits)
	assert.Equal(t, 1, scores[0].WarningCount)
	assert.Equal(t, 1, scores[0].GoodCount)
	require.NotNil(t, scores[0].AverageScore)
	assert.InDelta(t, 0.9, *scores[0].AverageScore, 1e-9)
}

func TestAuditStore_StatisticsAndTrim(t *testing.T) {
	ctx := context.Background()
	store := NewAuditStore()
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	old := record(sitehealth.CategorySEO, sitehealth.ProfileMobile, "A", 1, sitehealth.SeverityGood, t0)
	recent := record(sitehealth.CategorySEO, sitehealth.ProfileMobile, "B", 1, sitehealth.SeverityGood, t0.AddDate(0, 0, 10))
	recent.TargetID = "2"
	require.NoError(t, store.Append(ctx, old, recent))

	stats, err := store.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalAudits)
	assert.Equal(t, 2, stats.TargetsScanned)
	assert.True(t, stats.FirstScanDate.Equal(t0))

	removed, err := store.TrimOlderThan(ctx, t0.AddDate(0, 0, 5))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	history, err := store.History(ctx, sitehealth.AuditQuery{Category: sitehealth.CategorySEO})
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "B", history[0].Name)
}

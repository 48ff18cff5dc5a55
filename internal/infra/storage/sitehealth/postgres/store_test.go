package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sachin5713/unified-site-health-dashboard/internal/domain/sitehealth"
	"github.com/sachin5713/unified-site-health-dashboard/internal/infra/storage"
	"github.com/sachin5713/unified-site-health-dashboard/pkg/common/uuid"
)

func setupStoreTest(t *testing.T) (context.Context, *pgxpool.Pool, func()) {
	t.Helper()

	pool, cleanup := storage.SetupTestContainer(t)
	return context.Background(), pool, cleanup
}

func TestRunStore_CompareAndSwap(t *testing.T) {
	t.Parallel()
	ctx, pool, cleanup := setupStoreTest(t)
	defer cleanup()

	store := NewRunStore(pool, storage.NoOpTracer())

	run, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, sitehealth.RunStatusIdle, run.Status())
	assert.Equal(t, int64(0), run.Version())

	now := time.Now().UTC().Truncate(time.Microsecond)
	targets := []sitehealth.Target{
		{ID: "1", Title: "Home", URL: "https://example.com"},
		{ID: "2", Title: "About", URL: "https://example.com/about"},
	}
	require.NoError(t, run.Start(uuid.New(), targets, sitehealth.DefaultScanOrder(), now))
	require.NoError(t, run.RecordError("Home", "boom", sitehealth.CategoryPerformance, now))

	stored, err := store.CompareAndSwap(ctx, run)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version())

	_, err = store.CompareAndSwap(ctx, run)
	assert.ErrorIs(t, err, sitehealth.ErrVersionConflict)

	loaded, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, run.ID(), loaded.ID())
	assert.Equal(t, sitehealth.RunStatusRunning, loaded.Status())
	assert.Equal(t, targets, loaded.Targets())
	require.Len(t, loaded.Errors(), 1)
	state, ok := loaded.CategoryState().Get(sitehealth.CategoryPerformance)
	require.True(t, ok)
	assert.Equal(t, sitehealth.CategoryFailed, state)
	assert.True(t, loaded.StartedAt().Equal(now))
}

func TestAuditStore_CurrentAndScores(t *testing.T) {
	t.Parallel()
	ctx, pool, cleanup := setupStoreTest(t)
	defer cleanup()

	store := NewAuditStore(pool, storage.NoOpTracer())
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)

	rec := func(name string, score float64, sev sitehealth.Severity, at time.Time) sitehealth.AuditRecord {
		return sitehealth.AuditRecord{
			TargetID:   "1",
			TargetURI:  "https://example.com",
			Profile:    sitehealth.ProfileMobile,
			Category:   sitehealth.CategorySEO,
			Name:       name,
			Score:      sitehealth.Float(score),
			Severity:   sev,
			RecordedAt: at,
		}
	}
	require.NoError(t, store.Append(ctx,
		rec("Old", 0.1, sitehealth.SeverityCritical, t0),
		rec("Good", 1, sitehealth.SeverityGood, t1),
		rec("Bad", 0.3, sitehealth.SeverityCritical, t1),
	))

	current, err := store.Current(ctx, sitehealth.AuditQuery{Category: sitehealth.CategorySEO, Profile: sitehealth.ProfileMobile})
	require.NoError(t, err)
	require.Len(t, current, 2)
	assert.Equal(t, "Bad", current[0].Name)
	assert.Equal(t, "Good", current[1].Name)

	scores, err := store.CategoryScores(ctx)
	require.NoError(t, err)
	require.Len(t, scores, 1)
	assert.Equal(t, 2, scores[0].TotalAudits)
	assert.Equal(t, 1, scores[0].CriticalCount)
	require.NotNil(t, scores[0].AverageScore)
	assert.InDelta(t, 0.65, *scores[0].AverageScore, 1e-9)

	stats, err := store.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalAudits)
	assert.Equal(t, 1, stats.TargetsScanned)

	removed, err := store.TrimOlderThan(ctx, t1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	version, err := store.Version(ctx)
	require.NoError(t, err)
	assert.Contains(t, version, "PostgreSQL")
}

func TestContinuationStore_ClaimAndAck(t *testing.T) {
	t.Parallel()
	ctx, pool, cleanup := setupStoreTest(t)
	defer cleanup()

	store := NewContinuationStore(pool, storage.NoOpTracer())
	runID := uuid.New()
	now := time.Now().UTC()

	require.NoError(t, store.Enqueue(ctx, runID, 0, now.Add(-time.Second)))

	c, err := store.Claim(ctx, now, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, runID, c.RunID)
	assert.Equal(t, 1, c.Attempts)

	_, err = store.Claim(ctx, now, time.Minute)
	assert.ErrorIs(t, err, sitehealth.ErrNoContinuation)

	require.NoError(t, store.Enqueue(ctx, runID, 3, now))
	require.NoError(t, store.Ack(ctx, runID, 0))

	pending, err := store.Pending(ctx, runID)
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, 3, pending.Offset)
	assert.Nil(t, pending.LeaseUntil)

	require.NoError(t, store.Ack(ctx, runID, 3))
	pending, err = store.Pending(ctx, runID)
	require.NoError(t, err)
	assert.Nil(t, pending)
}

package sitehealth

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sachin5713/unified-site-health-dashboard/pkg/common/uuid"
)

func testTargets(n int) []Target {
	out := make([]Target, n)
	for i := range out {
		out[i] = Target{ID: string(rune('a' + i)), Title: "Page " + string(rune('A'+i)), URL: "https://example.com/" + string(rune('a'+i))}
	}
	return out
}

func startedRun(t *testing.T, n int) *ScanRun {
	t.Helper()
	r := NewIdleRun()
	require.NoError(t, r.Start(uuid.New(), testTargets(n), DefaultScanOrder(), time.Now()))
	return r
}

func TestStartResetsRun(t *testing.T) {
	now := time.Now()
	r := startedRun(t, 2)
	require.NoError(t, r.RecordError("Page A", "boom", CategoryPerformance, now))
	require.NoError(t, r.CompleteTarget(1, now))
	require.NoError(t, r.Complete(now))

	prevID := r.ID()
	require.NoError(t, r.Start(uuid.New(), testTargets(3), DefaultScanOrder(), now))

	assert.NotEqual(t, prevID, r.ID())
	assert.Equal(t, RunStatusRunning, r.Status())
	assert.Zero(t, r.TargetsDone())
	assert.Equal(t, 3, r.TargetsTotal())
	assert.Empty(t, r.Errors())
	assert.True(t, r.CompletedAt().IsZero())
	assert.Equal(t, len(DefaultScanOrder()), r.CategoryState().Count(CategoryPending))
}

func TestStartRejectsWhileRunning(t *testing.T) {
	r := startedRun(t, 1)
	err := r.Start(uuid.New(), testTargets(1), DefaultScanOrder(), time.Now())
	assert.ErrorIs(t, err, ErrRunAlreadyRunning)
}

func TestStartRequiresTargets(t *testing.T) {
	r := NewIdleRun()
	assert.ErrorIs(t, r.Start(uuid.New(), nil, DefaultScanOrder(), time.Now()), ErrNoTargets)
}

func TestTargetsDoneNeverDecreases(t *testing.T) {
	now := time.Now()
	r := startedRun(t, 4)

	require.NoError(t, r.BeginTarget(2, now))
	assert.Equal(t, 2, r.TargetsDone())
	require.NoError(t, r.CompleteTarget(2, now))
	assert.Equal(t, 3, r.TargetsDone())

	require.NoError(t, r.BeginTarget(0, now))
	require.NoError(t, r.CompleteTarget(0, now))
	assert.Equal(t, 3, r.TargetsDone())
	assert.Equal(t, "Page A", r.CurrentTargetLabel())

	assert.Error(t, r.BeginTarget(4, now))
}

func TestRecordErrorFailsCategory(t *testing.T) {
	now := time.Now()
	r := startedRun(t, 1)

	_, err := r.AdvanceCategory(CategoryPerformance, CategoryRunning, now)
	require.NoError(t, err)
	require.NoError(t, r.RecordError("Page A", MsgTimeout, CategoryPerformance, now))

	changed, err := r.AdvanceCategory(CategoryPerformance, CategoryCompleted, now)
	require.NoError(t, err)
	assert.False(t, changed)

	state, _ := r.CategoryState().Get(CategoryPerformance)
	assert.Equal(t, CategoryFailed, state)
	assert.Equal(t, []RunError{{TargetLabel: "Page A", Message: MsgTimeout, Category: CategoryPerformance}}, r.Errors())
}

func TestCompleteFinalisesCounters(t *testing.T) {
	now := time.Now()
	r := startedRun(t, 3)
	require.NoError(t, r.BeginTarget(0, now))
	require.NoError(t, r.SetCurrentCategory(CategorySEO, now))

	require.NoError(t, r.Complete(now))

	assert.Equal(t, RunStatusCompleted, r.Status())
	assert.Equal(t, 3, r.TargetsDone())
	assert.Empty(t, r.CurrentTargetLabel())
	assert.Empty(t, r.CurrentTargetURI())
	assert.Empty(t, r.CurrentCategory())
	assert.Equal(t, now, r.CompletedAt())
	assert.Equal(t, 100, r.PagePercentage())

	assert.ErrorIs(t, r.BeginTarget(0, now), ErrRunNotRunning)
	assert.Error(t, r.Complete(now))
}

func TestSnapshotRoundTripThroughJSON(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	r := startedRun(t, 2)
	require.NoError(t, r.BeginTarget(1, now))
	require.NoError(t, r.SetCurrentCategory(CategorySEO, now))

	data, err := json.Marshal(r.Snapshot())
	require.NoError(t, err)

	var snap RunSnapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	back := ReconstructScanRun(snap)

	assert.Equal(t, r.ID(), back.ID())
	assert.Equal(t, r.TargetsDone(), back.TargetsDone())
	assert.Equal(t, r.CategoryState(), back.CategoryState())
	assert.Equal(t, CategorySEO, back.CurrentCategory())
	assert.Contains(t, string(data), `"current_page_title":"Page B"`)
}

func TestIsStale(t *testing.T) {
	now := time.Now()
	r := startedRun(t, 1)
	r.Touch(now.Add(-time.Hour))

	assert.True(t, r.IsStale(now, 10*time.Minute))
	assert.False(t, r.IsStale(now, 2*time.Hour))
	assert.False(t, NewIdleRun().IsStale(now, 0))
}

func TestRunStatusTransitions(t *testing.T) {
	assert.NoError(t, RunStatusIdle.ValidateTransition(RunStatusRunning))
	assert.NoError(t, RunStatusRunning.ValidateTransition(RunStatusCompleted))
	assert.NoError(t, RunStatusCompleted.ValidateTransition(RunStatusRunning))
	assert.ErrorIs(t, RunStatusRunning.ValidateTransition(RunStatusRunning), ErrRunAlreadyRunning)
	assert.Error(t, RunStatusIdle.ValidateTransition(RunStatusCompleted))
	assert.True(t, RunStatusIdle.IsTerminal())
	assert.False(t, RunStatusRunning.IsTerminal())
}

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sachin5713/unified-site-health-dashboard/internal/domain/sitehealth"
	"github.com/sachin5713/unified-site-health-dashboard/pkg/common/uuid"
)

func TestRunStore_GetReturnsIdleRun(t *testing.T) {
	store := NewRunStore()

	run, err := store.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sitehealth.RunStatusIdle, run.Status())
	assert.Equal(t, int64(0), run.Version())
}

func TestRunStore_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	store := NewRunStore()
	now := time.Now()

	run, err := store.Get(ctx)
	require.NoError(t, err)

	targets := []sitehealth.Target{{ID: "1", Title: "Home", URL: "https://example.com"}}
	require.NoError(t, run.Start(uuid.New(), targets, sitehealth.DefaultScanOrder(), now))

	stored, err := store.CompareAndSwap(ctx, run)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version())
	assert.Equal(t, sitehealth.RunStatusRunning, stored.Status())

	// The caller's copy is now stale.
	run.Touch(now.Add(time.Second))
	_, err = store.CompareAndSwap(ctx, run)
	assert.ErrorIs(t, err, sitehealth.ErrVersionConflict)

	current, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), current.Version())
	assert.Equal(t, 1, current.TargetsTotal())
}

func TestRunStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewRunStore()

	run, err := store.Get(ctx)
	require.NoError(t, err)
	require.NoError(t, run.Start(uuid.New(), []sitehealth.Target{{ID: "1", URL: "https://a"}}, nil, time.Now()))

	again, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, sitehealth.RunStatusIdle, again.Status())
}

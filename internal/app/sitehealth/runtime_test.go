package sitehealth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/sachin5713/unified-site-health-dashboard/internal/domain/sitehealth"
	"github.com/sachin5713/unified-site-health-dashboard/pkg/common/logger"
	"github.com/sachin5713/unified-site-health-dashboard/pkg/common/uuid"
)

type runnableFunc func(ctx context.Context) error

func (f runnableFunc) Run(ctx context.Context) error { return f(ctx) }

func TestRuntimeStopsOnCancel(t *testing.T) {
	p := newPipeline(t, testTargets(1))
	rt := NewRuntime(p.worker, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runtime did not stop")
	}
}

func TestRuntimePropagatesFirstError(t *testing.T) {
	boom := errors.New("boom")
	blocking := runnableFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})
	failing := runnableFunc(func(context.Context) error { return boom })

	err := NewRuntime(blocking, failing).Run(context.Background())
	assert.ErrorIs(t, err, boom)
}

type starterFunc func(ctx context.Context) (uuid.UUID, error)

func (f starterFunc) StartScan(ctx context.Context) (uuid.UUID, error) { return f(ctx) }

func TestAutoScannerTick(t *testing.T) {
	var calls int
	starter := starterFunc(func(context.Context) (uuid.UUID, error) {
		calls++
		if calls > 1 {
			return uuid.Nil, domain.ErrRunAlreadyRunning
		}
		return uuid.New(), nil
	})

	a := NewAutoScanner(starter, time.Hour, logger.Noop())
	a.tick(context.Background())
	a.tick(context.Background())
	require.Equal(t, 2, calls)
}

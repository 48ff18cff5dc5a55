package sitehealth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sachin5713/unified-site-health-dashboard/internal/domain/events"
	domain "github.com/sachin5713/unified-site-health-dashboard/internal/domain/sitehealth"
)

func categoryStates(run *domain.ScanRun) map[domain.Category]domain.CategoryState {
	out := make(map[domain.Category]domain.CategoryState)
	for _, p := range run.CategoryState() {
		out[p.Category] = p.State
	}
	return out
}

func TestScanSingleTargetAllProbesSucceed(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, testTargets(1), withHostChecker(stubHostChecker{checks: passingHostChecks()}))

	p.prober.On("TestConnection", mock.Anything, "https://example.com/1", mock.Anything).Return(nil)
	p.prober.On("Probe", mock.Anything, "https://example.com/1", mock.Anything, mock.Anything).
		Return(probeResult(0.95), nil)

	runID, err := p.orch.StartScan(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, p.drain(t, ctx))

	run, err := p.runs.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, runID, run.ID())
	assert.Equal(t, domain.RunStatusCompleted, run.Status())
	assert.Equal(t, 1, run.TargetsDone())
	assert.Equal(t, 100, run.PagePercentage())
	assert.Empty(t, run.Errors())
	assert.Empty(t, run.CurrentTargetLabel())
	assert.False(t, run.CompletedAt().IsZero())

	states := run.CategoryState()
	require.Len(t, states, 5)
	for _, s := range states {
		assert.Equal(t, domain.CategoryCompleted, s.State, "category %s", s.Category)
	}
	assert.Equal(t, len(states), states.Count(domain.CategoryCompleted))

	p.prober.AssertNumberOfCalls(t, "Probe", 2)
	assert.Equal(t, []events.EventType{events.EventTypeRunStarted, events.EventTypeRunCompleted}, p.publisher.types())

	scores, err := p.service.CategoryScores(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, scores)
}

func TestScanProbeTimeoutMarksPerformanceFailed(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, testTargets(1), withHostChecker(stubHostChecker{checks: passingHostChecks()}))

	timeout := domain.NewProbeError(domain.ProbeTimeout, 0, "", context.DeadlineExceeded)
	timeout.Attempts = 2

	p.prober.On("TestConnection", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	p.prober.On("Probe", mock.Anything, mock.Anything, domain.ProfileMobile, mock.Anything).Return(nil, timeout)
	p.prober.On("Probe", mock.Anything, mock.Anything, domain.ProfileDesktop, mock.Anything).
		Return(probeResult(0.95), nil)

	_, err := p.orch.StartScan(ctx)
	require.NoError(t, err)
	p.drain(t, ctx)

	run, err := p.runs.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, run.Status())

	require.Len(t, run.Errors(), 1)
	assert.Equal(t, domain.RunError{
		TargetLabel: "Page A",
		Message:     domain.MsgTimeout,
		Category:    domain.CategoryPerformance,
	}, run.Errors()[0])

	states := categoryStates(run)
	assert.Equal(t, domain.CategoryFailed, states[domain.CategoryPerformance])
	assert.Equal(t, domain.CategoryCompleted, states[domain.CategorySEO])
	assert.Equal(t, domain.CategoryCompleted, states[domain.CategoryHostHealth])
}

func TestScanProcessesBatchesOfTwo(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, testTargets(5), withHostChecker(stubHostChecker{checks: passingHostChecks()}))

	p.prober.On("TestConnection", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	p.prober.On("Probe", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(probeResult(0.8), nil)

	counter := &countingProcessor{next: p.orch, runs: p.runs}
	p.worker.processor = counter

	_, err := p.orch.StartScan(ctx)
	require.NoError(t, err)

	assert.Equal(t, 3, p.drain(t, ctx))
	assert.Equal(t, []int{0, 2, 4}, counter.calls)
	assert.Equal(t, []int{2, 4, 5}, counter.done)

	run, err := p.runs.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, run.Status())
	assert.Equal(t, 5, run.TargetsDone())
	p.prober.AssertNumberOfCalls(t, "Probe", 10)
}

func TestStartScanValidation(t *testing.T) {
	tests := []struct {
		name    string
		targets int
		opts    []pipelineOption
		setup   func(p *pipeline)
		wantErr error
		wantMsg string
	}{
		{
			name:    "missing credentials",
			targets: 1,
			opts:    []pipelineOption{withCredentials("")},
			wantErr: domain.ErrMissingCredentials,
		},
		{
			name:    "no targets",
			targets: 0,
			wantErr: domain.ErrNoTargets,
		},
		{
			name:    "connection test fails",
			targets: 1,
			setup: func(p *pipeline) {
				p.prober.On("TestConnection", mock.Anything, mock.Anything, mock.Anything).
					Return(domain.NewProbeError(domain.ProbeAuthInvalid, 403, "", nil))
			},
			wantMsg: "API connection test failed: " + domain.MsgAuthInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPipeline(t, testTargets(tt.targets), tt.opts...)
			if tt.setup != nil {
				tt.setup(p)
			}

			_, err := p.orch.StartScan(context.Background())
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.wantMsg != "" {
				var cErr *ConnectionTestError
				require.True(t, errors.As(err, &cErr))
				assert.Equal(t, tt.wantMsg, err.Error())
			}

			run, err := p.runs.Get(context.Background())
			require.NoError(t, err)
			assert.Equal(t, domain.RunStatusIdle, run.Status())
		})
	}
}

func TestStartScanRejectsConcurrentRun(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, testTargets(3))
	p.prober.On("TestConnection", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	first, err := p.orch.StartScan(ctx)
	require.NoError(t, err)

	_, err = p.orch.StartScan(ctx)
	assert.ErrorIs(t, err, domain.ErrRunAlreadyRunning)

	run, err := p.runs.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, run.ID())
	p.prober.AssertNumberOfCalls(t, "TestConnection", 1)
}

func TestStartScanResetsCompletedRun(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, testTargets(1))

	p.prober.On("TestConnection", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	p.prober.On("Probe", mock.Anything, mock.Anything, domain.ProfileMobile, mock.Anything).
		Return(nil, domain.NewProbeError(domain.ProbeInvalidTarget, 400, "", nil))
	p.prober.On("Probe", mock.Anything, mock.Anything, domain.ProfileDesktop, mock.Anything).
		Return(probeResult(0.9), nil)

	_, err := p.orch.StartScan(ctx)
	require.NoError(t, err)
	p.drain(t, ctx)

	run, err := p.runs.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.RunStatusCompleted, run.Status())
	require.Len(t, run.Errors(), 1)

	second, err := p.orch.StartScan(ctx)
	require.NoError(t, err)

	run, err = p.runs.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, run.ID())
	assert.Equal(t, domain.RunStatusRunning, run.Status())
	assert.Equal(t, 0, run.TargetsDone())
	assert.Empty(t, run.Errors())
	assert.Equal(t, len(run.CategoryState()), run.CategoryState().Count(domain.CategoryPending))
}

func TestProcessBatchSupersededRun(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, testTargets(2))
	p.prober.On("TestConnection", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	_, err := p.orch.StartScan(ctx)
	require.NoError(t, err)

	stale := p.orch.newID()
	require.NoError(t, p.queue.Enqueue(ctx, stale, 0, time.Now().Add(-time.Minute)))

	err = p.orch.ProcessBatch(ctx, stale, 0)
	assert.ErrorIs(t, err, domain.ErrRunSuperseded)

	// The worker acknowledges superseded continuations.
	processed, err := p.worker.processNext(ctx)
	require.NoError(t, err)
	assert.True(t, processed)
	pending, err := p.queue.Pending(ctx, stale)
	require.NoError(t, err)
	assert.Nil(t, pending)
}

func TestProcessBatchResumesFromTargetsDone(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, testTargets(4))

	p.prober.On("TestConnection", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	p.prober.On("Probe", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(probeResult(0.95), nil)

	runID, err := p.orch.StartScan(ctx)
	require.NoError(t, err)
	require.NoError(t, p.orch.ProcessBatch(ctx, runID, 0))

	// A duplicate continuation at offset 0 must not reprocess targets 0 and 1.
	require.NoError(t, p.orch.ProcessBatch(ctx, runID, 0))

	run, err := p.runs.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, run.Status())
	p.prober.AssertNumberOfCalls(t, "Probe", 8)
}

func TestHostCheckFailureMarksHostHealthFailed(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, testTargets(1), withHostChecker(stubHostChecker{err: errors.New("dial tcp: refused")}))

	p.prober.On("TestConnection", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	p.prober.On("Probe", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(probeResult(0.95), nil)

	_, err := p.orch.StartScan(ctx)
	require.NoError(t, err)
	p.drain(t, ctx)

	run, err := p.runs.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.RunStatusCompleted, run.Status())
	assert.Equal(t, domain.CategoryFailed, categoryStates(run)[domain.CategoryHostHealth])
	require.Len(t, run.Errors(), 1)
	assert.Equal(t, "Host checks failed: dial tcp: refused", run.Errors()[0].Message)
}

package sitehealth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	domain "github.com/sachin5713/unified-site-health-dashboard/internal/domain/sitehealth"
	"github.com/sachin5713/unified-site-health-dashboard/pkg/common/logger"
	"github.com/sachin5713/unified-site-health-dashboard/pkg/common/uuid"
)

// ScanStarter starts a run.
type ScanStarter interface {
	StartScan(ctx context.Context) (uuid.UUID, error)
}

// ParseScanInterval maps daily, weekly and monthly to a duration.
func ParseScanInterval(s string) (time.Duration, error) {
	switch s {
	case "daily":
		return 24 * time.Hour, nil
	case "weekly":
		return 7 * 24 * time.Hour, nil
	case "monthly":
		return 30 * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("invalid scan interval %q", s)
	}
}

// AutoScanner starts a run on a fixed schedule. Ticks that land while a run
// is in flight are skipped.
type AutoScanner struct {
	starter  ScanStarter
	interval time.Duration
	logger   *logger.Logger
}

// NewAutoScanner creates an AutoScanner.
func NewAutoScanner(starter ScanStarter, interval time.Duration, log *logger.Logger) *AutoScanner {
	return &AutoScanner{starter: starter, interval: interval, logger: log.With("component", "auto_scanner")}
}

// Run starts scans until ctx is canceled.
func (a *AutoScanner) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			a.tick(ctx)
		}
	}
}

func (a *AutoScanner) tick(ctx context.Context) {
	runID, err := a.starter.StartScan(ctx)
	switch {
	case err == nil:
		a.logger.Info(ctx, "scheduled scan started", "run_id", runID)
	case errors.Is(err, domain.ErrRunAlreadyRunning):
		a.logger.Info(ctx, "scheduled scan skipped, run in progress")
	default:
		a.logger.Error(ctx, "scheduled scan failed to start", "error", err)
	}
}

// Runnable is a long-lived component of the worker process.
type Runnable interface {
	Run(ctx context.Context) error
}

// Runtime runs the worker, supervisor and housekeeping loops together. The
// first one to fail cancels the rest.
type Runtime struct {
	components []Runnable
}

// NewRuntime groups components; nil entries are skipped.
func NewRuntime(components ...Runnable) *Runtime {
	rt := &Runtime{}
	for _, c := range components {
		if c != nil {
			rt.components = append(rt.components, c)
		}
	}
	return rt
}

// Run blocks until ctx is canceled or a component returns an error.
func (rt *Runtime) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, c := range rt.components {
		g.Go(func() error { return c.Run(ctx) })
	}
	return g.Wait()
}

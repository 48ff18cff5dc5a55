// Package memory provides in-memory implementations of the site health
// repositories for tests and single-process deployments.
package memory

import (
	"context"
	"sync"

	"github.com/sachin5713/unified-site-health-dashboard/internal/domain/sitehealth"
)

// RunStore keeps the single ScanRun record in memory.
type RunStore struct {
	mu  sync.Mutex
	run *sitehealth.ScanRun
}

var _ sitehealth.RunRepository = (*RunStore)(nil)

// NewRunStore creates a RunStore holding an idle run.
func NewRunStore() *RunStore {
	return &RunStore{run: sitehealth.NewIdleRun()}
}

// Get returns a copy of the stored run.
func (s *RunStore) Get(_ context.Context) (*sitehealth.ScanRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run.Clone(), nil
}

// CompareAndSwap replaces the stored run when versions match.
func (s *RunStore) CompareAndSwap(_ context.Context, run *sitehealth.ScanRun) (*sitehealth.ScanRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.run.Version() != run.Version() {
		return nil, sitehealth.ErrVersionConflict
	}

	snap := run.Snapshot()
	snap.Version++
	s.run = sitehealth.ReconstructScanRun(snap)
	return s.run.Clone(), nil
}

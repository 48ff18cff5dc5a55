package memory

import (
	"context"
	"sync"
	"time"

	"github.com/sachin5713/unified-site-health-dashboard/internal/domain/sitehealth"
	"github.com/sachin5713/unified-site-health-dashboard/pkg/common/uuid"
)

// ContinuationQueue is an in-memory durable-continuation stand-in.
type ContinuationQueue struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*sitehealth.Continuation
}

var _ sitehealth.ContinuationQueue = (*ContinuationQueue)(nil)

// NewContinuationQueue creates an empty queue.
func NewContinuationQueue() *ContinuationQueue {
	return &ContinuationQueue{entries: make(map[uuid.UUID]*sitehealth.Continuation)}
}

// Enqueue upserts the continuation for runID.
func (q *ContinuationQueue) Enqueue(_ context.Context, runID uuid.UUID, offset int, dueAt time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if e, ok := q.entries[runID]; ok && e.Offset == offset {
		e.DueAt = dueAt
		return nil
	}
	q.entries[runID] = &sitehealth.Continuation{RunID: runID, Offset: offset, DueAt: dueAt}
	return nil
}

// Claim leases the earliest due continuation.
func (q *ContinuationQueue) Claim(_ context.Context, now time.Time, lease time.Duration) (sitehealth.Continuation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var next *sitehealth.Continuation
	for _, e := range q.entries {
		if e.DueAt.After(now) {
			continue
		}
		if e.LeaseUntil != nil && e.LeaseUntil.After(now) {
			continue
		}
		if next == nil || e.DueAt.Before(next.DueAt) {
			next = e
		}
	}
	if next == nil {
		return sitehealth.Continuation{}, sitehealth.ErrNoContinuation
	}

	until := now.Add(lease)
	next.LeaseUntil = &until
	next.Attempts++
	return *next, nil
}

// Ack removes the continuation for runID if it still points at offset.
func (q *ContinuationQueue) Ack(_ context.Context, runID uuid.UUID, offset int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if e, ok := q.entries[runID]; ok && e.Offset == offset {
		delete(q.entries, runID)
	}
	return nil
}

// Pending returns a copy of the continuation for runID.
func (q *ContinuationQueue) Pending(_ context.Context, runID uuid.UUID) (*sitehealth.Continuation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[runID]
	if !ok {
		return nil, nil
	}
	c := *e
	return &c, nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sachin5713/unified-site-health-dashboard/internal/domain/sitehealth"
	"github.com/sachin5713/unified-site-health-dashboard/internal/infra/storage"
	"github.com/sachin5713/unified-site-health-dashboard/pkg/common/uuid"
)

// continuationStore persists batch continuations in scan_continuations.
type continuationStore struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

var _ sitehealth.ContinuationQueue = (*continuationStore)(nil)

// NewContinuationStore creates a PostgreSQL backed ContinuationQueue.
func NewContinuationStore(pool *pgxpool.Pool, tracer trace.Tracer) *continuationStore {
	return &continuationStore{db: pool, tracer: tracer}
}

const enqueueContinuationQuery = `
INSERT INTO scan_continuations (run_id, batch_offset, due_at)
VALUES ($1, $2, $3)
ON CONFLICT (run_id) DO UPDATE SET
    due_at = EXCLUDED.due_at,
    lease_until = CASE WHEN scan_continuations.batch_offset = EXCLUDED.batch_offset
                       THEN scan_continuations.lease_until ELSE NULL END,
    attempts = CASE WHEN scan_continuations.batch_offset = EXCLUDED.batch_offset
                    THEN scan_continuations.attempts ELSE 0 END,
    batch_offset = EXCLUDED.batch_offset`

// Enqueue upserts the continuation for runID.
func (s *continuationStore) Enqueue(ctx context.Context, runID uuid.UUID, offset int, dueAt time.Time) error {
	attrs := storage.Attrs(
		attribute.String("run_id", runID.String()),
		attribute.Int("offset", offset),
	)
	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.enqueue_continuation", attrs, func(ctx context.Context) error {
		if _, err := s.db.Exec(ctx, enqueueContinuationQuery,
			pgtype.UUID{Bytes: runID, Valid: true}, offset, dueAt,
		); err != nil {
			return fmt.Errorf("enqueue continuation error: %w", err)
		}
		return nil
	})
}

const claimContinuationQuery = `
UPDATE scan_continuations SET lease_until = $2, attempts = attempts + 1
WHERE run_id = (
    SELECT run_id FROM scan_continuations
    WHERE due_at <= $1 AND (lease_until IS NULL OR lease_until <= $1)
    ORDER BY due_at
    LIMIT 1
    FOR UPDATE SKIP LOCKED
)
RETURNING run_id, batch_offset, due_at, lease_until, attempts`

func scanContinuation(row pgx.Row) (sitehealth.Continuation, error) {
	var (
		c     sitehealth.Continuation
		runID pgtype.UUID
	)
	if err := row.Scan(&runID, &c.Offset, &c.DueAt, &c.LeaseUntil, &c.Attempts); err != nil {
		return sitehealth.Continuation{}, err
	}
	c.RunID = uuid.UUID(runID.Bytes)
	return c, nil
}

// Claim leases the earliest due continuation. Concurrent claimers skip rows
// already locked by another transaction.
func (s *continuationStore) Claim(ctx context.Context, now time.Time, lease time.Duration) (sitehealth.Continuation, error) {
	var claimed sitehealth.Continuation
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.claim_continuation", storage.Attrs(), func(ctx context.Context) error {
		c, err := scanContinuation(s.db.QueryRow(ctx, claimContinuationQuery, now, now.Add(lease)))
		if errors.Is(err, pgx.ErrNoRows) {
			return sitehealth.ErrNoContinuation
		}
		if err != nil {
			return fmt.Errorf("claim continuation error: %w", err)
		}
		claimed = c
		return nil
	})
	return claimed, err
}

// Ack removes the continuation for runID if it still points at offset.
func (s *continuationStore) Ack(ctx context.Context, runID uuid.UUID, offset int) error {
	attrs := storage.Attrs(
		attribute.String("run_id", runID.String()),
		attribute.Int("offset", offset),
	)
	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.ack_continuation", attrs, func(ctx context.Context) error {
		if _, err := s.db.Exec(ctx,
			`DELETE FROM scan_continuations WHERE run_id = $1 AND batch_offset = $2`,
			pgtype.UUID{Bytes: runID, Valid: true}, offset,
		); err != nil {
			return fmt.Errorf("ack continuation error: %w", err)
		}
		return nil
	})
}

// Pending returns the continuation for runID, or nil.
func (s *continuationStore) Pending(ctx context.Context, runID uuid.UUID) (*sitehealth.Continuation, error) {
	attrs := storage.Attrs(attribute.String("run_id", runID.String()))

	var pending *sitehealth.Continuation
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.pending_continuation", attrs, func(ctx context.Context) error {
		c, err := scanContinuation(s.db.QueryRow(ctx,
			`SELECT run_id, batch_offset, due_at, lease_until, attempts FROM scan_continuations WHERE run_id = $1`,
			pgtype.UUID{Bytes: runID, Valid: true},
		))
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("pending continuation error: %w", err)
		}
		pending = &c
		return nil
	})
	return pending, err
}

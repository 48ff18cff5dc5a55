// Package postgres implements the site health repositories on PostgreSQL.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sachin5713/unified-site-health-dashboard/internal/domain/sitehealth"
	"github.com/sachin5713/unified-site-health-dashboard/internal/infra/storage"
	"github.com/sachin5713/unified-site-health-dashboard/pkg/common/uuid"
)

// runStore keeps the singleton scan_run row. Writes are guarded by the
// version column.
type runStore struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

var _ sitehealth.RunRepository = (*runStore)(nil)

// NewRunStore creates a PostgreSQL backed RunRepository.
func NewRunStore(pool *pgxpool.Pool, tracer trace.Tracer) *runStore {
	return &runStore{db: pool, tracer: tracer}
}

const getRunQuery = `
SELECT version, run_id, status::text, targets, targets_done, current_label, current_uri,
       current_category, category_state, errors, started_at, completed_at, updated_at
FROM scan_run
WHERE slot = 1`

// Get loads the run row.
func (s *runStore) Get(ctx context.Context) (*sitehealth.ScanRun, error) {
	var run *sitehealth.ScanRun
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.get_scan_run", storage.Attrs(), func(ctx context.Context) error {
		var (
			snap          sitehealth.RunSnapshot
			runID         pgtype.UUID
			status        string
			targets       []byte
			categoryState []byte
			errs          []byte
			startedAt     *time.Time
			completedAt   *time.Time
			currentCat    string
		)
		row := s.db.QueryRow(ctx, getRunQuery)
		if err := row.Scan(
			&snap.Version, &runID, &status, &targets, &snap.TargetsDone,
			&snap.CurrentTargetLabel, &snap.CurrentTargetURI, &currentCat,
			&categoryState, &errs, &startedAt, &completedAt, &snap.UpdatedAt,
		); err != nil {
			return fmt.Errorf("scan run query error: %w", err)
		}

		if runID.Valid {
			snap.ID = uuid.UUID(runID.Bytes)
		}
		snap.Status = sitehealth.RunStatus(status)
		snap.CurrentCategory = sitehealth.Category(currentCat)
		if startedAt != nil {
			snap.StartedAt = *startedAt
		}
		snap.CompletedAt = completedAt

		if err := json.Unmarshal(targets, &snap.Targets); err != nil {
			return fmt.Errorf("decode targets: %w", err)
		}
		if err := json.Unmarshal(categoryState, &snap.CategoryState); err != nil {
			return fmt.Errorf("decode category state: %w", err)
		}
		if err := json.Unmarshal(errs, &snap.Errors); err != nil {
			return fmt.Errorf("decode errors: %w", err)
		}

		run = sitehealth.ReconstructScanRun(snap)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

const casRunQuery = `
UPDATE scan_run SET
    version = version + 1,
    run_id = $2,
    status = $3::scan_run_status,
    targets = $4,
    targets_done = $5,
    current_label = $6,
    current_uri = $7,
    current_category = $8,
    category_state = $9,
    errors = $10,
    started_at = $11,
    completed_at = $12,
    updated_at = $13
WHERE slot = 1 AND version = $1
RETURNING version`

// CompareAndSwap writes run when the stored version equals run.Version().
func (s *runStore) CompareAndSwap(ctx context.Context, run *sitehealth.ScanRun) (*sitehealth.ScanRun, error) {
	snap := run.Snapshot()
	attrs := storage.Attrs(
		attribute.String("run_id", snap.ID.String()),
		attribute.Int64("expected_version", snap.Version),
		attribute.String("status", snap.Status.String()),
	)

	var stored *sitehealth.ScanRun
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.cas_scan_run", attrs, func(ctx context.Context) error {
		targets, err := json.Marshal(snap.Targets)
		if err != nil {
			return fmt.Errorf("encode targets: %w", err)
		}
		categoryState, err := json.Marshal(snap.CategoryState)
		if err != nil {
			return fmt.Errorf("encode category state: %w", err)
		}
		errs, err := json.Marshal(snap.Errors)
		if err != nil {
			return fmt.Errorf("encode errors: %w", err)
		}

		startedAt := pgtype.Timestamptz{Time: snap.StartedAt, Valid: !snap.StartedAt.IsZero()}
		completedAt := pgtype.Timestamptz{}
		if snap.CompletedAt != nil {
			completedAt = pgtype.Timestamptz{Time: *snap.CompletedAt, Valid: true}
		}

		rows, err := s.db.Query(ctx, casRunQuery,
			snap.Version,
			pgtype.UUID{Bytes: snap.ID, Valid: snap.ID != uuid.Nil},
			snap.Status.String(),
			targets,
			snap.TargetsDone,
			snap.CurrentTargetLabel,
			snap.CurrentTargetURI,
			string(snap.CurrentCategory),
			categoryState,
			errs,
			startedAt,
			completedAt,
			snap.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("scan run update error: %w", err)
		}
		defer rows.Close()

		if !rows.Next() {
			if err := rows.Err(); err != nil {
				return fmt.Errorf("scan run update error: %w", err)
			}
			return sitehealth.ErrVersionConflict
		}
		if err := rows.Scan(&snap.Version); err != nil {
			return fmt.Errorf("scan run version scan error: %w", err)
		}
		stored = sitehealth.ReconstructScanRun(snap)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

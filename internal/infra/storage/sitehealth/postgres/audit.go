package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sachin5713/unified-site-health-dashboard/internal/domain/sitehealth"
	"github.com/sachin5713/unified-site-health-dashboard/internal/infra/storage"
)

// auditStore is the append-only audit log in audit_records.
type auditStore struct {
	db     *pgxpool.Pool
	tracer trace.Tracer
}

var (
	_ sitehealth.AuditRepository = (*auditStore)(nil)
	_ sitehealth.VersionReporter = (*auditStore)(nil)
)

// NewAuditStore creates a PostgreSQL backed AuditRepository.
func NewAuditStore(pool *pgxpool.Pool, tracer trace.Tracer) *auditStore {
	return &auditStore{db: pool, tracer: tracer}
}

const insertAuditQuery = `
INSERT INTO audit_records (
    target_id, target_uri, profile, category, name, score,
    description, affected_element, severity, recorded_at
) VALUES ($1, $2, $3::audit_profile, $4, $5, $6, $7, $8, $9::audit_severity, $10)`

// Append inserts records in a single transaction.
func (s *auditStore) Append(ctx context.Context, records ...sitehealth.AuditRecord) error {
	if len(records) == 0 {
		return nil
	}
	attrs := storage.Attrs(attribute.Int("record_count", len(records)))

	return storage.ExecuteAndTrace(ctx, s.tracer, "postgres.append_audits", attrs, func(ctx context.Context) error {
		tx, err := s.db.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin transaction error: %w", err)
		}
		defer tx.Rollback(ctx)

		batch := &pgx.Batch{}
		for _, r := range records {
			batch.Queue(insertAuditQuery,
				r.TargetID, r.TargetURI, r.Profile.String(), string(r.Category), r.Name, r.Score,
				r.Description, r.AffectedElement, r.Severity.String(), r.RecordedAt,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert audits error: %w", err)
		}
		return tx.Commit(ctx)
	})
}

const auditColumns = `target_id, target_uri, profile::text, category, name, score,
       description, affected_element, severity::text, recorded_at`

// Filters shared by the read queries: $1 category, $2 profile, $3 target uri.
const auditFilter = `($1 = '' OR category = $1)
  AND ($2 = '' OR profile::text = $2)
  AND ($3 = '' OR target_uri = $3)`

func filterArgs(q sitehealth.AuditQuery) []any {
	return []any{string(q.Category), q.Profile.String(), q.TargetURI}
}

func queryAttrs(q sitehealth.AuditQuery) []attribute.KeyValue {
	return storage.Attrs(
		attribute.String("category", string(q.Category)),
		attribute.String("profile", q.Profile.String()),
		attribute.String("target_uri", q.TargetURI),
	)
}

func scanRecords(rows pgx.Rows) ([]sitehealth.AuditRecord, error) {
	defer rows.Close()

	var out []sitehealth.AuditRecord
	for rows.Next() {
		var (
			r                           sitehealth.AuditRecord
			profile, category, severity string
		)
		if err := rows.Scan(
			&r.TargetID, &r.TargetURI, &profile, &category, &r.Name, &r.Score,
			&r.Description, &r.AffectedElement, &severity, &r.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("audit row scan error: %w", err)
		}
		r.Profile = sitehealth.Profile(profile)
		r.Category = sitehealth.Category(category)
		r.Severity = sitehealth.Severity(severity)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit rows error: %w", err)
	}
	return out, nil
}

var currentAuditsQuery = `
WITH latest AS (
    SELECT MAX(recorded_at) AS at FROM audit_records WHERE ` + auditFilter + `
)
SELECT ` + auditColumns + `
FROM audit_records, latest
WHERE recorded_at = latest.at AND ` + auditFilter + `
ORDER BY severity ASC, id ASC`

// Current returns the records sharing the latest timestamp for q. The
// audit_severity enum is declared critical first, so ascending order puts
// the worst findings on top.
func (s *auditStore) Current(ctx context.Context, q sitehealth.AuditQuery) ([]sitehealth.AuditRecord, error) {
	var out []sitehealth.AuditRecord
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.current_audits", queryAttrs(q), func(ctx context.Context) error {
		rows, err := s.db.Query(ctx, currentAuditsQuery, filterArgs(q)...)
		if err != nil {
			return fmt.Errorf("current audits query error: %w", err)
		}
		out, err = scanRecords(rows)
		return err
	})
	return out, err
}

var historyAuditsQuery = `
SELECT ` + auditColumns + `
FROM audit_records
WHERE ` + auditFilter + `
ORDER BY recorded_at DESC, severity ASC, id ASC`

// History returns every record for q, newest first.
func (s *auditStore) History(ctx context.Context, q sitehealth.AuditQuery) ([]sitehealth.AuditRecord, error) {
	var out []sitehealth.AuditRecord
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.audit_history", queryAttrs(q), func(ctx context.Context) error {
		rows, err := s.db.Query(ctx, historyAuditsQuery, filterArgs(q)...)
		if err != nil {
			return fmt.Errorf("audit history query error: %w", err)
		}
		out, err = scanRecords(rows)
		return err
	})
	return out, err
}

const categoryScoresQuery = `
WITH latest AS (
    SELECT category, profile, MAX(recorded_at) AS at
    FROM audit_records
    GROUP BY category, profile
)
SELECT a.category, a.profile::text, AVG(a.score), COUNT(*),
       COUNT(*) FILTER (WHERE a.severity = 'critical'),
       COUNT(*) FILTER (WHERE a.severity = 'warning'),
       COUNT(*) FILTER (WHERE a.severity = 'info'),
       COUNT(*) FILTER (WHERE a.severity = 'good')
FROM audit_records a
JOIN latest l ON a.category = l.category AND a.profile = l.profile AND a.recorded_at = l.at
GROUP BY a.category, a.profile
ORDER BY a.category, a.profile::text`

// CategoryScores summarises the current records of every category and profile.
func (s *auditStore) CategoryScores(ctx context.Context) ([]sitehealth.CategoryScoreSnapshot, error) {
	var out []sitehealth.CategoryScoreSnapshot
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.category_scores", storage.Attrs(), func(ctx context.Context) error {
		rows, err := s.db.Query(ctx, categoryScoresQuery)
		if err != nil {
			return fmt.Errorf("category scores query error: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				snap              sitehealth.CategoryScoreSnapshot
				category, profile string
				total, crit, warn int64
				info, good        int64
			)
			if err := rows.Scan(&category, &profile, &snap.AverageScore, &total, &crit, &warn, &info, &good); err != nil {
				return fmt.Errorf("category scores scan error: %w", err)
			}
			snap.Category = sitehealth.Category(category)
			snap.Profile = sitehealth.Profile(profile)
			snap.TotalAudits = int(total)
			snap.CriticalCount = int(crit)
			snap.WarningCount = int(warn)
			snap.InfoCount = int(info)
			snap.GoodCount = int(good)
			out = append(out, snap)
		}
		return rows.Err()
	})
	return out, err
}

var latestScanDateQuery = `SELECT MAX(recorded_at) FROM audit_records WHERE ` + auditFilter

// LatestScanDate returns the newest timestamp for q or nil.
func (s *auditStore) LatestScanDate(ctx context.Context, q sitehealth.AuditQuery) (*time.Time, error) {
	var latest *time.Time
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.latest_scan_date", queryAttrs(q), func(ctx context.Context) error {
		if err := s.db.QueryRow(ctx, latestScanDateQuery, filterArgs(q)...).Scan(&latest); err != nil {
			return fmt.Errorf("latest scan date query error: %w", err)
		}
		return nil
	})
	return latest, err
}

const statisticsQuery = `
SELECT COUNT(DISTINCT target_id), COUNT(*), MIN(recorded_at), MAX(recorded_at)
FROM audit_records`

// Statistics summarises the whole log.
func (s *auditStore) Statistics(ctx context.Context) (sitehealth.ScanStatistics, error) {
	var stats sitehealth.ScanStatistics
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.scan_statistics", storage.Attrs(), func(ctx context.Context) error {
		var targets, audits int64
		if err := s.db.QueryRow(ctx, statisticsQuery).Scan(
			&targets, &audits, &stats.FirstScanDate, &stats.LastScanDate,
		); err != nil {
			return fmt.Errorf("statistics query error: %w", err)
		}
		stats.TargetsScanned = int(targets)
		stats.TotalAudits = int(audits)
		return nil
	})
	return stats, err
}

// TrimOlderThan deletes records recorded before cutoff.
func (s *auditStore) TrimOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	attrs := storage.Attrs(attribute.String("cutoff", cutoff.UTC().Format(time.RFC3339)))

	var removed int64
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.trim_audits", attrs, func(ctx context.Context) error {
		tag, err := s.db.Exec(ctx, `DELETE FROM audit_records WHERE recorded_at < $1`, cutoff)
		if err != nil {
			return fmt.Errorf("trim audits error: %w", err)
		}
		removed = tag.RowsAffected()
		return nil
	})
	return removed, err
}

// Version reports the server version string.
func (s *auditStore) Version(ctx context.Context) (string, error) {
	var v string
	err := storage.ExecuteAndTrace(ctx, s.tracer, "postgres.server_version", storage.Attrs(), func(ctx context.Context) error {
		if err := s.db.QueryRow(ctx, `SHOW server_version`).Scan(&v); err != nil {
			return fmt.Errorf("server version query error: %w", err)
		}
		return nil
	})
	return "PostgreSQL " + v, err
}

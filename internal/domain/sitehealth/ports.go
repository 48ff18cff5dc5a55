package sitehealth

import (
	"context"
	"time"

	"github.com/sachin5713/unified-site-health-dashboard/pkg/common/uuid"
)

// RunRepository persists the single ScanRun record.
type RunRepository interface {
	// Get returns the current run. Before any run has started it returns an
	// idle run with version 0.
	Get(ctx context.Context) (*ScanRun, error)

	// CompareAndSwap stores run if the stored version still equals
	// run.Version(). It returns the stored run with its new version or
	// ErrVersionConflict.
	CompareAndSwap(ctx context.Context, run *ScanRun) (*ScanRun, error)
}

// AuditRepository is the append-only audit log.
type AuditRepository interface {
	// Append stores records. Records are never updated afterwards.
	Append(ctx context.Context, records ...AuditRecord) error

	// Current returns the records sharing the latest timestamp for the
	// query's category and profile, ordered by severity. With an empty
	// profile the latest timestamp is taken across profiles.
	Current(ctx context.Context, q AuditQuery) ([]AuditRecord, error)

	// History returns every record for the query, newest first.
	History(ctx context.Context, q AuditQuery) ([]AuditRecord, error)

	// CategoryScores summarises the current records of every category and profile.
	CategoryScores(ctx context.Context) ([]CategoryScoreSnapshot, error)

	// LatestScanDate is the newest timestamp for the query, or nil.
	LatestScanDate(ctx context.Context, q AuditQuery) (*time.Time, error)

	// Statistics summarises the whole log.
	Statistics(ctx context.Context) (ScanStatistics, error)

	// TrimOlderThan deletes records recorded before cutoff and returns how many.
	TrimOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Continuation is a durable pointer to the next batch of a run.
type Continuation struct {
	RunID      uuid.UUID
	Offset     int
	DueAt      time.Time
	LeaseUntil *time.Time
	Attempts   int
}

// ContinuationQueue holds at most one continuation per run.
type ContinuationQueue interface {
	// Enqueue upserts the continuation for runID. Enqueuing the same
	// (runID, offset) again only refreshes its due time.
	Enqueue(ctx context.Context, runID uuid.UUID, offset int, dueAt time.Time) error

	// Claim leases the earliest due continuation whose lease is free or
	// expired. It returns ErrNoContinuation when nothing is due.
	Claim(ctx context.Context, now time.Time, lease time.Duration) (Continuation, error)

	// Ack removes the continuation for runID only if it still points at offset.
	Ack(ctx context.Context, runID uuid.UUID, offset int) error

	// Pending returns the continuation for runID, if any.
	Pending(ctx context.Context, runID uuid.UUID) (*Continuation, error)
}

// Prober issues one metric request for a target and profile.
type Prober interface {
	Probe(ctx context.Context, targetURI string, profile Profile, creds Credentials) (*ProbeResult, error)
	TestConnection(ctx context.Context, targetURI string, creds Credentials) error
}

// TargetSource supplies the work list for a run.
type TargetSource interface {
	Targets(ctx context.Context) ([]Target, error)
}

// CredentialProvider supplies probe credentials.
type CredentialProvider interface {
	Credentials(ctx context.Context) (Credentials, error)
}

// HostCheck is one non-probe finding before it is stamped with a target.
type HostCheck struct {
	Category        Category
	Name            string
	Score           *float64
	Description     string
	AffectedElement string
	Severity        Severity
}

// HostChecker runs checks that are not backed by the probe.
type HostChecker interface {
	Check(ctx context.Context, target Target) ([]HostCheck, error)
}

// VersionReporter reports the version of a backing service.
type VersionReporter interface {
	Version(ctx context.Context) (string, error)
}

package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sachin5713/unified-site-health-dashboard/internal/domain/sitehealth"
)

// AuditStore is an append-only in-memory audit log.
type AuditStore struct {
	mu      sync.RWMutex
	records []sitehealth.AuditRecord
}

var _ sitehealth.AuditRepository = (*AuditStore)(nil)

// NewAuditStore creates an empty AuditStore.
func NewAuditStore() *AuditStore { return &AuditStore{} }

// Append stores records.
func (s *AuditStore) Append(_ context.Context, records ...sitehealth.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
	return nil
}

func matches(r sitehealth.AuditRecord, q sitehealth.AuditQuery) bool {
	if q.Category != "" && r.Category != q.Category {
		return false
	}
	if q.Profile != "" && r.Profile != q.Profile {
		return false
	}
	if q.TargetURI != "" && r.TargetURI != q.TargetURI {
		return false
	}
	return true
}

func sortBySeverity(rs []sitehealth.AuditRecord) {
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].Severity.Rank() < rs[j].Severity.Rank() })
}

// Current returns the records sharing the latest timestamp for q.
func (s *AuditStore) Current(_ context.Context, q sitehealth.AuditQuery) ([]sitehealth.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest time.Time
	for _, r := range s.records {
		if matches(r, q) && r.RecordedAt.After(latest) {
			latest = r.RecordedAt
		}
	}
	if latest.IsZero() {
		return nil, nil
	}

	var out []sitehealth.AuditRecord
	for _, r := range s.records {
		if matches(r, q) && r.RecordedAt.Equal(latest) {
			out = append(out, r)
		}
	}
	sortBySeverity(out)
	return out, nil
}

// History returns every record for q, newest first then by severity.
func (s *AuditStore) History(_ context.Context, q sitehealth.AuditQuery) ([]sitehealth.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []sitehealth.AuditRecord
	for _, r := range s.records {
		if matches(r, q) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].RecordedAt.Equal(out[j].RecordedAt) {
			return out[i].RecordedAt.After(out[j].RecordedAt)
		}
		return out[i].Severity.Rank() < out[j].Severity.Rank()
	})
	return out, nil
}

type pairKey struct {
	category sitehealth.Category
	profile  sitehealth.Profile
}

// CategoryScores summarises the latest records per category and profile,
// ordered by category then profile.
func (s *AuditStore) CategoryScores(_ context.Context) ([]sitehealth.CategoryScoreSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[pairKey]time.Time)
	for _, r := range s.records {
		k := pairKey{r.Category, r.Profile}
		if r.RecordedAt.After(latest[k]) {
			latest[k] = r.RecordedAt
		}
	}

	current := make(map[pairKey][]sitehealth.AuditRecord)
	for _, r := range s.records {
		k := pairKey{r.Category, r.Profile}
		if r.RecordedAt.Equal(latest[k]) {
			current[k] = append(current[k], r)
		}
	}

	keys := make([]pairKey, 0, len(current))
	for k := range current {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].category != keys[j].category {
			return keys[i].category < keys[j].category
		}
		return keys[i].profile < keys[j].profile
	})

	out := make([]sitehealth.CategoryScoreSnapshot, 0, len(keys))
	for _, k := range keys {
		out = append(out, sitehealth.SummarizeCurrent(k.category, k.profile, current[k]))
	}
	return out, nil
}

// LatestScanDate returns the newest timestamp for q.
func (s *AuditStore) LatestScanDate(_ context.Context, q sitehealth.AuditQuery) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *time.Time
	for _, r := range s.records {
		if !matches(r, q) {
			continue
		}
		if latest == nil || r.RecordedAt.After(*latest) {
			t := r.RecordedAt
			latest = &t
		}
	}
	return latest, nil
}

// Statistics summarises the log.
func (s *AuditStore) Statistics(_ context.Context) (sitehealth.ScanStatistics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := sitehealth.ScanStatistics{TotalAudits: len(s.records)}
	targets := make(map[string]struct{})
	for _, r := range s.records {
		targets[r.TargetID] = struct{}{}
		t := r.RecordedAt
		if stats.FirstScanDate == nil || t.Before(*stats.FirstScanDate) {
			stats.FirstScanDate = &t
		}
		if stats.LastScanDate == nil || t.After(*stats.LastScanDate) {
			stats.LastScanDate = &t
		}
	}
	stats.TargetsScanned = len(targets)
	return stats, nil
}

// TrimOlderThan removes records recorded before cutoff.
func (s *AuditStore) TrimOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	var removed int64
	for _, r := range s.records {
		if r.RecordedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	s.records = kept
	return removed, nil
}

// Version implements sitehealth.VersionReporter.
func (s *AuditStore) Version(context.Context) (string, error) { return "memory", nil }

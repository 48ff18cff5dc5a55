package sitehealth

import "time"

// AuditRecord is one stored, classified finding for a target, profile and
// category. Records are immutable once appended.
type AuditRecord struct {
	TargetID        string    `json:"target_id"`
	TargetURI       string    `json:"target_uri"`
	Profile         Profile   `json:"profile"`
	Category        Category  `json:"category"`
	Name            string    `json:"name"`
	Score           *float64  `json:"score"`
	Description     string    `json:"description"`
	AffectedElement string    `json:"affected_element"`
	Severity        Severity  `json:"severity"`
	RecordedAt      time.Time `json:"recorded_at"`
}

// CategoryScoreName is the record name of the synthetic per-category aggregate.
const CategoryScoreName = "Category Score"

// IsCategoryScore reports whether r is the synthetic aggregate record.
func (r AuditRecord) IsCategoryScore() bool { return r.Name == CategoryScoreName }

// CategoryScoreSnapshot summarises the current records of one category and profile.
type CategoryScoreSnapshot struct {
	Category      Category `json:"category"`
	Profile       Profile  `json:"profile"`
	AverageScore  *float64 `json:"avg_score"`
	TotalAudits   int      `json:"total_audits"`
	CriticalCount int      `json:"critical_count"`
	WarningCount  int      `json:"warning_count"`
	InfoCount     int      `json:"info_count"`
	GoodCount     int      `json:"good_count"`
}

// SummarizeCurrent builds the snapshot for a set of records that share a
// category and profile.
func SummarizeCurrent(category Category, profile Profile, records []AuditRecord) CategoryScoreSnapshot {
	snap := CategoryScoreSnapshot{Category: category, Profile: profile, TotalAudits: len(records)}

	var sum float64
	var scored int
	for _, r := range records {
		switch r.Severity {
		case SeverityCritical:
			snap.CriticalCount++
		case SeverityWarning:
			snap.WarningCount++
		case SeverityInfo:
			snap.InfoCount++
		case SeverityGood:
			snap.GoodCount++
		}
		if r.Score != nil {
			sum += *r.Score
			scored++
		}
	}
	if scored > 0 {
		avg := sum / float64(scored)
		snap.AverageScore = &avg
	}
	return snap
}

// AuditQuery selects records for the read path.
type AuditQuery struct {
	Category  Category
	Profile   Profile // empty matches every profile
	TargetURI string  // empty matches every target
}

// AuditData is the audit listing for one category and profile.
type AuditData struct {
	AverageScore *float64      `json:"avg_score"`
	Audits       []AuditRecord `json:"audits"`
	ScanDate     *time.Time    `json:"scan_date"`
}

// ScanStatistics summarises the whole audit log.
type ScanStatistics struct {
	TargetsScanned int        `json:"total_pages_scanned"`
	TotalAudits    int        `json:"total_audits"`
	FirstScanDate  *time.Time `json:"first_scan_date"`
	LastScanDate   *time.Time `json:"last_scan_date"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

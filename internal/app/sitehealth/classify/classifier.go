package classify

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/sachin5713/unified-site-health-dashboard/internal/domain/sitehealth"
)

// Result is the classified output of one probe.
type Result struct {
	// Records are the individual audit findings in identifier order.
	Records []sitehealth.AuditRecord
	// Aggregates are the synthetic Category Score records, one per
	// recognised top-level category, in table order.
	Aggregates []sitehealth.AuditRecord
}

// Classifier applies a Table to probe results.
type Classifier struct {
	table *Table
}

// NewClassifier creates a Classifier over table.
func NewClassifier(table *Table) *Classifier {
	return &Classifier{table: table}
}

// Table returns the lookup table in use.
func (c *Classifier) Table() *Table { return c.table }

// Classify maps a raw probe result to audit records stamped with at.
func (c *Classifier) Classify(raw *sitehealth.ProbeResult, target sitehealth.Target, profile sitehealth.Profile, at time.Time) Result {
	var res Result
	if raw == nil {
		return res
	}

	audits := append([]sitehealth.RawAudit(nil), raw.Audits...)
	sort.SliceStable(audits, func(i, j int) bool { return audits[i].ID < audits[j].ID })

	for _, a := range audits {
		if !keep(a) {
			continue
		}
		res.Records = append(res.Records, sitehealth.AuditRecord{
			TargetID:        target.ID,
			TargetURI:       target.URL,
			Profile:         profile,
			Category:        c.table.CategoryFor(a.ID),
			Name:            a.Title,
			Score:           a.Score,
			Description:     a.Description,
			AffectedElement: affectedElement(a),
			Severity:        c.table.thresholds.SeverityFor(a.Score),
			RecordedAt:      at,
		})
	}

	cats := append([]sitehealth.RawCategory(nil), raw.Categories...)
	sort.SliceStable(cats, func(i, j int) bool {
		return c.table.aggregateRank(cats[i].Key) < c.table.aggregateRank(cats[j].Key)
	})

	for _, rc := range cats {
		category, ok := c.table.AggregateCategory(rc.Key)
		if !ok {
			continue
		}
		desc := rc.Title
		if desc == "" {
			desc = fmt.Sprintf("%s score", category)
		}
		res.Aggregates = append(res.Aggregates, sitehealth.AuditRecord{
			TargetID:    target.ID,
			TargetURI:   target.URL,
			Profile:     profile,
			Category:    category,
			Name:        sitehealth.CategoryScoreName,
			Score:       rc.Score,
			Description: desc,
			Severity:    c.table.thresholds.SeverityFor(rc.Score),
			RecordedAt:  at,
		})
	}

	return res
}

// keep drops audits without a title and those carrying no score,
// description or supporting items.
func keep(a sitehealth.RawAudit) bool {
	if a.Title == "" {
		return false
	}
	return a.Score != nil || a.Description != "" || len(a.Items) > 0
}

func affectedElement(a sitehealth.RawAudit) string {
	if len(a.Items) > 0 {
		first := a.Items[0]
		if first.URL != "" {
			return first.URL
		}
		if first.Selector != "" {
			return first.Selector
		}
	}
	if a.OverallSavingsMs != nil {
		return "Overall savings: " + strconv.FormatFloat(*a.OverallSavingsMs, 'f', -1, 64) + "ms"
	}
	return ""
}

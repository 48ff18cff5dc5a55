package sitehealth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSeverityFor(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		name  string
		score *float64
		want  Severity
	}{
		{"absent", nil, SeverityInfo},
		{"perfect", Float(1), SeverityGood},
		{"good boundary", Float(0.9), SeverityGood},
		{"just under good", Float(0.89), SeverityWarning},
		{"warning boundary", Float(0.5), SeverityWarning},
		{"just under warning", Float(0.49), SeverityCritical},
		{"zero", Float(0), SeverityCritical},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, th.SeverityFor(tt.score))
		})
	}
}

func TestSeverityRankOrdersMostUrgentFirst(t *testing.T) {
	assert.Less(t, SeverityCritical.Rank(), SeverityWarning.Rank())
	assert.Less(t, SeverityWarning.Rank(), SeverityInfo.Rank())
	assert.Less(t, SeverityInfo.Rank(), SeverityGood.Rank())
}

func TestSummarizeCurrent(t *testing.T) {
	snap := SummarizeCurrent(CategorySEO, ProfileMobile, []AuditRecord{
		{Score: Float(1), Severity: SeverityGood},
		{Score: Float(0.5), Severity: SeverityWarning},
		{Score: nil, Severity: SeverityInfo},
	})

	assert.Equal(t, 3, snap.TotalAudits)
	assert.Equal(t, 1, snap.GoodCount)
	assert.Equal(t, 1, snap.WarningCount)
	assert.Equal(t, 1, snap.InfoCount)
	if assert.NotNil(t, snap.AverageScore) {
		assert.InDelta(t, 0.75, *snap.AverageScore, 1e-9)
	}

	empty := SummarizeCurrent(CategorySEO, ProfileMobile, nil)
	assert.Nil(t, empty.AverageScore)
}

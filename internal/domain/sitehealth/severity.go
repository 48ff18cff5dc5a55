package sitehealth

import "fmt"

// Severity classifies how urgent an audit finding is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
	SeverityGood     Severity = "good"
)

// String returns the wire name of the severity.
func (s Severity) String() string { return string(s) }

// Rank orders severities from most to least urgent. Lower is more urgent.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityWarning:
		return 1
	case SeverityInfo:
		return 2
	case SeverityGood:
		return 3
	default:
		return 4
	}
}

// ParseSeverity converts a wire name into a Severity.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(s) {
	case SeverityCritical, SeverityWarning, SeverityInfo, SeverityGood:
		return Severity(s), nil
	default:
		return "", fmt.Errorf("unknown severity %q", s)
	}
}

// Thresholds are the score cut-offs used to derive a severity.
type Thresholds struct {
	Good    float64 `yaml:"good"`
	Warning float64 `yaml:"warning"`
}

// DefaultThresholds returns good at 0.9 and warning at 0.5.
func DefaultThresholds() Thresholds { return Thresholds{Good: 0.9, Warning: 0.5} }

// SeverityFor maps a score to a severity. A nil score is info.
func (t Thresholds) SeverityFor(score *float64) Severity {
	if score == nil {
		return SeverityInfo
	}
	switch v := *score; {
	case v >= t.Good:
		return SeverityGood
	case v >= t.Warning:
		return SeverityWarning
	default:
		return SeverityCritical
	}
}

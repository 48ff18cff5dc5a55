package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/sachin5713/unified-site-health-dashboard/internal/client/poller"
	domain "github.com/sachin5713/unified-site-health-dashboard/internal/domain/sitehealth"
)

// terminalRenderer prints poller output as plain lines.
type terminalRenderer struct {
	w        io.Writer
	onReload func()
}

var _ poller.Renderer = (*terminalRenderer)(nil)

func (r *terminalRenderer) RenderProgress(v poller.View) {
	cyan := color.New(color.FgCyan).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	fmt.Fprintf(r.w, "%s %3d%% %s\n", progressBar(v.Percentage, 20), v.Percentage, cyan(v.StatusLine))
	if v.CurrentURL != "" && !v.Done {
		fmt.Fprintf(r.w, "     %s\n", gray(v.CurrentURL))
	}
	if len(v.Categories) > 0 {
		parts := make([]string, 0, len(v.Categories))
		for _, c := range v.Categories {
			parts = append(parts, fmt.Sprintf("%s=%s", c.Category, stateColor(c.State)(string(c.State))))
		}
		fmt.Fprintf(r.w, "     %s\n", strings.Join(parts, " "))
	}
	if v.Status == domain.RunStatusCompleted {
		fmt.Fprintf(r.w, "%s\n", color.GreenString("Scan Completed"))
	}
}

func (r *terminalRenderer) RenderScores([]domain.CategoryScoreSnapshot) {}

func (r *terminalRenderer) RenderErrors(errs []domain.RunError) {
	red := color.New(color.FgRed).SprintFunc()
	for _, e := range errs {
		fmt.Fprintf(r.w, "  %s %s: %s\n", red("✗"), e.TargetLabel, e.Message)
	}
}

func (r *terminalRenderer) Reload() {
	if r.onReload != nil {
		r.onReload()
	}
}

func stateColor(s domain.CategoryState) func(a ...any) string {
	switch s {
	case domain.CategoryCompleted:
		return color.New(color.FgGreen).SprintFunc()
	case domain.CategoryRunning:
		return color.New(color.FgYellow).SprintFunc()
	case domain.CategoryFailed:
		return color.New(color.FgRed).SprintFunc()
	default:
		return color.New(color.FgHiBlack).SprintFunc()
	}
}

func progressBar(pct, width int) string {
	filled := pct * width / 100
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}

func formatScore(s *float64) string {
	if s == nil {
		return "-"
	}
	return fmt.Sprintf("%.0f%%", *s*100)
}

func printScores(w io.Writer, scores []domain.CategoryScoreSnapshot) {
	sorted := append([]domain.CategoryScoreSnapshot(nil), scores...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Category != sorted[j].Category {
			return sorted[i].Category < sorted[j].Category
		}
		return sorted[i].Profile < sorted[j].Profile
	})

	yellow := color.New(color.FgYellow).SprintFunc()
	fmt.Fprintf(w, "%s\n", yellow("Category Scores:"))
	if len(sorted) == 0 {
		fmt.Fprintf(w, "  %s\n", color.New(color.FgHiBlack).Sprint("No scores yet"))
		return
	}
	for _, s := range sorted {
		fmt.Fprintf(w, "  %-14s %-8s %5s  audits=%d critical=%d warning=%d info=%d good=%d\n",
			s.Category, s.Profile, formatScore(s.AverageScore),
			s.TotalAudits, s.CriticalCount, s.WarningCount, s.InfoCount, s.GoodCount)
	}
}

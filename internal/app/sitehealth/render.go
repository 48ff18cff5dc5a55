package sitehealth

import (
	"bytes"
	"fmt"
	"html/template"
	"strconv"

	domain "github.com/sachin5713/unified-site-health-dashboard/internal/domain/sitehealth"
)

var issuesTmpl = template.Must(template.New("issues").Funcs(template.FuncMap{
	"score": formatScore,
}).Parse(`{{- if not .Records -}}
<p class="ush-no-issues">No issues found for {{ .Category }}.</p>
{{- else -}}
<table class="ush-issues" data-category="{{ .Category }}">
<thead><tr><th>Check</th><th>Profile</th><th>Score</th><th>Severity</th><th>Element</th></tr></thead>
<tbody>
{{- range .Records }}
<tr class="ush-severity-{{ .Severity }}">
<td title="{{ .Description }}">{{ .Name }}</td>
<td>{{ .Profile }}</td>
<td>{{ score .Score }}</td>
<td>{{ .Severity }}</td>
<td>{{ .AffectedElement }}</td>
</tr>
{{- end }}
</tbody>
</table>
{{- end }}`))

func formatScore(s *float64) string {
	if s == nil {
		return "N/A"
	}
	return strconv.Itoa(int(*s*100+0.5)) + "%"
}

// renderIssues renders records as an HTML table fragment.
func renderIssues(category string, records []domain.AuditRecord) (string, error) {
	var buf bytes.Buffer
	if err := issuesTmpl.Execute(&buf, struct {
		Category string
		Records  []domain.AuditRecord
	}{category, records}); err != nil {
		return "", fmt.Errorf("render issues: %w", err)
	}
	return buf.String(), nil
}

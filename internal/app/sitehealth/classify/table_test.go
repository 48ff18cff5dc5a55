package classify

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sachin5713/unified-site-health-dashboard/internal/domain/sitehealth"
)

func TestDefaultTableLookups(t *testing.T) {
	table, err := DefaultTable()
	require.NoError(t, err)

	tests := []struct {
		id   string
		want sitehealth.Category
	}{
		{"largest-contentful-paint", sitehealth.CategoryPerformance},
		{"meta-description", sitehealth.CategorySEO},
		{"image-alt", sitehealth.CategorySEO},
		{"color-contrast", sitehealth.CategoryAccessibility},
		{"aria-allowed-attr", sitehealth.CategoryAccessibility},
		{"aria-command-name", sitehealth.CategoryContent},
		{"is-on-https", sitehealth.CategorySecurity},
		{"bf-cache", sitehealth.CategoryContent},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			assert.Equal(t, tt.want, table.CategoryFor(tt.id))
		})
	}

	assert.Equal(t, 1, table.Version())
	assert.Equal(t, sitehealth.DefaultScanOrder(), table.ScanOrder())
	assert.Equal(t, sitehealth.DefaultThresholds(), table.Thresholds())

	c, ok := table.AggregateCategory("best-practices")
	assert.True(t, ok)
	assert.Equal(t, sitehealth.CategorySecurity, c)
	_, ok = table.AggregateCategory("pwa")
	assert.False(t, ok)
}

func TestParseTableValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing version", "default: Content\n"},
		{"missing default", "version: 1\n"},
		{"bad pattern", "version: 1\ndefault: Content\ncategories:\n  - name: X\n    patterns: ['(']\n"},
		{"unnamed category", "version: 1\ndefault: Content\ncategories:\n  - ids: [a]\n"},
		{"inverted thresholds", "version: 1\ndefault: Content\nthresholds:\n  good: 0.4\n  warning: 0.8\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTable([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadTableFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "table.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
version: 2
default: Misc
scan_order: [Speed]
categories:
  - name: Speed
    patterns: ['-paint$']
`), 0o600))

	table, err := LoadTable(path)
	require.NoError(t, err)

	assert.Equal(t, 2, table.Version())
	assert.Equal(t, sitehealth.Category("Speed"), table.CategoryFor("first-contentful-paint"))
	assert.Equal(t, sitehealth.Category("Misc"), table.CategoryFor("viewport"))
	assert.Equal(t, []sitehealth.Category{"Speed"}, table.ScanOrder())

	_, err = LoadTable(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

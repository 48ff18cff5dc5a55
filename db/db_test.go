package db

import (
	"encoding/json"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sachin5713/unified-site-health-dashboard/internal/domain/sitehealth"
)

var jsonbDefault = regexp.MustCompile(`(?m)^\s*(\w+)\s+JSONB NOT NULL DEFAULT '([^']*)'`)

// The seeded scan_run row must decode before any run has been written.
func TestScanRunDefaultsDecode(t *testing.T) {
	up, err := Migrations.ReadFile(MigrationsPath + "/000001_sitehealth.up.sql")
	require.NoError(t, err)

	defaults := map[string]string{}
	for _, m := range jsonbDefault.FindAllStringSubmatch(string(up), -1) {
		defaults[m[1]] = m[2]
	}
	require.Contains(t, defaults, "targets")
	require.Contains(t, defaults, "category_state")
	require.Contains(t, defaults, "errors")

	var snap sitehealth.RunSnapshot
	require.NoError(t, json.Unmarshal([]byte(defaults["targets"]), &snap.Targets))
	require.NoError(t, json.Unmarshal([]byte(defaults["category_state"]), &snap.CategoryState))
	require.NoError(t, json.Unmarshal([]byte(defaults["errors"]), &snap.Errors))

	run := sitehealth.ReconstructScanRun(snap)
	assert.Empty(t, run.Snapshot().CategoryState)
}

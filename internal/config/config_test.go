package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/sachin5713/unified-site-health-dashboard/internal/domain/sitehealth"
)

func TestLoadFile_Defaults(t *testing.T) {
	cfg, err := LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, 2, cfg.Scan.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.Scan.ContinuationDelay)
	assert.Equal(t, 10*time.Minute, cfg.Scan.StaleAfter)
	assert.Equal(t, 30, cfg.Scan.RetentionDays)
	assert.Equal(t, "daily", cfg.Scan.ScanInterval)
	assert.Equal(t, 60*time.Second, cfg.PageSpeed.Timeout)
	assert.False(t, cfg.Kafka.Enabled)
	assert.True(t, cfg.Worker.Enabled)
	assert.Empty(t, cfg.Scan.Targets)
}

func TestLoadFile_YAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sitehealth.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage:
  driver: memory
scan:
  batch_size: 3
  continuation_delay: 2s
  targets:
    - title: Home
      url: https://example.com/
    - id: about
      title: About
      url: https://example.com/about
`), 0o600))

	t.Setenv("SITEHEALTH_PAGESPEED_API_KEY", "secret-key")
	t.Setenv("SITEHEALTH_SCAN_BATCH_SIZE", "4")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, 4, cfg.Scan.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.Scan.ContinuationDelay)
	assert.Equal(t, "secret-key", cfg.PageSpeed.APIKey)

	assert.Equal(t, []domain.Target{
		{ID: "1", Title: "Home", URL: "https://example.com/"},
		{ID: "about", Title: "About", URL: "https://example.com/about"},
	}, cfg.Scan.DomainTargets())
}

func TestLoadFile_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "unknown driver", yaml: "storage:\n  driver: sqlite\n"},
		{name: "zero batch", yaml: "scan:\n  batch_size: 0\n"},
		{name: "target without url", yaml: "scan:\n  targets:\n    - title: Home\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "c.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o600))

			_, err := LoadFile(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadFile_MissingFile(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

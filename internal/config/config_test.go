package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/aristath/custodian/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dataDir := t.TempDir()
	t.Setenv("CUSTODIAN_DATA_DIR", dataDir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dataDir, cfg.DataDir)
	assert.Equal(t, filepath.Join(dataDir, "input"), cfg.InputDir)
	assert.Equal(t, filepath.Join(dataDir, "output"), cfg.OutputDir)
	assert.DirExists(t, cfg.OutputDir)
	assert.Equal(t, filepath.Join(dataDir, "Mappings.xlsx"), cfg.MappingsFile)
	assert.Equal(t, "USD", cfg.BaseCurrency)
	assert.Equal(t, 8001, cfg.Port)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 15*time.Second, cfg.Lookup.Timeout)
	assert.False(t, cfg.S3.Enabled())
	assert.Equal(t, 30, cfg.S3.RetentionDays)
	assert.Equal(t, "0 0 2 * * *", cfg.MaintenanceSchedule)
	assert.Empty(t, cfg.StrictCombineBanks)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("CUSTODIAN_DATA_DIR", t.TempDir())
	t.Setenv("CUSTODIAN_PORT", "9100")
	t.Setenv("CUSTODIAN_WORKERS", "2")
	t.Setenv("CUSTODIAN_BASE_CURRENCY", "clp")
	t.Setenv("CUSTODIAN_STRICT_COMBINE_BANKS", "jb, Pershing")
	t.Setenv("CUSTODIAN_LOOKUP_CACHE_TTL", "2h")
	t.Setenv("CUSTODIAN_ENRICH_WARN_THRESHOLD", "0.1")
	t.Setenv("CUSTODIAN_S3_BUCKET", "backups")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, "CLP", cfg.BaseCurrency)
	assert.Equal(t, []domain.BankCode{domain.BankJB, domain.BankPershing}, cfg.StrictCombineBanks)
	assert.Equal(t, 2*time.Hour, cfg.Lookup.CacheTTL)
	assert.Equal(t, 0.1, cfg.EnrichWarnThreshold)
	assert.True(t, cfg.S3.Enabled())
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unknown strict bank", "CUSTODIAN_STRICT_COMBINE_BANKS", "JPM,NOPE"},
		{"port out of range", "CUSTODIAN_PORT", "70000"},
		{"fail below warn", "CUSTODIAN_ENRICH_FAIL_THRESHOLD", "0.01"},
		{"zero workers", "CUSTODIAN_WORKERS", "0"},
		{"negative retention", "CUSTODIAN_S3_RETENTION_DAYS", "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("CUSTODIAN_DATA_DIR", t.TempDir())
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_IgnoresUnparseableNumbers(t *testing.T) {
	t.Setenv("CUSTODIAN_DATA_DIR", t.TempDir())
	t.Setenv("CUSTODIAN_LOOKUP_MAX_RETRIES", "many")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Lookup.MaxRetries)
}

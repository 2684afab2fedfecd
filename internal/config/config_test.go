package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_MatchesDocumentedBaseline(t *testing.T) {
	cfg := Default()
	assert.Equal(t, int64(42), cfg.KMeansSeed)
	assert.Equal(t, 7, cfg.SilenceWindowDays)
	assert.Equal(t, 5, cfg.DefaultTopN)
	assert.Equal(t, []float64{0.2, 0.4, 0.6, 0.8}, cfg.QuantileThresholds)
	assert.Equal(t, [2]float64{0.33, 0.66}, cfg.BudgetBandQuantiles)
	assert.True(t, cfg.MarketingDryRun)
}

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("default_top_n: 10\nsilence_window_days: 30\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.DefaultTopN)
	assert.Equal(t, 30, cfg.SilenceWindowDays)
	assert.Equal(t, int64(42), cfg.KMeansSeed, "fields absent from the file keep their default")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("default_top_n: 10\n"), 0o600))

	t.Setenv("VCRM_DEFAULT_TOP_N", "99")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 99, cfg.DefaultTopN, "environment variables take precedence over the file")
}

func TestLoad_MalformedEnvValueIsIgnored(t *testing.T) {
	t.Setenv("VCRM_KMEANS_SEED", "not-a-number")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, int64(42), cfg.KMeansSeed, "an unparseable override is silently ignored, not an error")
}

func TestLoad_BooleanEnvOverride(t *testing.T) {
	t.Setenv("VCRM_MARKETING_DRY_RUN", "false")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.False(t, cfg.MarketingDryRun)
}

package scoring

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iaros/vintage-crm-core/internal/scenario"
)

func TestDefault_MatchesDocumentedDefaults(t *testing.T) {
	cfg := Default()
	assert.Equal(t, scenario.DefaultWeights[scenario.Winback], cfg.ScenarioWeights[scenario.Winback])
	assert.Equal(t, DefaultRecoWeights[scenario.Upsell], cfg.RecoWeights[scenario.Upsell])
}

func TestDefault_ReturnsIndependentMapsAcrossCalls(t *testing.T) {
	a := Default()
	a.ScenarioWeights[scenario.Winback] = scenario.WeightRow{Recency: 999}
	b := Default()
	assert.NotEqual(t, a.ScenarioWeights[scenario.Winback], b.ScenarioWeights[scenario.Winback],
		"mutating one resolved Config must never corrupt another caller's defaults")
	assert.Equal(t, scenario.DefaultWeights[scenario.Winback], b.ScenarioWeights[scenario.Winback])
}

func TestLoadTenantOverride_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadTenantOverride(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadTenantOverride_OverridesOnlyNamedScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "override.yaml")
	yamlDoc := `
scenario_weights:
  upsell:
    recency: -5
    monetary: 5
    coverage: 0
    families: 0
    aroma_conf: 3
reco_weights:
  upsell:
    popularity: 0.1
    price: 0.6
    family: 0.2
    rfm: 0.1
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))

	cfg, err := LoadTenantOverride(path)
	require.NoError(t, err)

	assert.Equal(t, scenario.WeightRow{Recency: -5, Monetary: 5, Coverage: 0, Families: 0, AromaConf: 3}, cfg.ScenarioWeights[scenario.Upsell])
	assert.Equal(t, RecoWeights{Popularity: 0.1, Price: 0.6, Family: 0.2, RFM: 0.1}, cfg.RecoWeights[scenario.Upsell])
	assert.Equal(t, scenario.DefaultWeights[scenario.Winback], cfg.ScenarioWeights[scenario.Winback], "untouched scenarios keep their default row")
}

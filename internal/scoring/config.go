// Package scoring centralizes the two weight matrices used elsewhere:
// scenario selection weights and candidate composite-scoring weights.
// Both load from one YAML document with per-tenant override.
package scoring

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/iaros/vintage-crm-core/internal/scenario"
)

// RecoWeights are the composite-scoring weights for one scenario; the
// four terms must sum to 1.
type RecoWeights struct {
	Popularity float64 `yaml:"popularity"`
	Price      float64 `yaml:"price"`
	Family     float64 `yaml:"family"`
	RFM        float64 `yaml:"rfm"`
}

// DefaultRecoWeights is the default scoring weight matrix.
var DefaultRecoWeights = map[scenario.Scenario]RecoWeights{
	scenario.Winback:   {Popularity: 0.30, Price: 0.30, Family: 0.20, RFM: 0.20},
	scenario.Rebuy:     {Popularity: 0.30, Price: 0.20, Family: 0.40, RFM: 0.10},
	scenario.CrossSell: {Popularity: 0.30, Price: 0.30, Family: 0.20, RFM: 0.20},
	scenario.Upsell:    {Popularity: 0.20, Price: 0.40, Family: 0.30, RFM: 0.10},
	scenario.Nurture:   {Popularity: 0.30, Price: 0.30, Family: 0.20, RFM: 0.20},
}

// fileShape mirrors the on-disk YAML layout for a tenant override file.
type fileShape struct {
	ScenarioWeights map[string]scenario.WeightRow `yaml:"scenario_weights"`
	RecoWeights     map[string]RecoWeights        `yaml:"reco_weights"`
}

// Config is the resolved weight set for one tenant.
type Config struct {
	ScenarioWeights map[scenario.Scenario]scenario.WeightRow
	RecoWeights     map[scenario.Scenario]RecoWeights
}

// Default returns the documented defaults. The returned maps
// are independent copies so callers (including LoadTenantOverride) can
// mutate them without corrupting the package-level defaults.
func Default() Config {
	scenarioWeights := make(map[scenario.Scenario]scenario.WeightRow, len(scenario.DefaultWeights))
	for k, v := range scenario.DefaultWeights {
		scenarioWeights[k] = v
	}
	recoWeights := make(map[scenario.Scenario]RecoWeights, len(DefaultRecoWeights))
	for k, v := range DefaultRecoWeights {
		recoWeights[k] = v
	}
	return Config{ScenarioWeights: scenarioWeights, RecoWeights: recoWeights}
}

// LoadTenantOverride layers a per-tenant YAML override file (if path is
// non-empty and exists) on top of Default(). Only the scenarios present
// in the file are overridden; everything else keeps its default row.
func LoadTenantOverride(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}

	var parsed fileShape
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return cfg, err
	}

	for name, row := range parsed.ScenarioWeights {
		cfg.ScenarioWeights[scenario.Scenario(name)] = row
	}
	for name, row := range parsed.RecoWeights {
		cfg.RecoWeights[scenario.Scenario(name)] = row
	}
	return cfg, nil
}

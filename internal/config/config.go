// Package config loads pipeline configuration as a YAML file with
// environment-variable overrides layered on top, never a package-level
// global.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every environment input the pipeline needs: data directory root,
// K-means seed, silence window, default top_n, and quantile overrides.
type Config struct {
	DatabaseURL         string        `yaml:"database_url"`
	RedisAddr           string        `yaml:"redis_addr"`
	DataDir             string        `yaml:"data_dir"`
	KMeansSeed          int64         `yaml:"kmeans_seed"`
	SilenceWindowDays   int           `yaml:"silence_window_days"`
	DefaultTopN         int           `yaml:"default_top_n"`
	QuantileThresholds  []float64     `yaml:"quantile_thresholds"`
	BudgetBandQuantiles [2]float64    `yaml:"budget_band_quantiles"`
	MarketingDryRun     bool          `yaml:"marketing_dry_run"`
	RunTimeout          time.Duration `yaml:"run_timeout"`
}

// Default returns the baseline configuration before file/env overrides.
func Default() Config {
	return Config{
		DatabaseURL:         "postgres://localhost:5432/vintage_crm?sslmode=disable",
		RedisAddr:           "localhost:6379",
		DataDir:             "./data",
		KMeansSeed:          42,
		SilenceWindowDays:   7,
		DefaultTopN:         5,
		QuantileThresholds:  []float64{0.2, 0.4, 0.6, 0.8},
		BudgetBandQuantiles: [2]float64{0.33, 0.66},
		MarketingDryRun:     true,
		RunTimeout:          30 * time.Minute,
	}
}

// Load reads path (if it exists) as YAML over the defaults, then applies
// environment variable overrides: file first, then env.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, err
			}
		} else if !os.IsNotExist(err) {
			return cfg, err
		}
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("VCRM_DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("VCRM_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("VCRM_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("VCRM_KMEANS_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.KMeansSeed = n
		}
	}
	if v := os.Getenv("VCRM_SILENCE_WINDOW_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SilenceWindowDays = n
		}
	}
	if v := os.Getenv("VCRM_DEFAULT_TOP_N"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DefaultTopN = n
		}
	}
	if v := os.Getenv("VCRM_MARKETING_DRY_RUN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.MarketingDryRun = b
		}
	}
}

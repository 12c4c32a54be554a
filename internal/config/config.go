// Package config defines the run configuration. A Config is loaded once,
// validated, and passed by value into every pipeline entry point; there is
// no mutable global state.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the full run configuration.
type Config struct {
	Prep      PrepConfig     `yaml:"prep"`
	Model     ModelConfig    `yaml:"model"`
	Forecast  ForecastConfig `yaml:"forecast"`
	CrossVal  CrossValConfig `yaml:"crossval"`
	Scenarios ScenarioConfig `yaml:"scenarios"`
	LogLevel  string         `yaml:"log_level"`
}

// PrepConfig controls panel preparation.
type PrepConfig struct {
	MinRegionalObs   int     `yaml:"min_regional_obs"`  // minimum months per region
	MinAreaObs       int     `yaml:"min_area_obs"`      // minimum months per area
	TopAreas         int     `yaml:"top_areas"`         // areas retained by volume
	MaxGapMonths     int     `yaml:"max_gap_months"`    // interpolation bound
	AppreciationLow  float64 `yaml:"appreciation_low"`  // clip lower bound, percent
	AppreciationHigh float64 `yaml:"appreciation_high"` // clip upper bound, percent
}

// ModelConfig controls order selection and fitting.
type ModelConfig struct {
	MaxLag          int     `yaml:"max_lag"`          // VAR lag search bound
	MaxP            int     `yaml:"max_p"`            // ARIMAX AR search bound
	ADFSignificance float64 `yaml:"adf_significance"` // stationarity rejection level
	HoldoutMonths   int     `yaml:"holdout_months"`   // trailing months withheld for evaluation
}

// ForecastConfig controls the scenario engine.
type ForecastConfig struct {
	RegionHorizon int `yaml:"region_horizon"` // months, default 36
	AreaHorizon   int `yaml:"area_horizon"`   // months, capped at 24
	Workers       int `yaml:"workers"`        // 0 = NumCPU
}

// CrossValConfig controls expanding-window validation.
type CrossValConfig struct {
	Folds           int      `yaml:"folds"`
	StepMonths      int      `yaml:"step_months"`
	ForecastHorizon int      `yaml:"forecast_horizon"`
	MinTrainMonths  int      `yaml:"min_train_months"`
	Areas           []string `yaml:"areas"` // area subset to validate; empty = every prepared area
}

// ScenarioConfig holds the fixed input adjustments per scenario.
type ScenarioConfig struct {
	RateDelta        float64 `yaml:"rate_delta"`         // percentage points, bullish -, bearish +
	PolicyShockDelta float64 `yaml:"policy_shock_delta"` // additive appreciation shift
}

// Default returns the configuration used when no file overrides it.
func Default() Config {
	return Config{
		Prep: PrepConfig{
			MinRegionalObs:   30,
			MinAreaObs:       24,
			TopAreas:         20,
			MaxGapMonths:     2,
			AppreciationLow:  -50,
			AppreciationHigh: 50,
		},
		Model: ModelConfig{
			MaxLag:          6,
			MaxP:            6,
			ADFSignificance: 0.05,
			HoldoutMonths:   6,
		},
		Forecast: ForecastConfig{
			RegionHorizon: 36,
			AreaHorizon:   24,
			Workers:       0,
		},
		CrossVal: CrossValConfig{
			Folds:           5,
			StepMonths:      3,
			ForecastHorizon: 6,
			MinTrainMonths:  30,
		},
		Scenarios: ScenarioConfig{
			RateDelta:        1.0,
			PolicyShockDelta: -2.0,
		},
		LogLevel: "info",
	}
}

// Load reads a yaml file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects configurations the numerical core cannot honor.
func (c Config) Validate() error {
	if c.Prep.MinRegionalObs < 1 || c.Prep.MinAreaObs < 1 {
		return fmt.Errorf("minimum history thresholds must be positive")
	}
	if c.Prep.MaxGapMonths < 0 {
		return fmt.Errorf("max_gap_months must be >= 0")
	}
	if c.Prep.AppreciationLow >= c.Prep.AppreciationHigh {
		return fmt.Errorf("appreciation clip bounds inverted: [%v, %v]",
			c.Prep.AppreciationLow, c.Prep.AppreciationHigh)
	}
	if c.Model.MaxLag < 1 || c.Model.MaxP < 1 {
		return fmt.Errorf("max_lag and max_p must be >= 1")
	}
	if c.Model.ADFSignificance <= 0 || c.Model.ADFSignificance >= 1 {
		return fmt.Errorf("adf_significance must be in (0, 1)")
	}
	if c.Forecast.RegionHorizon < 1 {
		return fmt.Errorf("region_horizon must be >= 1")
	}
	if c.Forecast.AreaHorizon < 1 || c.Forecast.AreaHorizon > 24 {
		return fmt.Errorf("area_horizon must be in [1, 24], got %d", c.Forecast.AreaHorizon)
	}
	if c.CrossVal.Folds < 1 || c.CrossVal.StepMonths < 1 || c.CrossVal.ForecastHorizon < 1 {
		return fmt.Errorf("crossval folds, step_months and forecast_horizon must be >= 1")
	}
	return nil
}

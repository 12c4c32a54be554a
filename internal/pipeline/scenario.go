// Package pipeline orchestrates the two model stages under named macro
// scenarios and runs expanding-window cross-validation.
package pipeline

import (
	"strings"

	"github.com/housewatch/forecast/internal/config"
	"github.com/housewatch/forecast/internal/model"
	"github.com/housewatch/forecast/internal/timeseries"
)

// RateColumn is the macro indicator the rate scenarios shift.
const RateColumn = "interest_rate"

// Scenario is a closed set of named input adjustments applied before
// fitting. Unknown names are rejected by ParseScenario before any
// computation starts.
type Scenario int

const (
	Baseline Scenario = iota
	Bullish
	Bearish
	PolicyShock
)

func (s Scenario) String() string {
	switch s {
	case Baseline:
		return "baseline"
	case Bullish:
		return "bullish"
	case Bearish:
		return "bearish"
	case PolicyShock:
		return "policy_shock"
	default:
		return "unknown"
	}
}

// Scenarios lists all scenarios in stable order.
func Scenarios() []Scenario {
	return []Scenario{Baseline, Bullish, Bearish, PolicyShock}
}

// ParseScenario maps a scenario name to its value. Unknown names return
// InvalidScenarioError.
func ParseScenario(name string) (Scenario, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "baseline":
		return Baseline, nil
	case "bullish":
		return Bullish, nil
	case "bearish":
		return Bearish, nil
	case "policy_shock":
		return PolicyShock, nil
	}
	return 0, &model.InvalidScenarioError{Name: name}
}

// adjustFunc applies one scenario's input adjustment to a regional panel
// clone before fitting. The handler table below is the single place a new
// scenario's behavior is defined.
type adjustFunc func(cfg config.ScenarioConfig, panel *timeseries.Panel) error

var adjustments = map[Scenario]adjustFunc{
	Baseline: func(config.ScenarioConfig, *timeseries.Panel) error { return nil },
	Bullish: func(cfg config.ScenarioConfig, panel *timeseries.Panel) error {
		if !panel.HasColumn(RateColumn) {
			return nil
		}
		return panel.Shift(RateColumn, -cfg.RateDelta)
	},
	Bearish: func(cfg config.ScenarioConfig, panel *timeseries.Panel) error {
		if !panel.HasColumn(RateColumn) {
			return nil
		}
		return panel.Shift(RateColumn, cfg.RateDelta)
	},
	PolicyShock: func(cfg config.ScenarioConfig, panel *timeseries.Panel) error {
		// Simulates a cooling measure: an additive shift to appreciation
		// before fitting.
		return panel.Shift("appreciation", cfg.PolicyShockDelta)
	},
}

// adjust clones the panel and applies the scenario's adjustment. Inputs are
// never mutated in place; workers share the original panels read-only.
func adjust(s Scenario, cfg config.ScenarioConfig, panel *timeseries.Panel) (*timeseries.Panel, error) {
	clone := panel.Clone()
	if err := adjustments[s](cfg, clone); err != nil {
		return nil, err
	}
	return clone, nil
}

package pipeline

import (
	"errors"
	"time"

	"github.com/housewatch/forecast/internal/model"
)

// Entity levels as they appear in output tables.
const (
	LevelRegion = "region"
	LevelArea   = "area"
)

// Status tags one entity's outcome in the run manifest.
type Status int

const (
	StatusFitted Status = iota
	StatusSkipped
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusFitted:
		return "fitted"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ForecastRow is one month of one entity's forecast, terminal output.
type ForecastRow struct {
	EntityID string
	Level    string
	Month    time.Time
	Mean     float64
	Lower    float64
	Upper    float64
	Scenario string
}

// ManifestEntry records one entity's outcome with its reason.
type ManifestEntry struct {
	EntityID string
	Level    string
	Status   Status
	Reason   string
}

// Manifest is the run-level audit record. A completed run always carries
// one, even when every entity failed.
type Manifest struct {
	RunID       string
	Scenario    string
	GeneratedAt time.Time
	Fitted      int
	Skipped     int
	Failed      int
	Entries     []ManifestEntry
}

// RunResult is the scenario engine's output.
type RunResult struct {
	Rows          []ForecastRow
	Manifest      Manifest
	RegionMetrics map[string]model.Metrics
	AreaMetrics   map[string]model.Metrics
}

// classify converts an entity-scoped fit error into its manifest entry.
// Insufficient data and macro gaps are skips; numerical failures and
// anything unexpected are failures.
func classify(entityID, level string, err error) ManifestEntry {
	var insufficient *model.InsufficientDataError
	var gap *model.MacroDataGapError
	var nonConv *model.NonConvergenceError

	entry := ManifestEntry{EntityID: entityID, Level: level, Reason: err.Error()}
	switch {
	case errors.As(err, &insufficient), errors.As(err, &gap):
		entry.Status = StatusSkipped
	case errors.As(err, &nonConv):
		entry.Status = StatusFailed
	default:
		entry.Status = StatusFailed
	}
	return entry
}

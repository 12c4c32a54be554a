// Package model implements the two model stages: the regional vector
// autoregression and the area-level ARIMAX, plus the error taxonomy shared
// with the pipeline.
package model

import "fmt"

// InsufficientDataError marks an entity with fewer observations than its
// minimum-history threshold. Entity-scoped: the entity is skipped, never
// the run.
type InsufficientDataError struct {
	EntityID     string
	Observations int
	Minimum      int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("%s: %d observations, need at least %d",
		e.EntityID, e.Observations, e.Minimum)
}

// NonConvergenceError marks a numerical fitting failure (singular design,
// non-finite coefficients). Entity-scoped.
type NonConvergenceError struct {
	EntityID string
	Stage    string // "var" or "arimax"
	Err      error
}

func (e *NonConvergenceError) Error() string {
	return fmt.Sprintf("%s: %s fit did not converge: %v", e.EntityID, e.Stage, e.Err)
}

func (e *NonConvergenceError) Unwrap() error { return e.Err }

// InvalidScenarioError marks an unknown scenario name. Pipeline-scoped:
// raised before any fitting begins and aborts the run.
type InvalidScenarioError struct {
	Name string
}

func (e *InvalidScenarioError) Error() string {
	return fmt.Sprintf("unknown scenario %q", e.Name)
}

// MissingDependencyError marks an area fit attempted before its parent
// region's forecast exists for the requested scenario. This is an
// orchestration bug, not bad data, so it is pipeline-scoped and fatal.
type MissingDependencyError struct {
	AreaID   string
	Region   string
	Scenario string
}

func (e *MissingDependencyError) Error() string {
	return fmt.Sprintf("area %s: no %s forecast for parent region %s",
		e.AreaID, e.Scenario, e.Region)
}

// MacroDataGapError marks a macro indicator column with a gap beyond the
// interpolation bound for one entity. Recovered by dropping the column for
// that entity when other exogenous columns remain.
type MacroDataGapError struct {
	EntityID  string
	Column    string
	GapMonths int
}

func (e *MacroDataGapError) Error() string {
	return fmt.Sprintf("%s: macro column %s has a %d-month gap beyond the interpolation bound",
		e.EntityID, e.Column, e.GapMonths)
}

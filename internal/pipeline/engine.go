package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/housewatch/forecast/internal/config"
	"github.com/housewatch/forecast/internal/geo"
	"github.com/housewatch/forecast/internal/model"
	"github.com/housewatch/forecast/internal/prep"
	"github.com/housewatch/forecast/internal/timeseries"
)

// regionResult is what an area worker needs from its parent region's
// completed Stage 1: the scenario-adjusted panel and the appreciation
// forecast.
type regionResult struct {
	panel  *timeseries.Panel
	points []model.ForecastPoint
}

type outcomeMsg struct {
	entry   ManifestEntry
	rows    []ForecastRow
	metrics *model.Metrics
	fatal   error
}

// Run executes the two-stage forecast under one scenario. Stage 1 fits and
// forecasts each region's VAR; an area's Stage 2 is enqueued the moment its
// own parent region completes, so regions do not serialize each other.
// Entity failures never abort siblings; the manifest records every entity's
// outcome. Only pipeline-scoped errors (invalid scenario, broken stage
// ordering) abort the run.
func Run(ctx context.Context, cfg config.Config, scenario Scenario, data *prep.Result, logger zerolog.Logger) (*RunResult, error) {
	if _, ok := adjustments[scenario]; !ok {
		return nil, &model.InvalidScenarioError{Name: scenario.String()}
	}
	log := logger.With().Str("component", "pipeline").Str("scenario", scenario.String()).Logger()

	opts := model.Options{
		MaxLag:          cfg.Model.MaxLag,
		MaxP:            cfg.Model.MaxP,
		ADFSignificance: cfg.Model.ADFSignificance,
	}

	var regions []geo.Region
	for _, r := range geo.Regions() {
		if _, ok := data.Regional[r]; ok {
			regions = append(regions, r)
		}
	}
	// An area mapped to a region that has no panel can never be fitted or
	// skipped by a region worker, so it must be rejected before any work
	// starts rather than left to stall the collector.
	areasBy := make(map[geo.Region][]string)
	totalAreas := 0
	var orphans []string
	for areaID, region := range data.AreaRegion {
		if _, ok := data.Regional[region]; !ok {
			orphans = append(orphans, areaID)
			continue
		}
		areasBy[region] = append(areasBy[region], areaID)
		totalAreas++
	}
	if len(orphans) > 0 {
		sort.Strings(orphans)
		return nil, &model.MissingDependencyError{
			AreaID:   orphans[0],
			Region:   data.AreaRegion[orphans[0]].String(),
			Scenario: scenario.String(),
		}
	}
	for _, list := range areasBy {
		sort.Strings(list)
	}
	totalOutcomes := len(regions) + totalAreas

	workers := cfg.Forecast.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	regionJobs := make(chan geo.Region, len(regions))
	areaJobs := make(chan string, totalAreas)
	outcomes := make(chan outcomeMsg, totalOutcomes)

	var mu sync.Mutex
	regionOut := make(map[geo.Region]regionResult, len(regions))

	skipAreas := func(r geo.Region, reason string) {
		for _, areaID := range areasBy[r] {
			outcomes <- outcomeMsg{entry: ManifestEntry{
				EntityID: areaID,
				Level:    LevelArea,
				Status:   StatusSkipped,
				Reason:   reason,
			}}
		}
	}

	processRegion := func(r geo.Region) {
		entityID := r.String()
		if err := ctx.Err(); err != nil {
			outcomes <- outcomeMsg{entry: ManifestEntry{entityID, LevelRegion, StatusFailed, err.Error()}}
			skipAreas(r, "run cancelled")
			return
		}

		adjusted, err := adjust(scenario, cfg.Scenarios, data.Regional[r])
		if err != nil {
			outcomes <- outcomeMsg{entry: classify(entityID, LevelRegion, err)}
			skipAreas(r, fmt.Sprintf("parent region %s not fitted", entityID))
			return
		}
		if app, err := adjusted.Column("appreciation"); err == nil {
			recent := app.Tail(12)
			log.Debug().Str("region", entityID).
				Float64("recent_appreciation_mean", recent.Mean()).
				Float64("recent_appreciation_std", recent.Std()).
				Msg("scenario input summary")
		}

		var metrics *model.Metrics
		if cfg.Model.HoldoutMonths > 0 {
			if evalFit, err := model.FitVAR(adjusted, prep.EndogenousColumns, data.MacroColumns[r], cfg.Model.HoldoutMonths, opts); err == nil {
				if m, err := evalFit.Evaluate("appreciation"); err == nil {
					metrics = &m
				}
			}
		}

		full, err := model.FitVAR(adjusted, prep.EndogenousColumns, data.MacroColumns[r], 0, opts)
		if err != nil {
			log.Warn().Str("region", entityID).Err(err).Msg("regional fit failed")
			outcomes <- outcomeMsg{entry: classify(entityID, LevelRegion, err)}
			skipAreas(r, fmt.Sprintf("parent region %s not fitted", entityID))
			return
		}

		futureExog := holdLastExog(adjusted, data.MacroColumns[r], cfg.Forecast.RegionHorizon)
		fc, err := full.Forecast(cfg.Forecast.RegionHorizon, futureExog)
		if err != nil {
			outcomes <- outcomeMsg{entry: classify(entityID, LevelRegion, err)}
			skipAreas(r, fmt.Sprintf("parent region %s not fitted", entityID))
			return
		}
		points := fc["appreciation"]

		if gm, err := full.GrangerMatrix(); err == nil {
			for cause, effects := range gm {
				for effect, p := range effects {
					log.Debug().Str("region", entityID).Str("cause", cause).
						Str("effect", effect).Float64("p_value", p).Msg("granger causality")
				}
			}
		}

		mu.Lock()
		regionOut[r] = regionResult{panel: adjusted, points: points}
		mu.Unlock()

		rows := make([]ForecastRow, len(points))
		for i, p := range points {
			rows[i] = ForecastRow{
				EntityID: entityID,
				Level:    LevelRegion,
				Month:    p.Month,
				Mean:     p.Mean,
				Lower:    p.Lower,
				Upper:    p.Upper,
				Scenario: scenario.String(),
			}
		}
		outcomes <- outcomeMsg{
			entry:   ManifestEntry{entityID, LevelRegion, StatusFitted, fmt.Sprintf("lag=%d", full.Lag)},
			rows:    rows,
			metrics: metrics,
		}

		// The one-directional barrier: this region's areas become eligible
		// the moment its own forecast exists.
		for _, areaID := range areasBy[r] {
			areaJobs <- areaID
		}
	}

	processArea := func(areaID string) {
		if err := ctx.Err(); err != nil {
			outcomes <- outcomeMsg{entry: ManifestEntry{areaID, LevelArea, StatusFailed, err.Error()}}
			return
		}
		region := data.AreaRegion[areaID]

		mu.Lock()
		rr, ok := regionOut[region]
		mu.Unlock()
		if !ok || len(rr.points) == 0 {
			outcomes <- outcomeMsg{fatal: &model.MissingDependencyError{
				AreaID:   areaID,
				Region:   region.String(),
				Scenario: scenario.String(),
			}}
			return
		}

		series, exogNames, exog, err := alignAreaInputs(data.Areas[areaID], rr.panel)
		if err != nil {
			outcomes <- outcomeMsg{entry: classify(areaID, LevelArea, err)}
			return
		}

		var metrics *model.Metrics
		if cfg.Model.HoldoutMonths > 0 {
			if evalFit, err := model.FitARIMAX(series, exogNames, exog, cfg.Model.HoldoutMonths, opts); err == nil {
				if m, err := evalFit.Evaluate(); err == nil {
					metrics = &m
				}
			}
		}

		full, err := model.FitARIMAX(series, exogNames, exog, 0, opts)
		if err != nil {
			log.Warn().Str("area", areaID).Err(err).Msg("area fit failed")
			outcomes <- outcomeMsg{entry: classify(areaID, LevelArea, err)}
			return
		}

		horizon := cfg.Forecast.AreaHorizon
		futureExog, horizon := buildAreaFutureExog(full, rr, series, exog, horizon)
		if horizon == 0 {
			outcomes <- outcomeMsg{entry: ManifestEntry{
				EntityID: areaID,
				Level:    LevelArea,
				Status:   StatusSkipped,
				Reason:   "no parent forecast months overlap the area horizon",
			}}
			return
		}

		points, err := full.Forecast(horizon, futureExog)
		if err != nil {
			outcomes <- outcomeMsg{entry: classify(areaID, LevelArea, err)}
			return
		}

		rows := make([]ForecastRow, len(points))
		for i, p := range points {
			rows[i] = ForecastRow{
				EntityID: areaID,
				Level:    LevelArea,
				Month:    p.Month,
				Mean:     p.Mean,
				Lower:    p.Lower,
				Upper:    p.Upper,
				Scenario: scenario.String(),
			}
		}
		outcomes <- outcomeMsg{
			entry: ManifestEntry{areaID, LevelArea, StatusFitted,
				fmt.Sprintf("order=(%d,%d,%d)", full.Order.P, full.Order.D, full.Order.Q)},
			rows:    rows,
			metrics: metrics,
		}
	}

	var wgRegions sync.WaitGroup
	for w := 0; w < workers; w++ {
		wgRegions.Add(1)
		go func() {
			defer wgRegions.Done()
			for r := range regionJobs {
				processRegion(r)
			}
		}()
	}
	for _, r := range regions {
		regionJobs <- r
	}
	close(regionJobs)

	go func() {
		wgRegions.Wait()
		close(areaJobs)
	}()

	var wgAreas sync.WaitGroup
	for w := 0; w < workers; w++ {
		wgAreas.Add(1)
		go func() {
			defer wgAreas.Done()
			for areaID := range areaJobs {
				processArea(areaID)
			}
		}()
	}

	res := &RunResult{
		RegionMetrics: make(map[string]model.Metrics),
		AreaMetrics:   make(map[string]model.Metrics),
	}
	var fatal error
	entries := make([]ManifestEntry, 0, totalOutcomes)
	for i := 0; i < totalOutcomes; i++ {
		msg := <-outcomes
		if msg.fatal != nil {
			if fatal == nil {
				fatal = msg.fatal
			}
			continue
		}
		entries = append(entries, msg.entry)
		res.Rows = append(res.Rows, msg.rows...)
		if msg.metrics != nil {
			if msg.entry.Level == LevelRegion {
				res.RegionMetrics[msg.entry.EntityID] = *msg.metrics
			} else {
				res.AreaMetrics[msg.entry.EntityID] = *msg.metrics
			}
		}
	}
	wgAreas.Wait()
	if fatal != nil {
		return nil, fatal
	}

	levelRank := func(l string) int {
		if l == LevelRegion {
			return 0
		}
		return 1
	}
	sort.Slice(entries, func(i, j int) bool {
		if levelRank(entries[i].Level) != levelRank(entries[j].Level) {
			return levelRank(entries[i].Level) < levelRank(entries[j].Level)
		}
		return entries[i].EntityID < entries[j].EntityID
	})
	sort.Slice(res.Rows, func(i, j int) bool {
		a, b := res.Rows[i], res.Rows[j]
		if levelRank(a.Level) != levelRank(b.Level) {
			return levelRank(a.Level) < levelRank(b.Level)
		}
		if a.EntityID != b.EntityID {
			return a.EntityID < b.EntityID
		}
		return a.Month.Before(b.Month)
	})

	res.Manifest = Manifest{
		RunID:       uuid.NewString(),
		Scenario:    scenario.String(),
		GeneratedAt: time.Now().UTC(),
		Entries:     entries,
	}
	for _, e := range entries {
		switch e.Status {
		case StatusFitted:
			res.Manifest.Fitted++
		case StatusSkipped:
			res.Manifest.Skipped++
		default:
			res.Manifest.Failed++
		}
	}

	log.Info().
		Int("fitted", res.Manifest.Fitted).
		Int("skipped", res.Manifest.Skipped).
		Int("failed", res.Manifest.Failed).
		Msg("scenario run complete")
	return res, nil
}

// holdLastExog repeats the final observed exogenous row across the forecast
// horizon: macro indicators are held at their last (scenario-adjusted)
// values rather than being separately forecast.
func holdLastExog(panel *timeseries.Panel, cols []string, horizon int) *mat.Dense {
	if len(cols) == 0 {
		return nil
	}
	out := mat.NewDense(horizon, len(cols), nil)
	last := panel.Rows() - 1
	for j, c := range cols {
		v, _ := panel.At(last, c)
		for i := 0; i < horizon; i++ {
			out.Set(i, j, v)
		}
	}
	return out
}

// buildAreaFutureExog assembles the area's future exogenous frame: column 0
// is the parent region's appreciation (forecast where available, observed
// history otherwise) and amenity columns are held at their last observed
// values. The horizon is truncated to the months the parent covers.
func buildAreaFutureExog(m *model.ARIMAX, rr regionResult, series *timeseries.Series, histExog *mat.Dense, horizon int) (*mat.Dense, int) {
	if len(m.ExogNames) == 0 {
		return nil, horizon
	}

	parent := make(map[time.Time]float64, len(rr.points))
	regApp, err := rr.panel.Column("appreciation")
	if err == nil {
		for i, month := range regApp.Months {
			parent[month] = regApp.Values[i]
		}
	}
	for _, p := range rr.points {
		parent[p.Month] = p.Mean
	}

	lastMonth := series.Months[series.Len()-1]
	rows, nExog := histExog.Dims()

	covered := 0
	for s := 0; s < horizon; s++ {
		if _, ok := parent[timeseries.AddMonths(lastMonth, s+1)]; !ok {
			break
		}
		covered++
	}
	if covered == 0 {
		return nil, 0
	}

	out := mat.NewDense(covered, nExog, nil)
	for s := 0; s < covered; s++ {
		month := timeseries.AddMonths(lastMonth, s+1)
		out.Set(s, 0, parent[month])
		for j := 1; j < nExog; j++ {
			out.Set(s, j, histExog.At(rows-1, j))
		}
	}
	return out, covered
}

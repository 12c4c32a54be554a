// Package prep turns raw transaction records and macro indicator series
// into the monthly regional and area panels the model stages consume.
package prep

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/housewatch/forecast/internal/config"
	"github.com/housewatch/forecast/internal/geo"
	"github.com/housewatch/forecast/internal/model"
	"github.com/housewatch/forecast/internal/timeseries"
)

// Transaction is one cleaned, geocoded, regionally-taggable resale record
// delivered by the upstream collection pipeline.
type Transaction struct {
	AreaID       string
	Month        time.Time
	Price        float64 // transacted price, dollars
	Appreciation float64 // annualized appreciation vs prior sale, percent
}

// Frequency is the native release frequency of a macro indicator.
type Frequency int

const (
	Monthly Frequency = iota
	Quarterly
)

// MacroSeries is one exogenous macro indicator (rate, price index, output
// growth, policy events) at its native frequency.
type MacroSeries struct {
	Name      string
	Frequency Frequency
	Dates     []time.Time
	Values    []float64
}

// Inputs bundles everything preparation needs. All fields are read-only.
type Inputs struct {
	Transactions []Transaction
	Macro        []MacroSeries
	// Amenities maps area → amenity column → density. Densities enter area
	// panels as constant columns; no amenity growth is modeled.
	Amenities map[string]map[string]float64
}

// Skip records one entity excluded from fitting, with its typed reason.
type Skip struct {
	EntityID string
	Level    string // "region" or "area"
	Err      error
}

// Result carries the prepared panels plus the audit trail.
type Result struct {
	Regional     map[geo.Region]*timeseries.Panel
	Areas        map[string]*timeseries.Panel
	AreaRegion   map[string]geo.Region
	MacroColumns map[geo.Region][]string // usable exogenous columns per region
	Skipped      []Skip
	Clipped      int
}

// EndogenousColumns is the regional endogenous vector, in panel order.
var EndogenousColumns = []string{"appreciation", "volume", "price_level"}

type cellAgg struct {
	apps   []float64
	prices []float64
	count  int
}

// Build aggregates transactions into monthly panels, merges macro columns,
// interpolates bounded gaps, clips outliers and applies the minimum-history
// filters. Entities that cannot be prepared are returned in Skipped, never
// silently dropped.
func Build(cfg config.PrepConfig, part *geo.Partition, in Inputs, logger zerolog.Logger) (*Result, error) {
	log := logger.With().Str("component", "prep").Logger()

	res := &Result{
		Regional:     make(map[geo.Region]*timeseries.Panel),
		Areas:        make(map[string]*timeseries.Panel),
		AreaRegion:   make(map[string]geo.Region),
		MacroColumns: make(map[geo.Region][]string),
	}

	regionCells := make(map[geo.Region]map[time.Time]*cellAgg)
	areaCells := make(map[string]map[time.Time]*cellAgg)
	areaVolume := make(map[string]int)
	areaRegion := make(map[string]geo.Region)

	for _, tx := range in.Transactions {
		region, ok := part.RegionOf(tx.AreaID)
		if !ok {
			log.Warn().Str("area", tx.AreaID).Msg("transaction in unknown planning area, dropped")
			continue
		}
		m := timeseries.Month(tx.Month)

		if regionCells[region] == nil {
			regionCells[region] = make(map[time.Time]*cellAgg)
		}
		rc := regionCells[region][m]
		if rc == nil {
			rc = &cellAgg{}
			regionCells[region][m] = rc
		}
		rc.apps = append(rc.apps, tx.Appreciation)
		rc.prices = append(rc.prices, tx.Price)
		rc.count++

		areaKey := tx.AreaID
		if areaCells[areaKey] == nil {
			areaCells[areaKey] = make(map[time.Time]*cellAgg)
		}
		ac := areaCells[areaKey][m]
		if ac == nil {
			ac = &cellAgg{}
			areaCells[areaKey][m] = ac
		}
		ac.apps = append(ac.apps, tx.Appreciation)
		ac.prices = append(ac.prices, tx.Price)
		ac.count++
		areaVolume[areaKey]++
		areaRegion[areaKey] = region
	}

	// Regional panels.
	for _, region := range geo.Regions() {
		cells := regionCells[region]
		if len(cells) == 0 {
			res.Skipped = append(res.Skipped, Skip{
				EntityID: region.String(),
				Level:    "region",
				Err:      &model.InsufficientDataError{EntityID: region.String(), Observations: 0, Minimum: cfg.MinRegionalObs},
			})
			continue
		}
		panel, macroCols, err := buildRegionalPanel(cfg, region, cells, in.Macro, &res.Clipped, log)
		if err != nil {
			res.Skipped = append(res.Skipped, Skip{EntityID: region.String(), Level: "region", Err: err})
			continue
		}
		res.Regional[region] = panel
		res.MacroColumns[region] = macroCols
	}

	// Top-N areas by transaction volume bound the long tail.
	retained := topAreas(areaVolume, cfg.TopAreas)

	for _, areaID := range retained {
		region := areaRegion[areaID]
		if _, ok := res.Regional[region]; !ok {
			res.Skipped = append(res.Skipped, Skip{
				EntityID: areaID,
				Level:    "area",
				Err:      fmt.Errorf("parent region %s has no usable panel", region),
			})
			continue
		}
		panel, err := buildAreaPanel(cfg, areaID, areaCells[areaID], in.Amenities[areaID], &res.Clipped, log)
		if err != nil {
			res.Skipped = append(res.Skipped, Skip{EntityID: areaID, Level: "area", Err: err})
			continue
		}
		res.Areas[areaID] = panel
		res.AreaRegion[areaID] = region
	}

	log.Info().
		Int("regions", len(res.Regional)).
		Int("areas", len(res.Areas)).
		Int("skipped", len(res.Skipped)).
		Int("clipped", res.Clipped).
		Msg("panels prepared")
	return res, nil
}

func buildRegionalPanel(cfg config.PrepConfig, region geo.Region, cells map[time.Time]*cellAgg, macro []MacroSeries, clipped *int, log zerolog.Logger) (*timeseries.Panel, []string, error) {
	months, appreciation, price, volume := aggregateCells(cells)

	appreciation, nApp := interpolateBounded(appreciation, cfg.MaxGapMonths)
	price, nPrice := interpolateBounded(price, cfg.MaxGapMonths)
	if nApp+nPrice > 0 {
		log.Debug().Str("region", region.String()).Int("filled", nApp+nPrice).Msg("interpolated short gaps")
	}

	clipSeries(region.String(), appreciation, cfg.AppreciationLow, cfg.AppreciationHigh, clipped, log)

	months, cols := trimNaN(months, map[string][]float64{
		"appreciation": appreciation,
		"price_level":  price,
		"volume":       volume,
	})
	appreciation, price, volume = cols["appreciation"], cols["price_level"], cols["volume"]

	if len(months) < cfg.MinRegionalObs {
		return nil, nil, &model.InsufficientDataError{
			EntityID:     region.String(),
			Observations: len(months),
			Minimum:      cfg.MinRegionalObs,
		}
	}
	if hasNaN(appreciation) || hasNaN(price) {
		return nil, nil, &model.InsufficientDataError{
			EntityID:     region.String(),
			Observations: len(months),
			Minimum:      cfg.MinRegionalObs,
		}
	}

	columns := map[string][]float64{
		"appreciation": appreciation,
		"volume":       volume,
		"price_level":  price,
	}
	order := append([]string(nil), EndogenousColumns...)

	// Macro merge: monthly series interpolate bounded gaps, quarterly
	// series forward-fill across the quarter. A column whose gap exceeds
	// the bound is dropped for this region while others remain usable.
	var macroCols []string
	for _, ms := range macro {
		vals, err := alignMacro(ms, months, cfg.MaxGapMonths)
		if err != nil {
			log.Warn().Str("region", region.String()).Str("column", ms.Name).Err(err).
				Msg("macro column dropped")
			continue
		}
		columns[ms.Name] = vals
		order = append(order, ms.Name)
		macroCols = append(macroCols, ms.Name)
	}
	if len(macro) > 0 && len(macroCols) == 0 {
		// Every macro column fell to gaps: InsufficientData semantics.
		return nil, nil, &model.InsufficientDataError{
			EntityID:     region.String(),
			Observations: len(months),
			Minimum:      cfg.MinRegionalObs,
		}
	}

	panel, err := timeseries.NewPanel(region.String(), months, order, columns)
	if err != nil {
		return nil, nil, err
	}
	return panel, macroCols, nil
}

func buildAreaPanel(cfg config.PrepConfig, areaID string, cells map[time.Time]*cellAgg, amenities map[string]float64, clipped *int, log zerolog.Logger) (*timeseries.Panel, error) {
	if len(cells) == 0 {
		return nil, &model.InsufficientDataError{EntityID: areaID, Observations: 0, Minimum: cfg.MinAreaObs}
	}
	months, appreciation, _, _ := aggregateCells(cells)

	appreciation, _ = interpolateBounded(appreciation, cfg.MaxGapMonths)
	clipSeries(areaID, appreciation, cfg.AppreciationLow, cfg.AppreciationHigh, clipped, log)

	months, cols := trimNaN(months, map[string][]float64{"appreciation": appreciation})
	appreciation = cols["appreciation"]

	if len(months) < cfg.MinAreaObs || hasNaN(appreciation) {
		return nil, &model.InsufficientDataError{
			EntityID:     areaID,
			Observations: len(months),
			Minimum:      cfg.MinAreaObs,
		}
	}

	columns := map[string][]float64{"appreciation": appreciation}
	order := []string{"appreciation"}
	for _, name := range sortedKeys(amenities) {
		constant := make([]float64, len(months))
		for i := range constant {
			constant[i] = amenities[name]
		}
		col := "amenity_" + name
		columns[col] = constant
		order = append(order, col)
	}

	return timeseries.NewPanel(areaID, months, order, columns)
}

// aggregateCells reduces per-month transaction groups to the monthly grid:
// appreciation and price by median, volume by count. Months without
// transactions carry NaN appreciation/price and zero volume.
func aggregateCells(cells map[time.Time]*cellAgg) (months []time.Time, appreciation, price, volume []float64) {
	var first, last time.Time
	for m := range cells {
		if first.IsZero() || m.Before(first) {
			first = m
		}
		if last.IsZero() || m.After(last) {
			last = m
		}
	}
	months = timeseries.MonthRange(first, last)
	appreciation = make([]float64, len(months))
	price = make([]float64, len(months))
	volume = make([]float64, len(months))
	for i, m := range months {
		cell := cells[m]
		if cell == nil {
			appreciation[i] = math.NaN()
			price[i] = math.NaN()
			continue
		}
		appreciation[i] = timeseries.Median(cell.apps)
		price[i] = timeseries.Median(cell.prices)
		volume[i] = float64(cell.count)
	}
	return months, appreciation, price, volume
}

// interpolateBounded linearly fills NaN runs of at most maxGap months.
// Longer runs and edge runs stay NaN; values are never manufactured beyond
// the bound.
func interpolateBounded(values []float64, maxGap int) ([]float64, int) {
	out := append([]float64(nil), values...)
	filled := 0
	i := 0
	for i < len(out) {
		if !math.IsNaN(out[i]) {
			i++
			continue
		}
		start := i
		for i < len(out) && math.IsNaN(out[i]) {
			i++
		}
		gap := i - start
		if start == 0 || i == len(out) || gap > maxGap {
			continue
		}
		lo, hi := out[start-1], out[i]
		for j := 0; j < gap; j++ {
			w := float64(j+1) / float64(gap+1)
			out[start+j] = lo + w*(hi-lo)
			filled++
		}
	}
	return out, filled
}

// clipSeries clamps appreciation into [low, high] in place, counting and
// logging every clipped value for the audit trail.
func clipSeries(entityID string, values []float64, low, high float64, clipped *int, log zerolog.Logger) {
	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}
		if v < low || v > high {
			capped := math.Max(low, math.Min(high, v))
			log.Debug().Str("entity", entityID).Int("index", i).
				Float64("raw", v).Float64("capped", capped).Msg("appreciation clipped")
			values[i] = capped
			*clipped++
		}
	}
}

// alignMacro maps one macro series onto the panel's month grid.
func alignMacro(ms MacroSeries, months []time.Time, maxGap int) ([]float64, error) {
	byMonth := make(map[time.Time]float64, len(ms.Dates))
	for i, d := range ms.Dates {
		byMonth[timeseries.Month(d)] = ms.Values[i]
	}

	out := make([]float64, len(months))
	for i, m := range months {
		if v, ok := byMonth[m]; ok {
			out[i] = v
			continue
		}
		out[i] = math.NaN()
	}

	switch ms.Frequency {
	case Quarterly:
		// The true value is constant within the quarter until the next
		// release, so forward-fill up to two months, never interpolate.
		run := 0
		for i := range out {
			if !math.IsNaN(out[i]) {
				run = 0
				continue
			}
			if i > 0 && !math.IsNaN(out[i-1]) || run > 0 {
				run++
				if run <= 2 {
					out[i] = out[i-1]
					continue
				}
			}
		}
	default:
		out, _ = interpolateBounded(out, maxGap)
	}

	// Any NaN that survived is an unrecoverable gap. Edge gaps are trimmed
	// by the caller's grid, so interior NaN means the gap beat the bound.
	gap := longestNaNRun(out)
	if gap > 0 {
		return nil, &model.MacroDataGapError{Column: ms.Name, GapMonths: gap}
	}
	return out, nil
}

func longestNaNRun(values []float64) int {
	longest, run := 0, 0
	for _, v := range values {
		if math.IsNaN(v) {
			run++
			if run > longest {
				longest = run
			}
		} else {
			run = 0
		}
	}
	return longest
}

// trimNaN drops leading and trailing rows where any column is NaN, keeping
// all columns on a shared month grid.
func trimNaN(months []time.Time, columns map[string][]float64) ([]time.Time, map[string][]float64) {
	n := len(months)
	start, end := 0, n
	rowOK := func(i int) bool {
		for _, col := range columns {
			if math.IsNaN(col[i]) {
				return false
			}
		}
		return true
	}
	for start < end && !rowOK(start) {
		start++
	}
	for end > start && !rowOK(end-1) {
		end--
	}
	out := make(map[string][]float64, len(columns))
	for name, col := range columns {
		out[name] = col[start:end]
	}
	return months[start:end], out
}

func hasNaN(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

func topAreas(volume map[string]int, n int) []string {
	areas := make([]string, 0, len(volume))
	for a := range volume {
		areas = append(areas, a)
	}
	sort.Slice(areas, func(i, j int) bool {
		if volume[areas[i]] != volume[areas[j]] {
			return volume[areas[i]] > volume[areas[j]]
		}
		return areas[i] < areas[j] // stable order for determinism
	})
	if n > 0 && len(areas) > n {
		areas = areas[:n]
	}
	sort.Strings(areas)
	return areas
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

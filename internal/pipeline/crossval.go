package pipeline

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/housewatch/forecast/internal/config"
	"github.com/housewatch/forecast/internal/geo"
	"github.com/housewatch/forecast/internal/model"
	"github.com/housewatch/forecast/internal/prep"
	"github.com/housewatch/forecast/internal/timeseries"
)

// FoldResult is one expanding-window fold's out-of-sample accuracy.
type FoldResult struct {
	EntityID string
	Level    string
	Fold     int
	TrainEnd time.Time
	Metrics  model.Metrics
}

// CVResult aggregates every completed fold. Infeasible folds (not enough
// history, fit failures) are counted, not reported row by row. Averages
// holds per-entity means over that entity's completed folds; N carries the
// fold count rather than an observation count.
type CVResult struct {
	Folds        []FoldResult
	Averages     map[string]model.Metrics
	SkippedFolds int
}

// CrossValidate runs expanding-window validation under the baseline
// scenario: regions against observed macro paths, areas against the
// observed regional appreciation of their parent. Unlike a forecast run the
// future exogenous values are the realized ones, so the scores isolate
// model error from exogenous-path error.
func CrossValidate(ctx context.Context, cfg config.Config, data *prep.Result, logger zerolog.Logger) (*CVResult, error) {
	log := logger.With().Str("component", "crossval").Logger()
	cv := cfg.CrossVal
	opts := model.Options{
		MaxLag:          cfg.Model.MaxLag,
		MaxP:            cfg.Model.MaxP,
		ADFSignificance: cfg.Model.ADFSignificance,
	}

	res := &CVResult{}

	for _, r := range geo.Regions() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		panel, ok := data.Regional[r]
		if !ok {
			continue
		}
		entityID := r.String()
		macro := data.MacroColumns[r]

		appSeries, err := panel.Column("appreciation")
		if err != nil {
			return nil, err
		}
		total := panel.Rows()
		for fold := 1; fold <= cv.Folds; fold++ {
			trainEnd := cv.MinTrainMonths + (fold-1)*cv.StepMonths
			if trainEnd+cv.ForecastHorizon > total {
				break
			}
			train := panel.Window(0, trainEnd)
			fit, err := model.FitVAR(train, prep.EndogenousColumns, macro, 0, opts)
			if err != nil {
				log.Debug().Str("region", entityID).Int("fold", fold).Err(err).Msg("fold infeasible")
				res.SkippedFolds++
				continue
			}
			var futureExog *mat.Dense
			if len(macro) > 0 {
				futureExog = observedWindow(panel, macro, trainEnd, cv.ForecastHorizon)
			}
			fc, err := fit.Forecast(cv.ForecastHorizon, futureExog)
			if err != nil {
				res.SkippedFolds++
				continue
			}
			predicted := make([]float64, cv.ForecastHorizon)
			for i, p := range fc["appreciation"] {
				predicted[i] = p.Mean
			}
			observed := appSeries.Values[trainEnd : trainEnd+cv.ForecastHorizon]
			res.Folds = append(res.Folds, FoldResult{
				EntityID: entityID,
				Level:    LevelRegion,
				Fold:     fold,
				TrainEnd: panel.Months[trainEnd-1],
				Metrics:  model.EvaluateForecast(observed, predicted, appSeries.Values[trainEnd-1]),
			})
		}
	}

	areaIDs := cv.Areas
	if len(areaIDs) == 0 {
		for areaID := range data.Areas {
			areaIDs = append(areaIDs, areaID)
		}
	}
	sort.Strings(areaIDs)

	for _, areaID := range areaIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		area, ok := data.Areas[areaID]
		if !ok {
			log.Warn().Str("area", areaID).Msg("configured validation area not in prepared data")
			continue
		}
		region := data.AreaRegion[areaID]
		series, exogNames, exog, err := alignAreaInputs(area, data.Regional[region])
		if err != nil {
			res.SkippedFolds += cv.Folds
			continue
		}
		total := series.Len()
		for fold := 1; fold <= cv.Folds; fold++ {
			trainEnd := cv.MinTrainMonths + (fold-1)*cv.StepMonths
			if trainEnd+cv.ForecastHorizon > total {
				break
			}
			trainSeries := series.Slice(0, trainEnd)
			var trainExog, futureExog *mat.Dense
			if exog != nil {
				_, k := exog.Dims()
				trainExog = mat.DenseCopyOf(exog.Slice(0, trainEnd, 0, k))
				futureExog = mat.DenseCopyOf(exog.Slice(trainEnd, trainEnd+cv.ForecastHorizon, 0, k))
			}
			fit, err := model.FitARIMAX(trainSeries, exogNames, trainExog, 0, opts)
			if err != nil {
				log.Debug().Str("area", areaID).Int("fold", fold).Err(err).Msg("fold infeasible")
				res.SkippedFolds++
				continue
			}
			points, err := fit.Forecast(cv.ForecastHorizon, futureExog)
			if err != nil {
				res.SkippedFolds++
				continue
			}
			predicted := make([]float64, len(points))
			for i, p := range points {
				predicted[i] = p.Mean
			}
			observed := series.Values[trainEnd : trainEnd+cv.ForecastHorizon]
			res.Folds = append(res.Folds, FoldResult{
				EntityID: areaID,
				Level:    LevelArea,
				Fold:     fold,
				TrainEnd: series.Months[trainEnd-1],
				Metrics:  model.EvaluateForecast(observed, predicted, series.Values[trainEnd-1]),
			})
		}
	}

	res.Averages = make(map[string]model.Metrics)
	for _, f := range res.Folds {
		m := res.Averages[f.EntityID]
		m.RMSE += f.Metrics.RMSE
		m.MAE += f.Metrics.MAE
		m.MAPE += f.Metrics.MAPE
		m.DirectionalAccuracy += f.Metrics.DirectionalAccuracy
		m.N++
		res.Averages[f.EntityID] = m
	}
	for id, m := range res.Averages {
		c := float64(m.N)
		m.RMSE /= c
		m.MAE /= c
		m.MAPE /= c
		m.DirectionalAccuracy /= c
		res.Averages[id] = m
	}

	log.Info().Int("folds", len(res.Folds)).Int("skipped", res.SkippedFolds).Msg("cross validation complete")
	return res, nil
}

// observedWindow extracts the realized values of the named columns over
// [start, start+h) as a forecast-shaped exogenous frame.
func observedWindow(panel *timeseries.Panel, cols []string, start, h int) *mat.Dense {
	out := mat.NewDense(h, len(cols), nil)
	for j, c := range cols {
		for i := 0; i < h; i++ {
			v, _ := panel.At(start+i, c)
			out.Set(i, j, v)
		}
	}
	return out
}

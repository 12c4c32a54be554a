package model

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/housewatch/forecast/internal/stattest"
	"github.com/housewatch/forecast/internal/timeseries"
)

// minARIMAXObs is the minimum history an area needs before fitting.
const minARIMAXObs = 24

// ARIMAX is one area's fitted model: local appreciation regressed on its
// own lags, up to one lagged innovation, and contemporaneous exogenous
// regressors (the parent region's forecast plus amenity densities).
//
// With fewer than two usable exogenous columns the model degrades to a
// pure ARIMA; ExogNames is empty in that case.
type ARIMAX struct {
	AreaID    string
	Order     stattest.Order
	ExogNames []string

	coeffs   []float64 // [const | AR(p) | MA(q) | exog]
	residStd float64

	work      []float64 // fit-space series (differenced when Order.D == 1)
	resid     []float64 // fit-space residuals, aligned with work
	lastLevel float64
	lastMonth time.Time

	holdoutObs  []float64
	holdoutExog *mat.Dense
}

// FitARIMAX fits the area model. exog is a series-aligned matrix with one
// column per name in exogNames; the trailing holdout observations are
// withheld for Evaluate. Order selection is AIC-driven with d decided by
// the stationarity test.
func FitARIMAX(series *timeseries.Series, exogNames []string, exog *mat.Dense, holdout int, opts Options) (*ARIMAX, error) {
	if holdout < 0 {
		holdout = 0
	}
	total := series.Len()
	train := total - holdout
	if train < minARIMAXObs {
		return nil, &InsufficientDataError{
			EntityID:     series.Name,
			Observations: train,
			Minimum:      minARIMAXObs,
		}
	}
	if exog != nil {
		r, c := exog.Dims()
		if r != total || c != len(exogNames) {
			return nil, fmt.Errorf("area %s: exogenous matrix is %dx%d, want %dx%d",
				series.Name, r, c, total, len(exogNames))
		}
	}

	// Pure-ARIMA fallback when fewer than two exogenous columns are usable.
	if len(exogNames) < 2 {
		exogNames = nil
		exog = nil
	}

	values := series.Values[:train]
	order := stattest.SelectARIMAOrder(values, opts.MaxP, opts.ADFSignificance)

	work := values
	offset := 0
	if order.D == 1 {
		offset = 1
		work = make([]float64, train-1)
		for i := 1; i < train; i++ {
			work[i-1] = values[i] - values[i-1]
		}
	}

	nExog := len(exogNames)
	var exogFit *mat.Dense
	if nExog > 0 {
		exogFit = mat.NewDense(len(work), nExog, nil)
		for i := range work {
			for j := 0; j < nExog; j++ {
				exogFit.Set(i, j, exog.At(i+offset, j))
			}
		}
	}

	var resid []float64
	if order.Q > 0 {
		var err error
		resid, err = stattest.LongARResiduals(work, order.P+order.Q)
		if err != nil {
			return nil, &NonConvergenceError{EntityID: series.Name, Stage: "arimax", Err: err}
		}
	}

	start := order.P
	if order.Q > start {
		start = order.Q
	}
	nEff := len(work) - start
	k := 1 + order.P + order.Q + nExog
	if nEff <= k+2 {
		return nil, &InsufficientDataError{
			EntityID:     series.Name,
			Observations: train,
			Minimum:      minARIMAXObs,
		}
	}

	y := make([]float64, nEff)
	x := mat.NewDense(nEff, k, nil)
	for i := 0; i < nEff; i++ {
		t := i + start
		y[i] = work[t]
		col := 0
		x.Set(i, col, 1)
		col++
		for j := 1; j <= order.P; j++ {
			x.Set(i, col, work[t-j])
			col++
		}
		for j := 1; j <= order.Q; j++ {
			x.Set(i, col, resid[t-j])
			col++
		}
		for j := 0; j < nExog; j++ {
			x.Set(i, col, exogFit.At(t, j))
			col++
		}
	}

	yMat := mat.NewDense(nEff, 1, append([]float64(nil), y...))
	b, err := stattest.OLS(x, yMat)
	if err != nil {
		return nil, &NonConvergenceError{EntityID: series.Name, Stage: "arimax", Err: err}
	}
	coeffs := make([]float64, k)
	for i := range coeffs {
		coeffs[i] = b.At(i, 0)
	}

	// In-sample residuals on the candidate regression.
	fullResid := make([]float64, len(work))
	sse := 0.0
	for i := 0; i < nEff; i++ {
		t := i + start
		pred := 0.0
		for j := 0; j < k; j++ {
			pred += coeffs[j] * x.At(i, j)
		}
		fullResid[t] = work[t] - pred
		sse += fullResid[t] * fullResid[t]
	}
	denom := nEff - k
	if denom < 1 {
		denom = nEff
	}
	residStd := math.Sqrt(sse / float64(denom))
	if math.IsNaN(residStd) || math.IsInf(residStd, 0) {
		return nil, &NonConvergenceError{
			EntityID: series.Name,
			Stage:    "arimax",
			Err:      fmt.Errorf("non-finite residual variance"),
		}
	}

	m := &ARIMAX{
		AreaID:    series.Name,
		Order:     order,
		ExogNames: append([]string(nil), exogNames...),
		coeffs:    coeffs,
		residStd:  residStd,
		work:      work,
		resid:     fullResid,
		lastLevel: values[train-1],
		lastMonth: series.Months[train-1],
	}

	if holdout > 0 {
		m.holdoutObs = append([]float64(nil), series.Values[train:]...)
		if nExog > 0 {
			m.holdoutExog = mat.NewDense(holdout, nExog, nil)
			for i := 0; i < holdout; i++ {
				for j := 0; j < nExog; j++ {
					m.holdoutExog.Set(i, j, exog.At(train+i, j))
				}
			}
		}
	}

	return m, nil
}

// Forecast produces horizon months of level-space forecasts with 95% bands
// (mean ± 1.96·σ·√h, the same documented approximation as the regional
// stage). futureExog must be horizon x len(ExogNames) when the model kept
// exogenous columns.
func (m *ARIMAX) Forecast(horizon int, futureExog *mat.Dense) ([]ForecastPoint, error) {
	if horizon <= 0 {
		return nil, fmt.Errorf("area %s: horizon must be > 0", m.AreaID)
	}
	nExog := len(m.ExogNames)
	if nExog > 0 {
		if futureExog == nil {
			return nil, fmt.Errorf("area %s: model fitted with %d exogenous columns but no future values supplied",
				m.AreaID, nExog)
		}
		r, c := futureExog.Dims()
		if r < horizon || c != nExog {
			return nil, fmt.Errorf("area %s: future exogenous matrix is %dx%d, need %dx%d",
				m.AreaID, r, c, horizon, nExog)
		}
	}

	n := len(m.work)
	ext := make([]float64, n+horizon)
	copy(ext, m.work)
	extResid := make([]float64, n+horizon)
	copy(extResid, m.resid)

	for h := 0; h < horizon; h++ {
		t := n + h
		col := 0
		pred := m.coeffs[col]
		col++
		for j := 1; j <= m.Order.P; j++ {
			pred += m.coeffs[col] * ext[t-j]
			col++
		}
		for j := 1; j <= m.Order.Q; j++ {
			if t-j < n {
				pred += m.coeffs[col] * extResid[t-j]
			}
			col++
		}
		for j := 0; j < nExog; j++ {
			pred += m.coeffs[col] * futureExog.At(h, j)
			col++
		}
		ext[t] = pred
		extResid[t] = 0 // expected future innovation
	}

	means := ext[n:]
	if m.Order.D == 1 {
		means = timeseries.Integrate(m.lastLevel, means)
	}

	points := make([]ForecastPoint, horizon)
	for s := 0; s < horizon; s++ {
		half := z95 * m.residStd * math.Sqrt(float64(s+1))
		points[s] = ForecastPoint{
			Month: timeseries.AddMonths(m.lastMonth, s+1),
			Mean:  means[s],
			Lower: means[s] - half,
			Upper: means[s] + half,
		}
	}
	return points, nil
}

// Evaluate forecasts the withheld holdout window and reports error metrics.
func (m *ARIMAX) Evaluate() (Metrics, error) {
	if len(m.holdoutObs) == 0 {
		return Metrics{}, fmt.Errorf("area %s: no holdout window to evaluate", m.AreaID)
	}
	points, err := m.Forecast(len(m.holdoutObs), m.holdoutExog)
	if err != nil {
		return Metrics{}, err
	}
	predicted := make([]float64, len(points))
	for i, p := range points {
		predicted[i] = p.Mean
	}
	return EvaluateForecast(m.holdoutObs, predicted, m.lastLevel), nil
}

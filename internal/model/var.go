package model

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/housewatch/forecast/internal/stattest"
	"github.com/housewatch/forecast/internal/timeseries"
)

// z95 is the two-sided 95% normal quantile used for forecast bands.
const z95 = 1.959963984540054

// Options bound the order searches and the stationarity decision.
type Options struct {
	MaxLag          int
	MaxP            int
	ADFSignificance float64
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{MaxLag: 6, MaxP: 6, ADFSignificance: 0.05}
}

// VAR is one region's fitted vector autoregression. Forecasts are reported
// in level space: a series that was differenced for fitting is re-integrated
// before it leaves this type.
//
// Multi-step confidence bands use the documented residual-scaling
// approximation mean ± 1.96·σ·√h, not a forecast-error-variance
// decomposition.
type VAR struct {
	RegionID    string
	Lag         int
	EndogNames  []string
	ExogNames   []string
	Differenced map[string]bool

	coeffs   *mat.Dense // m x K, column j = equation j
	sigma    *mat.SymDense
	residStd []float64

	fitY       *mat.Dense // training endogenous in fit space (T' x K)
	designX    *mat.Dense // training design matrix (Treg x m)
	responseY  *mat.Dense // training responses (Treg x K)
	lastLevels []float64  // last training-window level per variable
	lastMonth  time.Time

	holdoutObs  map[string][]float64 // observed holdout values per variable, level space
	holdoutExog *mat.Dense
}

// FitVAR estimates a VAR over the panel's endogenous columns with optional
// contemporaneous exogenous columns. The trailing holdout months are
// withheld from estimation and kept for Evaluate.
func FitVAR(panel *timeseries.Panel, endog, exog []string, holdout int, opts Options) (*VAR, error) {
	if len(endog) < 2 {
		return nil, fmt.Errorf("region %s: need at least 2 endogenous variables, got %d",
			panel.EntityID, len(endog))
	}
	if holdout < 0 {
		holdout = 0
	}
	total := panel.Rows()
	train := total - holdout
	minTrain := 4*len(endog) + len(exog) + 4
	if train < minTrain {
		return nil, &InsufficientDataError{
			EntityID:     panel.EntityID,
			Observations: train,
			Minimum:      minTrain,
		}
	}

	// Stationarity per endogenous series on the training window; a series
	// the ADF test cannot call stationary is first-differenced exactly once.
	differenced := make(map[string]bool, len(endog))
	anyDiff := false
	cols := make([]*timeseries.Series, len(endog))
	levels := make([][]float64, len(endog))
	for j, name := range endog {
		s, err := panel.Column(name)
		if err != nil {
			return nil, err
		}
		cols[j] = s
		levels[j] = s.Values
		adf := stattest.ADF(s.Values[:train], 0)
		if adf.PValue >= opts.ADFSignificance {
			differenced[name] = true
			anyDiff = true
		} else {
			differenced[name] = false
		}
	}

	// Transform to fit space. When any variable is differenced, every
	// column drops its first row so all columns stay month-aligned.
	offset := 0
	if anyDiff {
		offset = 1
	}
	fitRows := train - offset
	fitY := mat.NewDense(fitRows, len(endog), nil)
	for j, name := range endog {
		if differenced[name] {
			diffs := cols[j].Diff().Values
			for i := 0; i < fitRows; i++ {
				fitY.Set(i, j, diffs[i])
			}
		} else {
			for i := 0; i < fitRows; i++ {
				fitY.Set(i, j, levels[j][i+offset])
			}
		}
	}

	var exogTrain *mat.Dense
	if len(exog) > 0 {
		full, err := panel.Matrix(exog...)
		if err != nil {
			return nil, err
		}
		exogTrain = mat.NewDense(fitRows, len(exog), nil)
		for i := 0; i < fitRows; i++ {
			for j := range exog {
				exogTrain.Set(i, j, full.At(i+offset, j))
			}
		}
	}

	lag := stattest.SelectVARLag(fitY, exogTrain, opts.MaxLag)

	x, y := buildVARDesign(fitY, exogTrain, lag)
	treg, _ := y.Dims()
	_, m := x.Dims()
	if treg <= m+2 {
		return nil, &InsufficientDataError{
			EntityID:     panel.EntityID,
			Observations: train,
			Minimum:      m + lag + 3,
		}
	}

	b, err := stattest.OLS(x, y)
	if err != nil {
		return nil, &NonConvergenceError{EntityID: panel.EntityID, Stage: "var", Err: err}
	}

	// Residual covariance with degrees-of-freedom correction.
	var yhat, u, utu mat.Dense
	yhat.Mul(x, b)
	u.Sub(y, &yhat)
	utu.Mul(u.T(), &u)

	df := float64(treg - m)
	if df <= 0 {
		df = float64(treg)
	}
	k := len(endog)
	sigmaData := make([]float64, k*k)
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			sigmaData[i*k+j] = utu.At(i, j) / df
		}
	}
	sigma := mat.NewSymDense(k, sigmaData)

	residStd := make([]float64, k)
	for j := 0; j < k; j++ {
		v := sigma.At(j, j)
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &NonConvergenceError{
				EntityID: panel.EntityID,
				Stage:    "var",
				Err:      fmt.Errorf("non-finite residual variance for %s", endog[j]),
			}
		}
		residStd[j] = math.Sqrt(v)
	}

	lastLevels := make([]float64, k)
	for j := range endog {
		lastLevels[j] = levels[j][train-1]
	}

	v := &VAR{
		RegionID:    panel.EntityID,
		Lag:         lag,
		EndogNames:  append([]string(nil), endog...),
		ExogNames:   append([]string(nil), exog...),
		Differenced: differenced,
		coeffs:      b,
		sigma:       sigma,
		residStd:    residStd,
		fitY:        fitY,
		designX:     x,
		responseY:   y,
		lastLevels:  lastLevels,
		lastMonth:   panel.Months[train-1],
	}

	if holdout > 0 {
		v.holdoutObs = make(map[string][]float64, k)
		for j, name := range endog {
			v.holdoutObs[name] = append([]float64(nil), levels[j][train:]...)
		}
		if len(exog) > 0 {
			full, err := panel.Matrix(exog...)
			if err != nil {
				return nil, err
			}
			v.holdoutExog = mat.NewDense(holdout, len(exog), nil)
			for i := 0; i < holdout; i++ {
				for j := range exog {
					v.holdoutExog.Set(i, j, full.At(train+i, j))
				}
			}
		}
	}

	return v, nil
}

// buildVARDesign stacks [const | lag blocks | exog] against the responses.
func buildVARDesign(fitY, exog *mat.Dense, lag int) (x, y *mat.Dense) {
	t, k := fitY.Dims()
	treg := t - lag

	nExog := 0
	if exog != nil {
		_, nExog = exog.Dims()
	}
	m := 1 + lag*k + nExog

	y = mat.NewDense(treg, k, nil)
	x = mat.NewDense(treg, m, nil)
	for i := 0; i < treg; i++ {
		for j := 0; j < k; j++ {
			y.Set(i, j, fitY.At(i+lag, j))
		}
		col := 0
		x.Set(i, col, 1)
		col++
		for l := 1; l <= lag; l++ {
			for j := 0; j < k; j++ {
				x.Set(i, col, fitY.At(i+lag-l, j))
				col++
			}
		}
		for j := 0; j < nExog; j++ {
			x.Set(i, col, exog.At(i+lag, j))
			col++
		}
	}
	return x, y
}

// Forecast produces horizon months of forecasts per endogenous variable,
// re-integrated to level space, with 95% bands. futureExog must be a
// horizon x len(ExogNames) matrix when the model was fitted with exogenous
// columns; pass nil otherwise.
func (v *VAR) Forecast(horizon int, futureExog *mat.Dense) (map[string][]ForecastPoint, error) {
	if horizon <= 0 {
		return nil, fmt.Errorf("region %s: horizon must be > 0", v.RegionID)
	}
	k := len(v.EndogNames)
	nExog := len(v.ExogNames)
	if nExog > 0 {
		if futureExog == nil {
			return nil, fmt.Errorf("region %s: model fitted with %d exogenous columns but no future values supplied",
				v.RegionID, nExog)
		}
		r, c := futureExog.Dims()
		if r < horizon || c != nExog {
			return nil, fmt.Errorf("region %s: future exogenous matrix is %dx%d, need %dx%d",
				v.RegionID, r, c, horizon, nExog)
		}
	}

	// Recursive forecast in fit space, seeded with the last Lag rows.
	t, _ := v.fitY.Dims()
	buf := mat.NewDense(v.Lag+horizon, k, nil)
	for i := 0; i < v.Lag; i++ {
		for j := 0; j < k; j++ {
			buf.Set(i, j, v.fitY.At(t-v.Lag+i, j))
		}
	}
	for step := 0; step < horizon; step++ {
		row := v.Lag + step
		for eq := 0; eq < k; eq++ {
			col := 0
			val := v.coeffs.At(col, eq)
			col++
			for l := 1; l <= v.Lag; l++ {
				for j := 0; j < k; j++ {
					val += v.coeffs.At(col, eq) * buf.At(row-l, j)
					col++
				}
			}
			for j := 0; j < nExog; j++ {
				val += v.coeffs.At(col, eq) * futureExog.At(step, j)
				col++
			}
			buf.Set(row, eq, val)
		}
	}

	out := make(map[string][]ForecastPoint, k)
	for j, name := range v.EndogNames {
		raw := make([]float64, horizon)
		for s := 0; s < horizon; s++ {
			raw[s] = buf.At(v.Lag+s, j)
		}
		means := raw
		if v.Differenced[name] {
			means = timeseries.Integrate(v.lastLevels[j], raw)
		}
		points := make([]ForecastPoint, horizon)
		for s := 0; s < horizon; s++ {
			half := z95 * v.residStd[j] * math.Sqrt(float64(s+1))
			points[s] = ForecastPoint{
				Month: timeseries.AddMonths(v.lastMonth, s+1),
				Mean:  means[s],
				Lower: means[s] - half,
				Upper: means[s] + half,
			}
		}
		out[name] = points
	}
	return out, nil
}

// GrangerCausality tests, for every other endogenous variable, the null
// that it does not Granger-cause target. P-values are clamped to [0, 1].
func (v *VAR) GrangerCausality(target string) (map[string]float64, error) {
	targetIdx := -1
	for j, name := range v.EndogNames {
		if name == target {
			targetIdx = j
		}
	}
	if targetIdx < 0 {
		return nil, fmt.Errorf("region %s: no endogenous variable %s", v.RegionID, target)
	}

	out := make(map[string]float64, len(v.EndogNames)-1)
	for causeIdx, cause := range v.EndogNames {
		if causeIdx == targetIdx {
			continue
		}
		p, err := v.grangerPValue(causeIdx, targetIdx)
		if err != nil {
			return nil, err
		}
		out[cause] = p
	}
	return out, nil
}

// grangerPValue runs the restricted-vs-unrestricted F-test for one pair.
func (v *VAR) grangerPValue(causeIdx, effectIdx int) (float64, error) {
	treg, _ := v.responseY.Dims()
	_, m := v.designX.Dims()
	k := len(v.EndogNames)

	yEffect := make([]float64, treg)
	for i := 0; i < treg; i++ {
		yEffect[i] = v.responseY.At(i, effectIdx)
	}

	// Unrestricted RSS from the fitted equation.
	rssU := 0.0
	for i := 0; i < treg; i++ {
		pred := 0.0
		for c := 0; c < m; c++ {
			pred += v.designX.At(i, c) * v.coeffs.At(c, effectIdx)
		}
		r := yEffect[i] - pred
		rssU += r * r
	}

	// Restricted design drops every lag of the cause variable. The column
	// layout is [const | lag blocks | exog]; within lag block l, variable j
	// sits at column 1 + (l-1)*k + j.
	keep := make([]int, 0, m-v.Lag)
	for c := 0; c < m; c++ {
		drop := false
		if c >= 1 && c < 1+v.Lag*k {
			if (c-1)%k == causeIdx {
				drop = true
			}
		}
		if !drop {
			keep = append(keep, c)
		}
	}

	xr := mat.NewDense(treg, len(keep), nil)
	for i := 0; i < treg; i++ {
		for nc, c := range keep {
			xr.Set(i, nc, v.designX.At(i, c))
		}
	}
	yMat := mat.NewDense(treg, 1, append([]float64(nil), yEffect...))
	br, err := stattest.OLS(xr, yMat)
	if err != nil {
		return 0, fmt.Errorf("region %s: restricted regression failed: %w", v.RegionID, err)
	}

	rssR := 0.0
	for i := 0; i < treg; i++ {
		pred := 0.0
		for c := range keep {
			pred += xr.At(i, c) * br.At(c, 0)
		}
		r := yEffect[i] - pred
		rssR += r * r
	}

	q := float64(v.Lag)
	dof := float64(treg - m)
	if dof <= 0 {
		return 0, fmt.Errorf("region %s: insufficient degrees of freedom for Granger test", v.RegionID)
	}

	num := rssR - rssU
	if num < 0 {
		num = 0 // floating-point can push the difference slightly negative
	}
	den := rssU / dof

	pValue := 1.0
	if den > 0 && num > 0 {
		f := (num / q) / den
		if f > 0 && !math.IsNaN(f) && !math.IsInf(f, 0) {
			fDist := distuv.F{D1: q, D2: dof}
			pValue = 1 - fDist.CDF(f)
		}
	}
	if pValue < 0 {
		pValue = 0
	}
	if pValue > 1 {
		pValue = 1
	}
	return pValue, nil
}

// GrangerMatrix runs all pairwise causality tests. The result maps
// cause → effect → p-value.
func (v *VAR) GrangerMatrix() (map[string]map[string]float64, error) {
	out := make(map[string]map[string]float64, len(v.EndogNames))
	for _, effect := range v.EndogNames {
		perEffect, err := v.GrangerCausality(effect)
		if err != nil {
			return nil, err
		}
		for cause, p := range perEffect {
			if out[cause] == nil {
				out[cause] = make(map[string]float64)
			}
			out[cause][effect] = p
		}
	}
	return out, nil
}

// Evaluate forecasts over the withheld holdout window and reports error
// metrics for the target variable against observed values.
func (v *VAR) Evaluate(target string) (Metrics, error) {
	obs, ok := v.holdoutObs[target]
	if !ok || len(obs) == 0 {
		return Metrics{}, fmt.Errorf("region %s: no holdout window to evaluate", v.RegionID)
	}
	fc, err := v.Forecast(len(obs), v.holdoutExog)
	if err != nil {
		return Metrics{}, err
	}
	points := fc[target]
	predicted := make([]float64, len(points))
	for i, p := range points {
		predicted[i] = p.Mean
	}
	targetIdx := 0
	for j, name := range v.EndogNames {
		if name == target {
			targetIdx = j
		}
	}
	return EvaluateForecast(obs, predicted, v.lastLevels[targetIdx]), nil
}

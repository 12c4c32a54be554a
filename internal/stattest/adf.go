package stattest

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// minADFObs is the shortest series the ADF regression accepts. Shorter
// series are conservatively reported as non-stationary.
const minADFObs = 20

// ADFResult is the outcome of an augmented Dickey-Fuller unit-root test.
// The null hypothesis is that the series carries a unit root; a p-value
// below the caller's significance level marks the series stationary.
type ADFResult struct {
	Statistic  float64
	PValue     float64
	Lags       int
	NObs       int
	Stationary bool // at the 5% level
}

// ADF runs the augmented Dickey-Fuller test with a constant term. The
// augmentation lag is chosen by BIC over 0..maxLag; maxLag <= 0 selects the
// usual floor((n-1)^(1/3)) upper bound. Series shorter than 20 observations
// are treated as non-stationary without running the regression.
func ADF(values []float64, maxLag int) ADFResult {
	n := len(values)
	if n < minADFObs {
		return ADFResult{PValue: 1, NObs: n, Stationary: false}
	}

	if maxLag <= 0 {
		maxLag = int(math.Floor(math.Pow(float64(n-1), 1.0/3.0)))
	}
	if maxLag >= n-2 {
		maxLag = n - 3
	}
	if maxLag < 0 {
		maxLag = 0
	}

	diff := make([]float64, n-1)
	for i := 1; i < n; i++ {
		diff[i-1] = values[i] - values[i-1]
	}

	if len(diff)-maxLag < 10 {
		return ADFResult{PValue: 1, Lags: maxLag, NObs: len(diff) - maxLag, Stationary: false}
	}

	// Candidate lags are scored on the common sample fixed by maxLag so the
	// criterion compares like with like; scoring each lag on its full sample
	// would hand more observations to shorter lags and bias the choice.
	bestLag, bestBIC := 0, math.Inf(1)
	for lag := 0; lag <= maxLag; lag++ {
		fit := adfRegression(values, diff, lag, maxLag)
		if fit.err != nil || fit.sse <= 0 || fit.nObs <= 2+lag {
			continue
		}
		bic := float64(fit.nObs)*math.Log(fit.sse/float64(fit.nObs)) +
			float64(2+lag)*math.Log(float64(fit.nObs))
		if bic < bestBIC {
			bestBIC, bestLag = bic, lag
		}
	}

	// Re-estimate at the chosen lag over every usable observation.
	fit := adfRegression(values, diff, bestLag, bestLag)
	if fit.err != nil || fit.se == nil || fit.se[1] == 0 {
		return ADFResult{PValue: 1, Lags: bestLag, NObs: fit.nObs, Stationary: false}
	}

	tStat := fit.coeffs[1] / fit.se[1]
	pValue := mackinnonPValue(tStat)

	return ADFResult{
		Statistic:  tStat,
		PValue:     pValue,
		Lags:       bestLag,
		NObs:       fit.nObs,
		Stationary: pValue < 0.05,
	}
}

type adfFit struct {
	coeffs []float64
	se     []float64
	sse    float64
	nObs   int
	err    error
}

// adfRegression fits Δy_t = α + β·y_{t-1} + Σ γ_i·Δy_{t-i} + ε with the
// given augmentation lag, using observations from offset onward. A unit
// root means β = 0; stationarity pulls β below zero.
func adfRegression(values, diff []float64, lag, offset int) adfFit {
	nObs := len(diff) - offset
	y := make([]float64, nObs)
	x := mat.NewDense(nObs, 2+lag, nil)
	for i := 0; i < nObs; i++ {
		t := i + offset
		y[i] = diff[t]
		x.Set(i, 0, 1)
		x.Set(i, 1, values[t])
		for j := 1; j <= lag; j++ {
			x.Set(i, 1+j, diff[t-j])
		}
	}

	coeffs, se, err := olsWithStdErrors(x, y)
	if err != nil {
		return adfFit{nObs: nObs, err: err}
	}
	sse := 0.0
	for i := 0; i < nObs; i++ {
		pred := 0.0
		for j := range coeffs {
			pred += coeffs[j] * x.At(i, j)
		}
		r := y[i] - pred
		sse += r * r
	}
	return adfFit{coeffs: coeffs, se: se, sse: sse, nObs: nObs}
}

// mackinnonPValue approximates the ADF p-value for the constant-only
// regression by interpolating the MacKinnon (1994) response surface
// critical values.
func mackinnonPValue(stat float64) float64 {
	knots := []struct{ t, p float64 }{
		{-3.96, 0.001},
		{-3.43, 0.01},
		{-2.86, 0.05},
		{-2.57, 0.10},
		{-1.94, 0.25},
		{-1.62, 0.50},
	}
	if stat <= knots[0].t {
		return knots[0].p
	}
	for i := 1; i < len(knots); i++ {
		if stat <= knots[i].t {
			lo, hi := knots[i-1], knots[i]
			w := (stat - lo.t) / (hi.t - lo.t)
			return lo.p + w*(hi.p-lo.p)
		}
	}
	return math.Min(0.5+(stat+1.62)*0.25, 0.99)
}

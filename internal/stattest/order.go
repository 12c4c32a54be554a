package stattest

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Order is an ARIMA (p,d,q) specification.
type Order struct {
	P int
	D int
	Q int
}

// fallbackOrder is returned when every candidate in the grid fails to fit.
var fallbackOrder = Order{P: 1, D: 0, Q: 0}

// SelectVARLag picks the VAR lag order in [1, maxLag] minimizing AIC on the
// given T x K endogenous matrix, with optional contemporaneous exogenous
// columns. Every failure path resolves to lag 1, never an unbounded or
// negative value.
func SelectVARLag(endog, exog *mat.Dense, maxLag int) int {
	if maxLag < 1 {
		maxLag = 1
	}
	t, k := endog.Dims()

	best, bestAIC := 1, math.Inf(1)
	for p := 1; p <= maxLag; p++ {
		if t-p <= p*k+2 {
			break // too few effective observations for this lag
		}
		aic, err := varAIC(endog, exog, p)
		if err != nil {
			continue
		}
		if aic < bestAIC {
			best, bestAIC = p, aic
		}
	}
	return best
}

// varAIC fits a VAR(p) by least squares and returns
// logdet(Σ) + 2·m·K/T, the multivariate AIC up to constants.
func varAIC(endog, exog *mat.Dense, p int) (float64, error) {
	x, y := varDesign(endog, exog, p)
	b, err := OLS(x, y)
	if err != nil {
		return 0, err
	}

	treg, k := y.Dims()
	_, m := x.Dims()

	var yhat, u mat.Dense
	yhat.Mul(x, b)
	u.Sub(y, &yhat)

	var utu mat.Dense
	utu.Mul(u.T(), &u)
	utu.Scale(1/float64(treg), &utu)

	logDet, sign := mat.LogDet(&utu)
	if sign <= 0 || math.IsInf(logDet, 0) || math.IsNaN(logDet) {
		return 0, errDegenerateCovariance
	}
	return logDet + 2*float64(m*k)/float64(treg), nil
}

// varDesign stacks [const | lag blocks | exog] regressors against the
// response rows, mirroring the model package's estimator layout.
func varDesign(endog, exog *mat.Dense, p int) (x, y *mat.Dense) {
	t, k := endog.Dims()
	treg := t - p

	nExog := 0
	if exog != nil {
		_, nExog = exog.Dims()
	}
	m := 1 + p*k + nExog

	y = mat.NewDense(treg, k, nil)
	x = mat.NewDense(treg, m, nil)
	for i := 0; i < treg; i++ {
		for j := 0; j < k; j++ {
			y.Set(i, j, endog.At(i+p, j))
		}
		col := 0
		x.Set(i, col, 1)
		col++
		for lag := 1; lag <= p; lag++ {
			for j := 0; j < k; j++ {
				x.Set(i, col, endog.At(i+p-lag, j))
				col++
			}
		}
		for j := 0; j < nExog; j++ {
			x.Set(i, col, exog.At(i+p, j))
			col++
		}
	}
	return x, y
}

// SelectARIMAOrder searches (p, d, q) with p in [1, maxP], d in {0, 1} and
// q in {0, 1} by AIC. d is decided first from the ADF test at the given
// significance level; a series the test cannot call stationary is
// differenced exactly once. The search is pure and bounded, and falls back
// to (1,0,0) when every candidate fails.
func SelectARIMAOrder(values []float64, maxP int, adfSignificance float64) Order {
	if maxP < 1 {
		maxP = 1
	}
	if adfSignificance <= 0 || adfSignificance >= 1 {
		adfSignificance = 0.05
	}

	d := 0
	if adf := ADF(values, 0); adf.PValue >= adfSignificance {
		d = 1
	}

	work := values
	if d == 1 {
		work = make([]float64, len(values)-1)
		for i := 1; i < len(values); i++ {
			work[i-1] = values[i] - values[i-1]
		}
	}

	best := fallbackOrder
	bestAIC := math.Inf(1)
	found := false
	for p := 1; p <= maxP; p++ {
		for q := 0; q <= 1; q++ {
			aic, err := armaAIC(work, p, q)
			if err != nil {
				continue
			}
			if !found || aic < bestAIC {
				best = Order{P: p, D: d, Q: q}
				bestAIC = aic
				found = true
			}
		}
	}
	if !found {
		return fallbackOrder
	}
	return best
}

// armaAIC scores an ARMA(p,q) candidate on a (possibly differenced) series
// using a Hannan-Rissanen two-pass regression: a long AR pass supplies
// residual estimates, then the candidate regression includes them as MA
// regressors. Returns n·ln(SSE/n) + 2k.
func armaAIC(values []float64, p, q int) (float64, error) {
	n := len(values)
	start := p
	if q > start {
		start = q
	}
	nEff := n - start
	k := 1 + p + q
	if nEff <= k+2 {
		return 0, errTooShort
	}

	var resid []float64
	if q > 0 {
		var err error
		resid, err = LongARResiduals(values, p+q)
		if err != nil {
			return 0, err
		}
	}

	y := make([]float64, nEff)
	x := mat.NewDense(nEff, k, nil)
	for i := 0; i < nEff; i++ {
		t := i + start
		y[i] = values[t]
		x.Set(i, 0, 1)
		for j := 1; j <= p; j++ {
			x.Set(i, j, values[t-j])
		}
		for j := 1; j <= q; j++ {
			x.Set(i, p+j, resid[t-j])
		}
	}

	coeffs, _, err := olsWithStdErrors(x, y)
	if err != nil {
		return 0, err
	}

	sse := 0.0
	for i := 0; i < nEff; i++ {
		pred := 0.0
		for j := 0; j < k; j++ {
			pred += coeffs[j] * x.At(i, j)
		}
		r := y[i] - pred
		sse += r * r
	}
	if sse <= 0 {
		sse = 1e-12 // near-constant series; keep the score finite
	}
	return float64(nEff)*math.Log(sse/float64(nEff)) + 2*float64(k), nil
}

// LongARResiduals runs the first Hannan-Rissanen pass: an AR(pLong) fit
// whose residuals proxy the unobserved innovations. The returned slice is
// aligned with values (leading entries zero).
func LongARResiduals(values []float64, pLong int) ([]float64, error) {
	n := len(values)
	if pLong < 1 {
		pLong = 1
	}
	nEff := n - pLong
	if nEff <= pLong+2 {
		return nil, errTooShort
	}

	y := make([]float64, nEff)
	x := mat.NewDense(nEff, pLong+1, nil)
	for i := 0; i < nEff; i++ {
		t := i + pLong
		y[i] = values[t]
		x.Set(i, 0, 1)
		for j := 1; j <= pLong; j++ {
			x.Set(i, j, values[t-j])
		}
	}
	coeffs, _, err := olsWithStdErrors(x, y)
	if err != nil {
		return nil, err
	}

	resid := make([]float64, n)
	for i := 0; i < nEff; i++ {
		t := i + pLong
		pred := coeffs[0]
		for j := 1; j <= pLong; j++ {
			pred += coeffs[j] * values[t-j]
		}
		resid[t] = values[t] - pred
	}
	return resid, nil
}

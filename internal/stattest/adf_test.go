package stattest

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ar1 simulates y_t = phi*y_{t-1} + e_t with a fixed seed.
func ar1(n int, phi float64, seed int64) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	for i := 1; i < n; i++ {
		out[i] = phi*out[i-1] + rng.NormFloat64()
	}
	return out
}

func TestADFDetectsStationaryAR1(t *testing.T) {
	res := ADF(ar1(200, 0.3, 42), 0)

	assert.Negative(t, res.Statistic)
	assert.Less(t, res.PValue, 0.05)
	assert.True(t, res.Stationary)
	assert.Greater(t, res.NObs, 0)
}

func TestADFStationaryAR1PowerAtShortLength(t *testing.T) {
	// Lag selection must not drown the unit-root coefficient at n=50: a
	// stationary AR(1) has to be flagged stationary in at least 95% of
	// trials across seeds, not just for one lucky draw.
	const n, trials = 50, 1000
	for _, phi := range []float64{0.3, 0.5} {
		hits := 0
		for seed := int64(1); seed <= trials; seed++ {
			if ADF(ar1(n, phi, seed), 0).Stationary {
				hits++
			}
		}
		rate := float64(hits) / float64(trials)
		assert.GreaterOrEqual(t, rate, 0.95, "phi=%v: %d/%d stationary", phi, hits, trials)
	}
}

func TestADFPicksShortLagForAR1(t *testing.T) {
	// White-noise residuals leave nothing for augmentation terms to
	// explain, so the selected lag should sit well below the cap for
	// almost every draw.
	short := 0
	for seed := int64(1); seed <= 50; seed++ {
		if ADF(ar1(200, 0.3, seed), 0).Lags <= 1 {
			short++
		}
	}
	assert.GreaterOrEqual(t, short, 40)
}

func TestADFRandomWalkLooksLessStationary(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	walk := make([]float64, 200)
	for i := 1; i < len(walk); i++ {
		walk[i] = walk[i-1] + rng.NormFloat64()
	}

	pWalk := ADF(walk, 0).PValue
	pStat := ADF(ar1(200, 0.3, 42), 0).PValue
	assert.Greater(t, pWalk, pStat)
}

func TestADFLinearTrendIsNonStationary(t *testing.T) {
	vals := make([]float64, 60)
	for i := range vals {
		vals[i] = float64(i)
	}

	res := ADF(vals, 0)
	assert.False(t, res.Stationary)
	assert.GreaterOrEqual(t, res.PValue, 0.05)
}

func TestADFShortSeriesIsConservative(t *testing.T) {
	res := ADF(make([]float64, 10), 0)
	require.False(t, res.Stationary)
	assert.Equal(t, 1.0, res.PValue)
}

func TestMacKinnonInterpolationIsMonotone(t *testing.T) {
	stats := []float64{-4.5, -3.96, -3.2, -2.86, -2.5, -1.8, -0.5}
	prev := -1.0
	for _, s := range stats {
		p := mackinnonPValue(s)
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
		assert.GreaterOrEqual(t, p, prev, "p-value must not decrease as the statistic rises (stat=%v)", s)
		prev = p
	}
	assert.InDelta(t, 0.05, mackinnonPValue(-2.86), 1e-12)
}

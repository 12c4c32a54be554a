package model

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/housewatch/forecast/internal/timeseries"
)

// areaSeries builds a noisy AR(1) appreciation series with a matching
// two-column exogenous frame (parent appreciation plus one amenity).
func areaSeries(t *testing.T, n int, seed int64) (*timeseries.Series, []string, *mat.Dense) {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	vals := make([]float64, n)
	exog := mat.NewDense(n, 2, nil)
	parent := 4.0
	for i := 0; i < n; i++ {
		parent = 4 + 0.8*(parent-4) + 0.2*rng.NormFloat64()
		if i > 0 {
			vals[i] = 0.6*vals[i-1] + 0.4*parent + 0.3*rng.NormFloat64()
		} else {
			vals[i] = parent
		}
		exog.Set(i, 0, parent)
		exog.Set(i, 1, 0.25) // amenity density, constant
	}
	s, err := timeseries.NewSeries("tampines", monthGrid(n), vals)
	require.NoError(t, err)
	return s, []string{"regional_appreciation", "amenity_mrt"}, exog
}

func TestFitARIMAXRejectsShortHistory(t *testing.T) {
	s, names, exog := areaSeries(t, 23, 1)
	_, err := FitARIMAX(s, names, exog, 0, DefaultOptions())
	require.Error(t, err)

	var insufficient *InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "tampines", insufficient.EntityID)
	assert.Equal(t, 24, insufficient.Minimum)
}

func TestARIMAXForecastShape(t *testing.T) {
	s, names, exog := areaSeries(t, 60, 2)
	m, err := FitARIMAX(s, names, exog, 0, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, names, m.ExogNames)

	future := mat.NewDense(6, 2, nil)
	for i := 0; i < 6; i++ {
		future.Set(i, 0, 4.0)
		future.Set(i, 1, 0.25)
	}
	points, err := m.Forecast(6, future)
	require.NoError(t, err)
	require.Len(t, points, 6)
	for i, p := range points {
		assert.LessOrEqual(t, p.Lower, p.Mean)
		assert.LessOrEqual(t, p.Mean, p.Upper)
		assert.Equal(t, timeseries.AddMonths(s.Months[59], i+1), p.Month)
	}

	// Bands widen with the horizon.
	first := points[0].Upper - points[0].Lower
	last := points[5].Upper - points[5].Lower
	assert.GreaterOrEqual(t, last, first)
}

func TestARIMAXSingleExogFallsBackToPureARIMA(t *testing.T) {
	s, _, exog := areaSeries(t, 48, 3)
	only := mat.DenseCopyOf(exog.Slice(0, 48, 0, 1))

	m, err := FitARIMAX(s, []string{"regional_appreciation"}, only, 0, DefaultOptions())
	require.NoError(t, err)
	assert.Empty(t, m.ExogNames)

	points, err := m.Forecast(4, nil)
	require.NoError(t, err)
	assert.Len(t, points, 4)
}

func TestARIMAXHoldoutEvaluation(t *testing.T) {
	s, names, exog := areaSeries(t, 54, 4)
	m, err := FitARIMAX(s, names, exog, 6, DefaultOptions())
	require.NoError(t, err)

	metrics, err := m.Evaluate()
	require.NoError(t, err)
	assert.Equal(t, 6, metrics.N)
	assert.GreaterOrEqual(t, metrics.DirectionalAccuracy, 0.0)
	assert.LessOrEqual(t, metrics.DirectionalAccuracy, 100.0)
}

func TestEvaluateForecastPerfectPrediction(t *testing.T) {
	obs := []float64{1, 2, 1.5, 3}
	m := EvaluateForecast(obs, obs, 0.5)

	assert.Zero(t, m.RMSE)
	assert.Zero(t, m.MAE)
	assert.Equal(t, 100.0, m.DirectionalAccuracy)
	assert.Equal(t, 4, m.N)
}

func TestEvaluateForecastOppositeDirections(t *testing.T) {
	obs := []float64{1, 2, 3}
	pred := []float64{-1, -2, -3}
	m := EvaluateForecast(obs, pred, 0)
	assert.Equal(t, 0.0, m.DirectionalAccuracy)
}

package model

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/housewatch/forecast/internal/timeseries"
)

func monthGrid(n int) []time.Time {
	out := make([]time.Time, n)
	start := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = timeseries.AddMonths(start, i)
	}
	return out
}

// trendPanel builds a panel where appreciation follows 5 + 0.1t plus small
// noise while volume and price level stay flat.
func trendPanel(t *testing.T, n int, seed int64) *timeseries.Panel {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	app := make([]float64, n)
	vol := make([]float64, n)
	price := make([]float64, n)
	for i := 0; i < n; i++ {
		app[i] = 5 + 0.1*float64(i) + 0.15*rng.NormFloat64()
		vol[i] = 100
		price[i] = 1500
	}
	p, err := timeseries.NewPanel("central", monthGrid(n), []string{"appreciation", "volume", "price_level"},
		map[string][]float64{"appreciation": app, "volume": vol, "price_level": price})
	require.NoError(t, err)
	return p
}

func TestFitVARForecastFollowsTrend(t *testing.T) {
	panel := trendPanel(t, 48, 1)
	v, err := FitVAR(panel, []string{"appreciation", "volume", "price_level"}, nil, 0, DefaultOptions())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, v.Lag, 1)

	fc, err := v.Forecast(12, nil)
	require.NoError(t, err)
	require.Len(t, fc, 3)

	points := fc["appreciation"]
	require.Len(t, points, 12)
	for i, p := range points {
		assert.LessOrEqual(t, p.Lower, p.Mean)
		assert.LessOrEqual(t, p.Mean, p.Upper)
		want := timeseries.AddMonths(panel.Months[47], i+1)
		assert.Equal(t, want, p.Month)
	}

	// Month 59 of the generating process sits at 5 + 0.1*59.
	assert.InDelta(t, 10.9, points[11].Mean, 2.0)
}

func TestFitVARInsufficientData(t *testing.T) {
	panel := trendPanel(t, 10, 2)
	_, err := FitVAR(panel, []string{"appreciation", "volume", "price_level"}, nil, 0, DefaultOptions())
	require.Error(t, err)

	var insufficient *InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, "central", insufficient.EntityID)
	assert.Equal(t, 10, insufficient.Observations)
}

func TestGrangerPValuesAreBounded(t *testing.T) {
	panel := trendPanel(t, 60, 3)
	v, err := FitVAR(panel, []string{"appreciation", "volume", "price_level"}, nil, 0, DefaultOptions())
	require.NoError(t, err)

	m, err := v.GrangerMatrix()
	require.NoError(t, err)
	for cause, effects := range m {
		for effect, p := range effects {
			require.NotEqual(t, cause, effect)
			assert.GreaterOrEqual(t, p, 0.0, "%s -> %s", cause, effect)
			assert.LessOrEqual(t, p, 1.0, "%s -> %s", cause, effect)
		}
	}
}

func TestVARHoldoutEvaluation(t *testing.T) {
	panel := trendPanel(t, 54, 4)
	v, err := FitVAR(panel, []string{"appreciation", "volume", "price_level"}, nil, 6, DefaultOptions())
	require.NoError(t, err)

	metrics, err := v.Evaluate("appreciation")
	require.NoError(t, err)
	assert.Equal(t, 6, metrics.N)
	assert.GreaterOrEqual(t, metrics.RMSE, 0.0)
	assert.GreaterOrEqual(t, metrics.DirectionalAccuracy, 0.0)
	assert.LessOrEqual(t, metrics.DirectionalAccuracy, 100.0)
}

func TestForecastDemandsFutureExogenousValues(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	n := 48
	rate := make([]float64, n)
	for i := range rate {
		rate[i] = 3 + 0.5*rng.NormFloat64()
	}
	base := trendPanel(t, n, 5)
	app, err := base.Column("appreciation")
	require.NoError(t, err)
	vol, err := base.Column("volume")
	require.NoError(t, err)
	price, err := base.Column("price_level")
	require.NoError(t, err)

	panel, err := timeseries.NewPanel("central", monthGrid(n),
		[]string{"appreciation", "volume", "price_level", "interest_rate"},
		map[string][]float64{
			"appreciation":  app.Values,
			"volume":        vol.Values,
			"price_level":   price.Values,
			"interest_rate": rate,
		})
	require.NoError(t, err)

	v, err := FitVAR(panel, []string{"appreciation", "volume", "price_level"},
		[]string{"interest_rate"}, 0, DefaultOptions())
	require.NoError(t, err)

	_, err = v.Forecast(6, nil)
	require.Error(t, err)
	assert.False(t, errors.As(err, new(*InsufficientDataError)))
}

package pipeline

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCrossValidateFoldCounts(t *testing.T) {
	data := syntheticData(t)
	cfg := testConfig()
	cfg.CrossVal.Areas = []string{"tampines"}

	res, err := CrossValidate(context.Background(), cfg, data, zerolog.Nop())
	require.NoError(t, err)

	var regionFolds, areaFolds int
	for _, f := range res.Folds {
		switch f.Level {
		case LevelRegion:
			regionFolds++
			assert.Equal(t, "east", f.EntityID)
		case LevelArea:
			areaFolds++
			assert.Equal(t, "tampines", f.EntityID)
		}
		assert.GreaterOrEqual(t, f.Fold, 1)
		assert.LessOrEqual(t, f.Fold, cfg.CrossVal.Folds)
		assert.GreaterOrEqual(t, f.Metrics.RMSE, 0.0)
		assert.GreaterOrEqual(t, f.Metrics.DirectionalAccuracy, 0.0)
		assert.LessOrEqual(t, f.Metrics.DirectionalAccuracy, 100.0)
		assert.Equal(t, cfg.CrossVal.ForecastHorizon, f.Metrics.N)
	}

	// 60 regional months admit all five folds (train ends 30..42, test +6).
	assert.Equal(t, 5, regionFolds)
	// The 40-month area admits folds ending at 30 and 33 only.
	assert.Equal(t, 2, areaFolds)

	require.Contains(t, res.Averages, "east")
	require.Contains(t, res.Averages, "tampines")
	assert.Equal(t, 5, res.Averages["east"].N)
	assert.Equal(t, 2, res.Averages["tampines"].N)
	assert.GreaterOrEqual(t, res.Averages["east"].DirectionalAccuracy, 0.0)
	assert.LessOrEqual(t, res.Averages["east"].DirectionalAccuracy, 100.0)
}

func TestCrossValidateEmptyAreaListCoversEveryPreparedArea(t *testing.T) {
	data := syntheticData(t)
	cfg := testConfig()
	cfg.CrossVal.Areas = nil

	res, err := CrossValidate(context.Background(), cfg, data, zerolog.Nop())
	require.NoError(t, err)

	// The long-history area is validated without being listed; the
	// 23-month area is too short for any fold but must not error out.
	require.Contains(t, res.Averages, "tampines")
	assert.NotContains(t, res.Averages, "bedok")
}

func TestCrossValidateUnknownAreaIsIgnored(t *testing.T) {
	data := syntheticData(t)
	cfg := testConfig()
	cfg.CrossVal.Areas = []string{"atlantis"}

	res, err := CrossValidate(context.Background(), cfg, data, zerolog.Nop())
	require.NoError(t, err)
	for _, f := range res.Folds {
		assert.NotEqual(t, LevelArea, f.Level)
	}
}

func TestCrossValidateHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := CrossValidate(ctx, testConfig(), syntheticData(t), zerolog.Nop())
	require.ErrorIs(t, err, context.Canceled)
}

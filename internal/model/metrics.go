package model

import (
	"math"
	"time"
)

// ForecastPoint is one forecast month with its 95% band. Lower <= Mean <=
// Upper always holds.
type ForecastPoint struct {
	Month time.Time
	Mean  float64
	Lower float64
	Upper float64
}

// Metrics are out-of-sample error measures over a holdout or test window.
type Metrics struct {
	RMSE                float64
	MAE                 float64
	MAPE                float64 // percent
	DirectionalAccuracy float64 // percent of months with the correct sign of change
	N                   int
}

// EvaluateForecast compares predictions against observed values.
// lastObserved is the final training-window value, used for the first
// period-over-period direction.
func EvaluateForecast(observed, predicted []float64, lastObserved float64) Metrics {
	n := len(observed)
	if len(predicted) < n {
		n = len(predicted)
	}
	if n == 0 {
		return Metrics{}
	}

	var sumSq, sumAbs, sumPct float64
	pctN := 0
	dirHits, dirN := 0, 0

	prevObs, prevPred := lastObserved, lastObserved
	for i := 0; i < n; i++ {
		err := observed[i] - predicted[i]
		sumSq += err * err
		sumAbs += math.Abs(err)
		if observed[i] != 0 {
			sumPct += math.Abs(err / observed[i])
			pctN++
		}

		obsDelta := observed[i] - prevObs
		predDelta := predicted[i] - prevPred
		if obsDelta != 0 || predDelta != 0 {
			if (obsDelta >= 0) == (predDelta >= 0) {
				dirHits++
			}
			dirN++
		}
		prevObs, prevPred = observed[i], predicted[i]
	}

	m := Metrics{
		RMSE: math.Sqrt(sumSq / float64(n)),
		MAE:  sumAbs / float64(n),
		N:    n,
	}
	if pctN > 0 {
		m.MAPE = 100 * sumPct / float64(pctN)
	}
	if dirN > 0 {
		m.DirectionalAccuracy = 100 * float64(dirHits) / float64(dirN)
	}
	return m
}

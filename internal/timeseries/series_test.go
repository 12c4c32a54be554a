package timeseries

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func months(n int) []time.Time {
	out := make([]time.Time, n)
	start := time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i := range out {
		out[i] = AddMonths(start, i)
	}
	return out
}

func TestNewSeriesRejectsGaps(t *testing.T) {
	grid := months(5)
	grid[3] = AddMonths(grid[3], 1) // skip a month

	_, err := NewSeries("x", grid, make([]float64, 5))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "month grid broken")
}

func TestNewSeriesLengthMismatch(t *testing.T) {
	_, err := NewSeries("x", months(4), make([]float64, 5))
	require.Error(t, err)
}

func TestMonthNormalization(t *testing.T) {
	loc := time.FixedZone("SGT", 8*3600)
	mid := time.Date(2024, time.March, 17, 15, 4, 5, 0, loc)

	got := Month(mid)
	assert.Equal(t, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), got)
}

func TestMonthRange(t *testing.T) {
	first := time.Date(2023, time.November, 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)

	grid := MonthRange(first, last)
	require.Len(t, grid, 4)
	assert.Equal(t, first, grid[0])
	assert.Equal(t, last, grid[3])
}

func TestDiffIntegrateRoundTrip(t *testing.T) {
	vals := []float64{10, 12, 11.5, 14, 13, 13.2}
	s, err := NewSeries("x", months(len(vals)), vals)
	require.NoError(t, err)

	d := s.Diff()
	require.Equal(t, len(vals)-1, d.Len())

	back := Integrate(vals[0], d.Values)
	require.Len(t, back, len(vals)-1)
	for i, want := range vals[1:] {
		assert.InDelta(t, want, back[i], 1e-12)
	}
}

func TestStatsIgnoreNaN(t *testing.T) {
	vals := []float64{1, math.NaN(), 3, math.NaN(), 5}
	s, err := NewSeries("x", months(len(vals)), vals)
	require.NoError(t, err)

	assert.InDelta(t, 3.0, s.Mean(), 1e-12)
	assert.InDelta(t, 3.0, s.Median(), 1e-12)
	assert.InDelta(t, 2.0, s.Std(), 1e-12)
	assert.True(t, s.HasNaN())
}

func TestMedianAveragesMiddlePair(t *testing.T) {
	assert.InDelta(t, 2.5, Median([]float64{4, 1, 2, 3}), 1e-12)
	assert.InDelta(t, 2.0, Median([]float64{3, 1, 2}), 1e-12)
	assert.True(t, math.IsNaN(Median(nil)))
}

func TestTail(t *testing.T) {
	vals := []float64{1, 2, 3, 4, 5}
	s, err := NewSeries("x", months(len(vals)), vals)
	require.NoError(t, err)

	assert.Equal(t, []float64{4, 5}, s.Tail(2).Values)
	assert.Equal(t, vals, s.Tail(10).Values)
}

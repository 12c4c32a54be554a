// Package timeseries provides the monthly series and panel types shared by
// the preparation, model and pipeline layers.
package timeseries

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Series is a single monthly time series. Months are a gap-free,
// strictly increasing grid of first-of-month UTC timestamps.
type Series struct {
	Name   string
	Months []time.Time
	Values []float64
}

// NewSeries builds a Series after validating that months and values have
// equal length and the month grid is strictly increasing with no gaps.
func NewSeries(name string, months []time.Time, values []float64) (*Series, error) {
	if len(months) != len(values) {
		return nil, fmt.Errorf("series %s: %d months but %d values", name, len(months), len(values))
	}
	if err := checkMonthGrid(months); err != nil {
		return nil, fmt.Errorf("series %s: %w", name, err)
	}
	return &Series{Name: name, Months: months, Values: values}, nil
}

// Month normalizes t to the first day of its month in UTC.
func Month(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// AddMonths returns the month grid point n months after m.
func AddMonths(m time.Time, n int) time.Time {
	return Month(m.AddDate(0, n, 0))
}

// MonthRange returns the inclusive monthly grid from first to last.
func MonthRange(first, last time.Time) []time.Time {
	first, last = Month(first), Month(last)
	var out []time.Time
	for m := first; !m.After(last); m = AddMonths(m, 1) {
		out = append(out, m)
	}
	return out
}

func checkMonthGrid(months []time.Time) error {
	for i := 1; i < len(months); i++ {
		want := AddMonths(months[i-1], 1)
		if !months[i].Equal(want) {
			return fmt.Errorf("month grid broken at index %d: %s follows %s",
				i, months[i].Format("2006-01"), months[i-1].Format("2006-01"))
		}
	}
	return nil
}

// Len returns the number of observations.
func (s *Series) Len() int { return len(s.Values) }

// clean returns a copy of the values with NaN entries removed.
func (s *Series) clean() []float64 {
	out := make([]float64, 0, len(s.Values))
	for _, v := range s.Values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// Mean returns the arithmetic mean of the non-NaN values.
func (s *Series) Mean() float64 {
	vals := s.clean()
	if len(vals) == 0 {
		return math.NaN()
	}
	return stat.Mean(vals, nil)
}

// Std returns the sample standard deviation of the non-NaN values.
func (s *Series) Std() float64 {
	vals := s.clean()
	if len(vals) == 0 {
		return math.NaN()
	}
	if len(vals) < 2 {
		return 0
	}
	return stat.StdDev(vals, nil)
}

// Median returns the median of values, averaging the middle pair on even
// counts. NaN for an empty slice.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}

// Median returns the median of the non-NaN values, averaging the middle
// pair on even counts.
func (s *Series) Median() float64 {
	return Median(s.clean())
}

// HasNaN reports whether any value is NaN.
func (s *Series) HasNaN() bool {
	for _, v := range s.Values {
		if math.IsNaN(v) {
			return true
		}
	}
	return false
}

// Diff returns the first difference (length Len()-1), months aligned to the
// later observation of each pair.
func (s *Series) Diff() *Series {
	if s.Len() < 2 {
		return &Series{Name: s.Name, Months: nil, Values: nil}
	}
	months := make([]time.Time, s.Len()-1)
	values := make([]float64, s.Len()-1)
	for i := 1; i < s.Len(); i++ {
		months[i-1] = s.Months[i]
		values[i-1] = s.Values[i] - s.Values[i-1]
	}
	return &Series{Name: s.Name, Months: months, Values: values}
}

// Integrate undoes one round of differencing: given the last observed level
// before the diffs, it returns cumulative levels.
func Integrate(last float64, diffs []float64) []float64 {
	out := make([]float64, len(diffs))
	run := last
	for i, d := range diffs {
		run += d
		out[i] = run
	}
	return out
}

// Slice returns the sub-series covering observations [i, j).
func (s *Series) Slice(i, j int) *Series {
	return &Series{Name: s.Name, Months: s.Months[i:j], Values: s.Values[i:j]}
}

// Tail returns the last n observations (or the whole series if shorter).
func (s *Series) Tail(n int) *Series {
	if n >= s.Len() {
		return s
	}
	return s.Slice(s.Len()-n, s.Len())
}

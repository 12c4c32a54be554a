package pipeline

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/housewatch/forecast/internal/timeseries"
)

// RegionalExogColumn is the area exogenous column fed from the parent
// region's appreciation (history for fitting, forecast for the horizon).
const RegionalExogColumn = "regional_appreciation"

func monthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}

// alignAreaInputs intersects an area panel with its parent region's month
// grid and assembles the area's target series plus the exogenous matrix
// [regional_appreciation | amenity columns…], all on the shared grid.
func alignAreaInputs(area, regional *timeseries.Panel) (*timeseries.Series, []string, *mat.Dense, error) {
	regApp, err := regional.Column("appreciation")
	if err != nil {
		return nil, nil, nil, err
	}
	areaApp, err := area.Column("appreciation")
	if err != nil {
		return nil, nil, nil, err
	}

	start := area.Months[0]
	if regional.Months[0].After(start) {
		start = regional.Months[0]
	}
	end := area.Months[len(area.Months)-1]
	if regional.Months[len(regional.Months)-1].Before(end) {
		end = regional.Months[len(regional.Months)-1]
	}
	if start.After(end) {
		return nil, nil, nil, fmt.Errorf("area %s: no months overlap parent region %s",
			area.EntityID, regional.EntityID)
	}

	aOff := monthsBetween(area.Months[0], start)
	rOff := monthsBetween(regional.Months[0], start)
	count := monthsBetween(start, end) + 1

	series := areaApp.Slice(aOff, aOff+count)
	series.Name = area.EntityID

	exogNames := []string{RegionalExogColumn}
	for _, col := range area.Columns() {
		if col != "appreciation" {
			exogNames = append(exogNames, col)
		}
	}

	exog := mat.NewDense(count, len(exogNames), nil)
	for i := 0; i < count; i++ {
		exog.Set(i, 0, regApp.Values[rOff+i])
		for j := 1; j < len(exogNames); j++ {
			v, err := area.At(aOff+i, exogNames[j])
			if err != nil {
				return nil, nil, nil, err
			}
			exog.Set(i, j, v)
		}
	}
	return series, exogNames, exog, nil
}

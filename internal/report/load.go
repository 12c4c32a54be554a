// Package report reads the pipeline's raw inputs and writes its CSV
// outputs: forecasts, validation folds and the run manifest.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/housewatch/forecast/internal/prep"
	"github.com/housewatch/forecast/internal/timeseries"
)

const monthLayout = "2006-01"

// LoadTransactionsCSV reads cleaned resale records. Expected columns:
// area_id, month (YYYY-MM), price, appreciation.
func LoadTransactionsCSV(path string) ([]prep.Transaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) != 4 {
		return nil, fmt.Errorf("%s: expected 4 columns (area_id, month, price, appreciation), got %d", path, len(header))
	}

	var out []prep.Transaction
	row := 1
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", row+1, err)
		}
		row++
		if len(record) == 1 && record[0] == "" {
			continue
		}
		if len(record) != 4 {
			return nil, fmt.Errorf("row %d: expected 4 columns, got %d", row, len(record))
		}

		month, err := time.Parse(monthLayout, record[1])
		if err != nil {
			return nil, fmt.Errorf("row %d: parse month %q: %w", row, record[1], err)
		}
		price, err := strconv.ParseFloat(record[2], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: parse price %q: %w", row, record[2], err)
		}
		app, err := strconv.ParseFloat(record[3], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: parse appreciation %q: %w", row, record[3], err)
		}
		out = append(out, prep.Transaction{
			AreaID:       record[0],
			Month:        timeseries.Month(month.UTC()),
			Price:        price,
			Appreciation: app,
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no data rows in %s", path)
	}
	return out, nil
}

// LoadMacroCSV reads macro indicators in long format. Expected columns:
// name, frequency (monthly|quarterly), month (YYYY-MM), value. Rows must be
// grouped by indicator name; within a group, dates ascending.
func LoadMacroCSV(path string) ([]prep.MacroSeries, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) != 4 {
		return nil, fmt.Errorf("%s: expected 4 columns (name, frequency, month, value), got %d", path, len(header))
	}

	var (
		out     []prep.MacroSeries
		current *prep.MacroSeries
	)
	row := 1
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", row+1, err)
		}
		row++
		if len(record) == 1 && record[0] == "" {
			continue
		}
		if len(record) != 4 {
			return nil, fmt.Errorf("row %d: expected 4 columns, got %d", row, len(record))
		}

		freq, err := parseFrequency(record[1])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}
		month, err := time.Parse(monthLayout, record[2])
		if err != nil {
			return nil, fmt.Errorf("row %d: parse month %q: %w", row, record[2], err)
		}
		value, err := strconv.ParseFloat(record[3], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: parse value %q: %w", row, record[3], err)
		}

		if current == nil || current.Name != record[0] {
			out = append(out, prep.MacroSeries{Name: record[0], Frequency: freq})
			current = &out[len(out)-1]
		}
		current.Dates = append(current.Dates, timeseries.Month(month.UTC()))
		current.Values = append(current.Values, value)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no data rows in %s", path)
	}
	return out, nil
}

// LoadAmenitiesCSV reads static amenity densities. Expected columns:
// area_id, amenity, density.
func LoadAmenitiesCSV(path string) (map[string]map[string]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) != 3 {
		return nil, fmt.Errorf("%s: expected 3 columns (area_id, amenity, density), got %d", path, len(header))
	}

	out := make(map[string]map[string]float64)
	row := 1
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", row+1, err)
		}
		row++
		if len(record) == 1 && record[0] == "" {
			continue
		}
		if len(record) != 3 {
			return nil, fmt.Errorf("row %d: expected 3 columns, got %d", row, len(record))
		}
		density, err := strconv.ParseFloat(record[2], 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: parse density %q: %w", row, record[2], err)
		}
		if out[record[0]] == nil {
			out[record[0]] = make(map[string]float64)
		}
		out[record[0]][record[1]] = density
	}
	return out, nil
}

func parseFrequency(s string) (prep.Frequency, error) {
	switch s {
	case "monthly":
		return prep.Monthly, nil
	case "quarterly":
		return prep.Quarterly, nil
	default:
		return 0, fmt.Errorf("unknown frequency %q", s)
	}
}

package report

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/housewatch/forecast/internal/model"
	"github.com/housewatch/forecast/internal/pipeline"
	"github.com/housewatch/forecast/internal/prep"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadTransactionsCSV(t *testing.T) {
	path := writeFile(t, "transactions.csv", `area_id,month,price,appreciation
tampines,2023-01,485000,4.2
bedok,2023-02,512000,-1.5
`)

	txns, err := LoadTransactionsCSV(path)
	require.NoError(t, err)
	require.Len(t, txns, 2)

	assert.Equal(t, "tampines", txns[0].AreaID)
	assert.Equal(t, time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC), txns[0].Month)
	assert.Equal(t, 485000.0, txns[0].Price)
	assert.Equal(t, 4.2, txns[0].Appreciation)
	assert.Equal(t, -1.5, txns[1].Appreciation)
}

func TestLoadTransactionsCSVRejectsBadRows(t *testing.T) {
	path := writeFile(t, "transactions.csv", `area_id,month,price,appreciation
tampines,not-a-month,485000,4.2
`)
	_, err := LoadTransactionsCSV(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse month")

	empty := writeFile(t, "empty.csv", "area_id,month,price,appreciation\n")
	_, err = LoadTransactionsCSV(empty)
	require.Error(t, err)
}

func TestLoadMacroCSVGroupsByName(t *testing.T) {
	path := writeFile(t, "macro.csv", `name,frequency,month,value
interest_rate,monthly,2023-01,3.1
interest_rate,monthly,2023-02,3.2
gdp_growth,quarterly,2023-01,2.5
`)

	series, err := LoadMacroCSV(path)
	require.NoError(t, err)
	require.Len(t, series, 2)

	assert.Equal(t, "interest_rate", series[0].Name)
	assert.Equal(t, prep.Monthly, series[0].Frequency)
	assert.Len(t, series[0].Values, 2)

	assert.Equal(t, "gdp_growth", series[1].Name)
	assert.Equal(t, prep.Quarterly, series[1].Frequency)
}

func TestLoadMacroCSVUnknownFrequency(t *testing.T) {
	path := writeFile(t, "macro.csv", `name,frequency,month,value
interest_rate,weekly,2023-01,3.1
`)
	_, err := LoadMacroCSV(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown frequency")
}

func TestLoadAmenitiesCSV(t *testing.T) {
	path := writeFile(t, "amenities.csv", `area_id,amenity,density
tampines,mrt,0.8
tampines,school,1.2
bedok,mrt,0.5
`)

	out, err := LoadAmenitiesCSV(path)
	require.NoError(t, err)
	assert.Equal(t, 0.8, out["tampines"]["mrt"])
	assert.Equal(t, 1.2, out["tampines"]["school"])
	assert.Equal(t, 0.5, out["bedok"]["mrt"])
}

func TestWriteForecastCSV(t *testing.T) {
	month := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	rows := []pipeline.ForecastRow{
		{EntityID: "east", Level: pipeline.LevelRegion, Month: month, Mean: 5.1, Lower: 3.0, Upper: 7.2, Scenario: "baseline"},
		{EntityID: "tampines", Level: pipeline.LevelArea, Month: month, Mean: 4.4, Lower: 2.1, Upper: 6.7, Scenario: "baseline"},
	}

	path := filepath.Join(t.TempDir(), "forecast.csv")
	require.NoError(t, WriteForecastCSV(path, rows))

	records := readCSV(t, path)
	require.Len(t, records, 3)
	assert.Equal(t, []string{"entity_id", "entity_level", "month", "forecast_mean", "ci_lower_95", "ci_upper_95", "scenario"}, records[0])
	assert.Equal(t, "east", records[1][0])
	assert.Equal(t, "2026-03", records[1][2])
	assert.Equal(t, "tampines", records[2][0])
}

func TestWriteManifestCSV(t *testing.T) {
	m := pipeline.Manifest{
		RunID:       "run-1",
		Scenario:    "bearish",
		GeneratedAt: time.Date(2026, time.August, 30, 12, 0, 0, 0, time.UTC),
		Entries: []pipeline.ManifestEntry{
			{EntityID: "east", Level: pipeline.LevelRegion, Status: pipeline.StatusFitted, Reason: "lag=2"},
			{EntityID: "bedok", Level: pipeline.LevelArea, Status: pipeline.StatusSkipped, Reason: "too short"},
		},
	}

	path := filepath.Join(t.TempDir(), "manifest.csv")
	require.NoError(t, WriteManifestCSV(path, m))

	records := readCSV(t, path)
	require.Len(t, records, 3)
	assert.Equal(t, "run-1", records[1][0])
	assert.Equal(t, "bearish", records[1][1])
	assert.Equal(t, "fitted", records[1][5])
	assert.Equal(t, "skipped", records[2][5])
}

func TestWriteValidationCSV(t *testing.T) {
	folds := []pipeline.FoldResult{
		{
			EntityID: "east",
			Level:    pipeline.LevelRegion,
			Fold:     1,
			TrainEnd: time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC),
			Metrics:  model.Metrics{RMSE: 0.4, MAE: 0.3, MAPE: 8.1, DirectionalAccuracy: 83.3, N: 6},
		},
	}

	path := filepath.Join(t.TempDir(), "validation.csv")
	require.NoError(t, WriteValidationCSV(path, folds))

	records := readCSV(t, path)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"entity_id", "entity_level", "fold_index", "train_end", "rmse", "mae", "mape", "directional_accuracy", "n"}, records[0])
	assert.Equal(t, "east", records[1][0])
	assert.Equal(t, "1", records[1][2])
	assert.Equal(t, "2024-06", records[1][3])
	assert.Equal(t, "6", records[1][8])
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"time"

	"github.com/housewatch/forecast/internal/pipeline"
)

// WriteForecastCSV writes forecast rows in long format.
// Columns: entity_id, entity_level, month, forecast_mean, ci_lower_95,
// ci_upper_95, scenario.
func WriteForecastCSV(path string, rows []pipeline.ForecastRow) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"entity_id", "entity_level", "month", "forecast_mean", "ci_lower_95", "ci_upper_95", "scenario"}
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{
			r.EntityID,
			r.Level,
			r.Month.Format(monthLayout),
			fmt.Sprintf("%f", r.Mean),
			fmt.Sprintf("%f", r.Lower),
			fmt.Sprintf("%f", r.Upper),
			r.Scenario,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	return writer.Error()
}

// WriteValidationCSV writes expanding-window fold scores.
// Columns: entity_id, entity_level, fold_index, train_end, rmse, mae, mape,
// directional_accuracy, n.
func WriteValidationCSV(path string, folds []pipeline.FoldResult) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"entity_id", "entity_level", "fold_index", "train_end", "rmse", "mae", "mape", "directional_accuracy", "n"}
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, f := range folds {
		record := []string{
			f.EntityID,
			f.Level,
			fmt.Sprintf("%d", f.Fold),
			f.TrainEnd.Format(monthLayout),
			fmt.Sprintf("%f", f.Metrics.RMSE),
			fmt.Sprintf("%f", f.Metrics.MAE),
			fmt.Sprintf("%f", f.Metrics.MAPE),
			fmt.Sprintf("%f", f.Metrics.DirectionalAccuracy),
			fmt.Sprintf("%d", f.Metrics.N),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	return writer.Error()
}

// WriteManifestCSV writes one row per entity outcome. The run-level counts
// are recoverable from the status column, so only the entries are persisted.
// Columns: run_id, scenario, generated_at, entity_id, entity_level, status,
// reason.
func WriteManifestCSV(path string, m pipeline.Manifest) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"run_id", "scenario", "generated_at", "entity_id", "entity_level", "status", "reason"}
	if err := writer.Write(header); err != nil {
		return err
	}
	generated := m.GeneratedAt.Format(time.RFC3339)
	for _, e := range m.Entries {
		record := []string{
			m.RunID,
			m.Scenario,
			generated,
			e.EntityID,
			e.Level,
			e.Status.String(),
			e.Reason,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	return writer.Error()
}

package main

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/housewatch/forecast/internal/pipeline"
	"github.com/housewatch/forecast/internal/report"
)

func runCmd(flags *inputFlags) *cobra.Command {
	var scenarioName string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fit both stages and write scenario forecasts",
		RunE: func(cmd *cobra.Command, args []string) error {
			// Reject an unknown scenario before any loading or fitting.
			scenario, err := pipeline.ParseScenario(scenarioName)
			if err != nil {
				return err
			}
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			data, err := flags.prepare(cfg, log.Logger)
			if err != nil {
				return err
			}

			res, err := pipeline.Run(cmd.Context(), cfg, scenario, data, log.Logger)
			if err != nil {
				return err
			}

			forecastPath := filepath.Join(flags.outDir, fmt.Sprintf("forecast_%s.csv", scenario))
			if err := report.WriteForecastCSV(forecastPath, res.Rows); err != nil {
				return err
			}
			manifestPath := filepath.Join(flags.outDir, fmt.Sprintf("manifest_%s.csv", scenario))
			if err := report.WriteManifestCSV(manifestPath, res.Manifest); err != nil {
				return err
			}

			log.Info().
				Str("run_id", res.Manifest.RunID).
				Str("forecast", forecastPath).
				Str("manifest", manifestPath).
				Msg("outputs written")
			return nil
		},
	}
	cmd.Flags().StringVar(&scenarioName, "scenario", "baseline",
		"baseline|bullish|bearish|policy_shock")
	return cmd
}

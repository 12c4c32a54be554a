package main

import (
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/housewatch/forecast/internal/pipeline"
	"github.com/housewatch/forecast/internal/report"
)

func crossvalCmd(flags *inputFlags) *cobra.Command {
	var folds int
	cmd := &cobra.Command{
		Use:   "crossval",
		Short: "Score both stages with expanding-window validation",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if folds > 0 {
				cfg.CrossVal.Folds = folds
			}
			data, err := flags.prepare(cfg, log.Logger)
			if err != nil {
				return err
			}

			res, err := pipeline.CrossValidate(cmd.Context(), cfg, data, log.Logger)
			if err != nil {
				return err
			}

			path := filepath.Join(flags.outDir, "validation.csv")
			if err := report.WriteValidationCSV(path, res.Folds); err != nil {
				return err
			}
			log.Info().Str("validation", path).Int("folds", len(res.Folds)).Msg("outputs written")
			return nil
		},
	}
	cmd.Flags().IntVar(&folds, "folds", 0, "override the configured fold count")
	return cmd
}

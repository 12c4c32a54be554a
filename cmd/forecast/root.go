package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/housewatch/forecast/internal/config"
	"github.com/housewatch/forecast/internal/geo"
	"github.com/housewatch/forecast/internal/prep"
	"github.com/housewatch/forecast/internal/report"
)

type inputFlags struct {
	configPath   string
	transactions string
	macro        string
	amenities    string
	outDir       string
	logLevel     string
}

func Execute(ctx context.Context) error {
	flags := &inputFlags{}
	root := &cobra.Command{
		Use:   "forecast",
		Short: "Two-stage residential price appreciation forecasting",
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "yaml config path, defaults apply when empty")
	pf.StringVar(&flags.transactions, "transactions", "transactions.csv", "cleaned resale transactions csv")
	pf.StringVar(&flags.macro, "macro", "macro.csv", "macro indicators csv")
	pf.StringVar(&flags.amenities, "amenities", "", "amenity densities csv, optional")
	pf.StringVar(&flags.outDir, "out-dir", ".", "output directory")
	pf.StringVar(&flags.logLevel, "log-level", "", "override the configured log level")

	root.AddCommand(runCmd(flags), crossvalCmd(flags))
	return root.ExecuteContext(ctx)
}

// load resolves the configuration and sets the global log level.
func (f *inputFlags) load() (config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		var err error
		cfg, err = config.Load(f.configPath)
		if err != nil {
			return cfg, err
		}
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return cfg, fmt.Errorf("log level %q: %w", cfg.LogLevel, err)
	}
	zerolog.SetGlobalLevel(lvl)
	return cfg, nil
}

// prepare loads the three input files and builds the monthly panels.
func (f *inputFlags) prepare(cfg config.Config, logger zerolog.Logger) (*prep.Result, error) {
	txns, err := report.LoadTransactionsCSV(f.transactions)
	if err != nil {
		return nil, err
	}
	macro, err := report.LoadMacroCSV(f.macro)
	if err != nil {
		return nil, err
	}
	var amenities map[string]map[string]float64
	if f.amenities != "" {
		amenities, err = report.LoadAmenitiesCSV(f.amenities)
		if err != nil {
			return nil, err
		}
	}
	return prep.Build(cfg.Prep, geo.NewPartition(), prep.Inputs{
		Transactions: txns,
		Macro:        macro,
		Amenities:    amenities,
	}, logger)
}

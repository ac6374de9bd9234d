package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/dashcsv/internal/config"
	"github.com/nao1215/dashcsv/internal/consolidate"
)

// NewConsolidateCmd creates the consolidate command.
func NewConsolidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Merge exported CSV files into one file per report",
		Long: `Consolidate scans the export directory for CSV files, groups them by
report (the part of the file name before " - "), and writes one CSV file
per report to the output directory.

Every row gets a "date" column holding the name of the directory its file
was found in, which is the export date for dated exports. Files of one
report may have different columns; the output has the union of them.
Values are trimmed and thousands separators are removed.

Examples:
  # Merge downloads/*/*.csv into analysis_output/
  dashcsv consolidate

  # Merge another tree with more parallelism
  dashcsv consolidate --input exports --output merged --concurrency 8`,
		Args: cobra.NoArgs,
		RunE: runConsolidateCmd,
	}

	cmd.Flags().StringP("input", "i", config.DefaultOutDir, "Directory tree holding the exported CSV files")
	cmd.Flags().String("output", config.DefaultConsolidateOutDir, "Directory the merged files are written to")
	cmd.Flags().IntP("concurrency", "n", config.DefaultConcurrency, "Number of reports merged in parallel")

	return cmd
}

// runConsolidateCmd executes the consolidate command.
func runConsolidateCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConsolidateConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.ValidateConsolidate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := newLogger(cmd, cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runConsolidate(ctx, cmd, cfg, logger)
}

// buildConsolidateConfig creates a Config from the configuration file and
// flags. Flags only override the file when given.
func buildConsolidateConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()

	if flags.Changed("input") || cfg.ConsolidateInput == "" {
		if cfg.ConsolidateInput, err = flags.GetString("input"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("output") || cfg.ConsolidateOutput == "" {
		if cfg.ConsolidateOutput, err = flags.GetString("output"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("concurrency") {
		if cfg.Concurrency, err = flags.GetInt("concurrency"); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// runConsolidate merges the reports, records the run and prints its report.
// Groups that failed are reported but do not fail the command.
func runConsolidate(ctx context.Context, cmd *cobra.Command, cfg *config.Config, logger *slog.Logger) error {
	ledger := openLedger(cfg, logger)
	defer closeLedger(ledger, logger)

	w, closeReport, err := newReportWriter(cmd, cfg, false)
	if err != nil {
		return err
	}
	defer closeReport()

	progress := progressOutput(cmd, cfg)
	fmt.Fprintf(progress, "Consolidating %s into %s...\n", cfg.ConsolidateInput, cfg.ConsolidateOutput)

	engine := consolidate.New(cfg.ConsolidateInput, cfg.ConsolidateOutput,
		consolidate.WithLogger(logger),
		consolidate.WithConcurrency(cfg.Concurrency),
	)
	run, err := engine.Run(ctx)
	if run == nil {
		return err
	}

	fmt.Fprintf(progress, "Finished in %s: %d report(s) from %d file(s)\n\n",
		run.Elapsed().Round(time.Millisecond), len(run.Groups), run.FilesFound)

	recordRun(ctx, ledger, logger, run.ID, func(ctx context.Context) error {
		return ledger.SaveConsolidationRun(ctx, run)
	})
	if _, werr := w.WriteConsolidation(run); werr != nil {
		logger.Error("writing report failed", "run", run.ID, "error", werr)
	}
	return err
}

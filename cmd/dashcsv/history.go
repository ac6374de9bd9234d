package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/nao1215/dashcsv/internal/config"
	"github.com/nao1215/dashcsv/internal/database"
	"github.com/nao1215/dashcsv/internal/log"
)

// defaultHistoryLimit is the number of runs listed without --limit.
const defaultHistoryLimit = 20

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded export and consolidation runs",
		Long: `History lists the runs recorded in the ledger, newest first.

With --run it shows one run in full: every panel attempt of an export, or
every report of a consolidation. A unique prefix of the run ID is enough.

Examples:
  # The last 20 runs
  dashcsv history

  # Every run as JSON
  dashcsv history --limit 0 --json

  # One run as Markdown
  dashcsv history --run 4b8e0f3a --markdown`,
		Args: cobra.NoArgs,
		RunE: runHistoryCmd,
	}

	cmd.Flags().IntP("limit", "l", defaultHistoryLimit, "Number of runs to list (0 lists every run)")
	cmd.Flags().StringP("run", "r", "", "Show the run with this ID or ID prefix")

	return cmd
}

// runHistoryCmd executes the history command.
func runHistoryCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.ValidateHistory(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}
	runID, err := cmd.Flags().GetString("run")
	if err != nil {
		return err
	}

	// The ledger is opened without creating it: no ledger means no runs.
	ledger, err := database.Open(cfg.DBDir, database.Options{EnableWAL: true})
	if err != nil {
		return fmt.Errorf("no run history in %s: %w", cfg.DBDir, err)
	}
	logger := newLogger(cmd, cfg)
	defer closeLedger(ledger, logger)

	if runID != "" {
		return showRun(cmd, cfg, ledger, runID)
	}

	runs, err := ledger.ListRuns(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if cfg.JSONReport {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}
	return writeRunList(cmd.OutOrStdout(), runs, time.Now())
}

// showRun writes one run with the report writer of the chosen format.
func showRun(cmd *cobra.Command, cfg *config.Config, ledger *database.Ledger, id string) error {
	d, err := ledger.GetRun(cmd.Context(), id)
	if err != nil {
		return err
	}

	w, closeReport, err := newReportWriter(cmd, cfg, false)
	if err != nil {
		return err
	}
	defer closeReport()

	switch d.Kind {
	case database.KindConsolidate:
		_, err = w.WriteConsolidation(d.ConsolidationRun())
	default:
		_, err = w.WriteExport(d.ExportRun())
	}
	return err
}

// writeRunList writes one line per run. Targets are shown with
// credentials masked.
func writeRunList(out io.Writer, runs []database.RunSummary, now time.Time) error {
	if len(runs) == 0 {
		_, err := fmt.Fprintln(out, "No runs recorded yet.")
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tSTARTED\tDATE\tOK\tSKIPPED\tFAILED\tTARGET")
	for _, r := range runs {
		date := r.Date
		if date == "" {
			date = "-"
		}
		target, _ := log.MaskURL(r.Target)
		if r.Error != "" {
			target += " (error: " + r.Error + ")"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			shortID(r.ID),
			r.Kind,
			humanize.RelTime(r.StartedAt, now, "ago", "from now"),
			date,
			r.Succeeded,
			r.Skipped,
			r.Failed,
			target,
		)
	}
	return tw.Flush()
}

// shortID returns the first block of a UUID, which is what --run expects
// in practice.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

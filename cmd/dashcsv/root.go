package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for dashcsv.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dashcsv",
		Short: "Export dashboard panels to CSV and consolidate the exports",
		Long: `dashcsv drives a browser through a dashboard, exports the CSV data of
every panel, and merges the files exported on different days into one
table per report, tagging each row with the date it was exported for.

Every run is recorded in a local ledger (see "dashcsv history").`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	pf := cmd.PersistentFlags()
	pf.BoolP("verbose", "v", false, "Enable verbose logging")
	pf.Bool("log-json", false, "Write logs as JSON")
	pf.StringP("config", "c", "",
		"Configuration file path (default: .dashcsv in current or home directory)")
	pf.String("db-dir", "", "Directory of the run ledger (default: XDG data directory)")
	pf.Bool("no-ledger", false, "Do not record runs in the ledger")
	pf.BoolP("json", "j", false, "Output JSON report (mutually exclusive with --markdown)")
	pf.BoolP("markdown", "m", false, "Output Markdown report (mutually exclusive with --json)")
	pf.String("report-file", "",
		"Write the run report to the specified file (creates directories if needed)")

	cmd.AddCommand(NewExportCmd())
	cmd.AddCommand(NewConsolidateCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

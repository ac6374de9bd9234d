package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nao1215/dashcsv/internal/config"
	"github.com/nao1215/dashcsv/internal/database"
	"github.com/nao1215/dashcsv/internal/log"
	"github.com/nao1215/dashcsv/internal/report"
)

// boolFlag reads a flag from the command or, when the command is run on
// its own, from the root's persistent flags.
func boolFlag(cmd *cobra.Command, name string) bool {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetBool(name)
		if err != nil {
			return false
		}
	}
	return v
}

// stringFlag is the string counterpart of boolFlag.
func stringFlag(cmd *cobra.Command, name string) string {
	v, err := cmd.Flags().GetString(name)
	if err != nil {
		v, err = cmd.Root().PersistentFlags().GetString(name)
		if err != nil {
			return ""
		}
	}
	return v
}

// loadConfig builds a Config from the defaults, the configuration file and
// the global flags. Command specific flags are applied by the caller.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()

	// An explicitly given file must exist. Without one, a missing file
	// means defaults.
	cfg.ConfigFilePath = stringFlag(cmd, "config")
	if path := config.FindConfigFile(cfg.ConfigFilePath); path != "" {
		f, err := config.LoadConfigFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
		cfg.ApplyFile(f)
	} else if cfg.ConfigFilePath != "" {
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	}

	cfg.Verbose = boolFlag(cmd, "verbose")
	cfg.JSONReport = boolFlag(cmd, "json")
	cfg.MarkdownReport = boolFlag(cmd, "markdown")
	cfg.ReportFile = stringFlag(cmd, "report-file")
	if dir := stringFlag(cmd, "db-dir"); dir != "" {
		cfg.DBDir = dir
	}
	if boolFlag(cmd, "no-ledger") {
		cfg.SaveToDB = false
	}
	return cfg, nil
}

// newLogger creates the structured logger for a command. Logs go to
// stderr so that reports on stdout stay machine readable.
func newLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	return log.New(cmd.ErrOrStderr(), log.Options{
		Verbose: cfg.Verbose,
		JSON:    boolFlag(cmd, "log-json"),
	})
}

// openLedger opens the run ledger. It returns nil when the ledger is
// disabled or cannot be opened; a broken ledger never stops a run.
func openLedger(cfg *config.Config, logger *slog.Logger) *database.Ledger {
	if !cfg.SaveToDB {
		return nil
	}
	l, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		logger.Warn("run ledger unavailable, runs will not be recorded", "dir", cfg.DBDir, "error", err)
		return nil
	}
	logger.Debug("run ledger opened", "path", l.Path())
	return l
}

// closeLedger closes l if it is open.
func closeLedger(l *database.Ledger, logger *slog.Logger) {
	if l == nil {
		return
	}
	if err := l.Close(); err != nil {
		logger.Warn("closing run ledger failed", "error", err)
	}
}

// progressOutput is where progress lines go: stdout, unless a JSON report
// is printed there.
func progressOutput(cmd *cobra.Command, cfg *config.Config) io.Writer {
	if cfg.JSONReport && cfg.ReportFile == "" {
		return cmd.ErrOrStderr()
	}
	return cmd.OutOrStdout()
}

// newReportWriter returns the writer for run reports in the requested
// format. With --report-file the report goes to that file and a brief text
// summary still goes to stdout. A brief text report lists only problems.
// The returned close function must be called when the command is done.
func newReportWriter(cmd *cobra.Command, cfg *config.Config, brief bool) (report.Writer, func() error, error) {
	if cfg.ReportFile == "" {
		return formatWriter(cmd.OutOrStdout(), cfg, brief), func() error { return nil }, nil
	}

	dir := filepath.Dir(cfg.ReportFile)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, nil, fmt.Errorf("failed to create report directory: %w", err)
		}
	}
	// Reports carry dashboard URLs; keep them private to the owner.
	f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create report file: %w", err)
	}

	w := report.NewMultiWriter(
		formatWriter(f, cfg, false),
		report.NewTextWriter(cmd.OutOrStdout(), report.WithOnlyProblems(true)),
	)
	return w, f.Close, nil
}

func formatWriter(output io.Writer, cfg *config.Config, brief bool) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewJSONWriter(output, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(output)
	default:
		return report.NewTextWriter(output, report.WithOnlyProblems(brief))
	}
}

// recordRun saves a run with save, logging instead of failing.
func recordRun(ctx context.Context, l *database.Ledger, logger *slog.Logger, id string, save func(context.Context) error) {
	if l == nil {
		return
	}
	// The run may have ended by cancellation; it is still worth recording.
	if err := save(context.WithoutCancel(ctx)); err != nil {
		logger.Warn("recording run failed", "run", id, "error", err)
		return
	}
	logger.Debug("run recorded", "run", id)
}

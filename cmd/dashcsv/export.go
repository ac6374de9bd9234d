package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nao1215/dashcsv/internal/browser"
	"github.com/nao1215/dashcsv/internal/config"
	"github.com/nao1215/dashcsv/internal/exporter"
	"github.com/nao1215/dashcsv/internal/model"
	"github.com/nao1215/dashcsv/internal/pipeline"
	"github.com/nao1215/dashcsv/internal/traversal"
)

// NewExportCmd creates the export command.
func NewExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the CSV data of every dashboard panel",
		Long: `Export opens a dashboard in a browser and saves the CSV data of every
panel, scrolling until no new panels appear.

Each panel is exported through its inspector (Inspect, Download CSV,
Formatted CSV), falling back to the Download CSV entry of the panel's
options menu. Panels without an export are skipped and the run goes on.

With --date the dashboard's time range is set to that day (UTC+8) and the
files are written to a subdirectory named after the date. --date may be
given several times; each date is exported in its own browser session.

Examples:
  # Export the dashboard as it opens
  dashcsv export --url 'https://kibana.example.com/app/dashboards#/view/abc'

  # Export two days into downloads/2024-05-01 and downloads/2024-05-02
  dashcsv export --url '...' --date 2024-05-01 --date 2024-05-02

  # Watch the browser work
  dashcsv export --url '...' --headless=false --slow-mo 250`,
		Args: cobra.NoArgs,
		RunE: runExportCmd,
	}

	cmd.Flags().StringP("url", "u", "", "Dashboard URL (may already contain a _g time range)")
	cmd.Flags().StringArrayP("date", "d", nil,
		"Export date YYYY-MM-DD, interpreted at UTC+8 (repeatable)")
	cmd.Flags().String("out-dir", config.DefaultOutDir, "Directory the CSV files are written to")
	cmd.Flags().Bool("headless", true, "Run the browser without a window")
	cmd.Flags().Int("slow-mo", 0, "Delay in milliseconds added to each browser action")
	cmd.Flags().Int("timeout", int(config.DefaultTimeout/time.Millisecond),
		"Timeout in milliseconds for loading the dashboard and for each panel export")
	cmd.Flags().String("browser-bin", "", "Chromium or Chrome binary (default: system browser or a downloaded one)")
	cmd.Flags().Int("max-passes", config.DefaultMaxPasses, "Maximum number of scroll passes")
	cmd.Flags().Int("max-idle-passes", config.DefaultMaxIdlePasses,
		"Stop after this many passes in a row find no new panel")

	return cmd
}

// runExportCmd executes the export command.
func runExportCmd(cmd *cobra.Command, _ []string) error {
	cfg, err := buildExportConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.ValidateExport(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	sessions, err := planExport(cfg)
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := newLogger(cmd, cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runExport(ctx, cmd, cfg, sessions, logger)
}

// buildExportConfig creates a Config from the configuration file and flags.
func buildExportConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()

	if cfg.URL, err = flags.GetString("url"); err != nil {
		return nil, err
	}
	if cfg.Dates, err = flags.GetStringArray("date"); err != nil {
		return nil, err
	}
	if cfg.OutDir, err = flags.GetString("out-dir"); err != nil {
		return nil, err
	}
	if cfg.Headless, err = flags.GetBool("headless"); err != nil {
		return nil, err
	}

	slowMo, err := flags.GetInt("slow-mo")
	if err != nil {
		return nil, err
	}
	cfg.SlowMotion = time.Duration(slowMo) * time.Millisecond

	timeout, err := flags.GetInt("timeout")
	if err != nil {
		return nil, err
	}
	cfg.Timeout = time.Duration(timeout) * time.Millisecond

	// The configuration file may set these; a flag only wins when given.
	if flags.Changed("browser-bin") {
		if cfg.BrowserBin, err = flags.GetString("browser-bin"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("max-passes") {
		if cfg.MaxPasses, err = flags.GetInt("max-passes"); err != nil {
			return nil, err
		}
	}
	if flags.Changed("max-idle-passes") {
		if cfg.MaxIdlePasses, err = flags.GetInt("max-idle-passes"); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// session is one browsing session of an export command.
type session struct {
	date   string
	url    string
	outDir string
}

// planExport resolves the URL and output directory of every session, so
// that a bad date or URL fails before any browser is started.
func planExport(cfg *config.Config) ([]session, error) {
	if len(cfg.Dates) == 0 {
		return []session{{url: cfg.URL, outDir: cfg.OutDir}}, nil
	}

	sessions := make([]session, 0, len(cfg.Dates))
	for _, d := range cfg.Dates {
		day, err := config.ParseDate(d)
		if err != nil {
			return nil, err
		}
		u, err := config.ApplyTimeRange(cfg.URL, day)
		if err != nil {
			return nil, err
		}
		date := day.Format(config.DateLayout)
		sessions = append(sessions, session{
			date:   date,
			url:    u,
			outDir: filepath.Join(cfg.OutDir, date),
		})
	}
	return sessions, nil
}

// runExport runs the sessions one after another. A session that fails
// does not stop the next one; the command fails if any session failed.
func runExport(ctx context.Context, cmd *cobra.Command, cfg *config.Config, sessions []session, logger *slog.Logger) error {
	ledger := openLedger(cfg, logger)
	defer closeLedger(ledger, logger)

	w, closeReport, err := newReportWriter(cmd, cfg, !cfg.Verbose)
	if err != nil {
		return err
	}
	defer closeReport()

	progress := progressOutput(cmd, cfg)

	var errs []error
	for _, s := range sessions {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		run := model.NewExportRun(uuid.NewString(), s.url, s.date, s.outDir)
		err := exportSession(ctx, cfg, run, progress, logger)
		if err != nil {
			label := "dashboard"
			if s.date != "" {
				label = s.date
			}
			errs = append(errs, fmt.Errorf("export %s: %w", label, err))
		}

		recordRun(ctx, ledger, logger, run.ID, func(ctx context.Context) error {
			return ledger.SaveExportRun(ctx, run)
		})
		if _, err := w.WriteExport(run); err != nil {
			logger.Error("writing report failed", "run", run.ID, "error", err)
		}
	}
	return errors.Join(errs...)
}

// exportSession launches a browser and runs the export pipeline for run.
func exportSession(ctx context.Context, cfg *config.Config, run *model.ExportRun, progress io.Writer, logger *slog.Logger) error {
	if run.Date != "" {
		fmt.Fprintf(progress, "Exporting %s into %s...\n", run.Date, run.OutDir)
	} else {
		fmt.Fprintf(progress, "Exporting into %s...\n", run.OutDir)
	}

	fail := func(err error) error {
		run.Error = err.Error()
		run.FinishedAt = time.Now()
		return err
	}

	if err := os.MkdirAll(run.OutDir, 0o750); err != nil {
		return fail(fmt.Errorf("failed to create output directory: %w", err))
	}

	sess, err := browser.Launch(ctx, browser.Options{
		Bin:            cfg.BrowserBin,
		Headless:       cfg.Headless,
		SlowMotion:     cfg.SlowMotion,
		ViewportWidth:  cfg.ViewportWidth,
		ViewportHeight: cfg.ViewportHeight,
		Logger:         logger,
	})
	if err != nil {
		return fail(err)
	}
	defer func() {
		if err := sess.Close(); err != nil {
			logger.Warn("closing browser failed", "error", err)
		}
	}()

	p := newExportPipeline(sess, cfg, progress, logger.With("run", run.ID))
	err = p.Execute(ctx, run)

	fmt.Fprintf(progress, "Finished in %s: %d exported, %d skipped, %d failed\n\n",
		run.Elapsed().Round(time.Millisecond), run.Stats.Exported, run.Stats.Skipped, run.Stats.Failed)
	return err
}

// newExportPipeline builds the steps of one browsing session.
func newExportPipeline(sess *browser.Session, cfg *config.Config, progress io.Writer, logger *slog.Logger) *pipeline.Pipeline {
	page := sess.Page()
	stepOpts := []pipeline.StepOption{pipeline.WithStepLogger(logger)}

	n := 0
	observer := func(a model.ExportAttempt) {
		n++
		switch a.Outcome {
		case model.OutcomeSuccess:
			fmt.Fprintf(progress, "  [%d] %s -> %s\n", n, a.PanelName, filepath.Base(a.File))
		default:
			fmt.Fprintf(progress, "  [%d] %s: %s (%s)\n", n, a.PanelName, a.Outcome, a.Reason)
		}
	}

	p := pipeline.New(pipeline.WithLogger(logger))
	p.AddSteps(
		pipeline.NewNavigateStep(page, cfg.Timeout, stepOpts...),
		pipeline.NewGuestAccessStep(page, cfg.Selectors.GuestButtons, cfg.Timeout, stepOpts...),
		pipeline.NewWaitPanelsStep(page, cfg.Selectors.PanelSelector(), cfg.Timeout, stepOpts...),
		pipeline.NewTraverseStep(page,
			exporter.Options{
				Timeout:   cfg.Timeout,
				Selectors: cfg.Selectors,
			},
			traversal.Config{
				PanelSelector:     cfg.Selectors.PanelSelector(),
				ScrollerSelectors: cfg.Selectors.Scrollers,
				MaxPasses:         cfg.MaxPasses,
				MaxIdlePasses:     cfg.MaxIdlePasses,
			},
			observer,
			stepOpts...,
		),
	)
	return p
}

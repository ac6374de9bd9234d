package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"

	"github.com/nao1215/dashcsv/internal/pathutil"
)

// Default configuration values.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "dashcsv"

	// DefaultTimeout bounds one panel's export attempt and the initial page
	// load. Dashboards with heavy visualizations can take tens of seconds to
	// render a CSV, so the default is generous.
	DefaultTimeout = 45 * time.Second

	// DefaultOutDir is where exported panel CSV files are written.
	DefaultOutDir = "downloads"

	// DefaultConsolidateOutDir is where consolidated report tables are written.
	DefaultConsolidateOutDir = "analysis_output"

	// DefaultMaxPasses caps the number of scroll passes over a dashboard.
	DefaultMaxPasses = 40

	// DefaultMaxIdlePasses is the number of consecutive passes without a newly
	// discovered panel after which traversal stops.
	DefaultMaxIdlePasses = 5

	// DefaultConcurrency is the number of report groups merged in parallel.
	DefaultConcurrency = 4

	// DefaultViewportWidth and DefaultViewportHeight size the browser window
	// so that typical dashboards render two to three rows of panels.
	DefaultViewportWidth  = 1600
	DefaultViewportHeight = 1200
)

// Config holds all options of one dashcsv invocation. It is populated from
// CLI flags and the optional configuration file, then passed down
// explicitly; nothing reads global state.
type Config struct {
	// URL is the dashboard URL to export from.
	URL string

	// Dates are the calendar days (YYYY-MM-DD, UTC+8) to export. Each date
	// runs its own browsing session with the time range applied to URL and
	// writes into a same-named subdirectory of OutDir. Empty means one run
	// against URL as given, writing directly into OutDir.
	Dates []string

	// OutDir is the root directory for exported panel files.
	OutDir string

	// Headless runs the browser without a window.
	Headless bool

	// SlowMotion delays every browser action, for watching a run.
	SlowMotion time.Duration

	// Timeout bounds page navigation, the first panel appearing, and each
	// panel's export attempt.
	Timeout time.Duration

	// BrowserBin is an explicit Chromium/Chrome binary. Empty means the
	// system browser if one is found, else a downloaded Chromium.
	BrowserBin string

	// ViewportWidth and ViewportHeight size the browser viewport.
	ViewportWidth  int
	ViewportHeight int

	// MaxPasses and MaxIdlePasses bound panel traversal.
	MaxPasses     int
	MaxIdlePasses int

	// Selectors are the CSS selectors used to locate dashboard affordances.
	Selectors Selectors

	// ConsolidateInput is the root scanned by the consolidate command.
	ConsolidateInput string

	// ConsolidateOutput is the directory receiving consolidated tables.
	ConsolidateOutput string

	// Concurrency is the number of report groups merged in parallel.
	Concurrency int

	// Verbose enables debug logging.
	Verbose bool

	// ConfigFilePath is the configuration file given with --config.
	ConfigFilePath string

	// DBDir is the directory of the run ledger database. Empty together with
	// SaveToDB=false disables the ledger.
	DBDir string

	// SaveToDB records runs in the ledger database.
	SaveToDB bool

	// JSONReport and MarkdownReport select the run summary format. Plain text
	// is used when neither is set.
	JSONReport     bool
	MarkdownReport bool

	// ReportFile writes the run summary to a file instead of stdout.
	ReportFile string
}

// NewConfig creates a Config with default values.
func NewConfig() *Config {
	return &Config{
		OutDir:            DefaultOutDir,
		Headless:          true,
		Timeout:           DefaultTimeout,
		ViewportWidth:     DefaultViewportWidth,
		ViewportHeight:    DefaultViewportHeight,
		MaxPasses:         DefaultMaxPasses,
		MaxIdlePasses:     DefaultMaxIdlePasses,
		Selectors:         DefaultSelectors(),
		ConsolidateInput:  DefaultOutDir,
		ConsolidateOutput: DefaultConsolidateOutDir,
		Concurrency:       DefaultConcurrency,
		SaveToDB:          true,
		DBDir:             XDGDataDir(),
	}
}

// XDGDataDir returns the XDG data directory for dashcsv, which holds the
// run ledger. On Linux: ~/.local/share/dashcsv
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for dashcsv.
// On Linux: ~/.config/dashcsv
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// ApplyFile overlays the non-zero values of a configuration file. Values set
// explicitly on the command line are applied after this by the caller.
func (c *Config) ApplyFile(f *File) {
	if f == nil {
		return
	}
	c.Selectors = c.Selectors.Merge(f.Selectors)

	if f.Browser.Bin != "" {
		c.BrowserBin = f.Browser.Bin
	}
	if f.Browser.ViewportWidth > 0 {
		c.ViewportWidth = f.Browser.ViewportWidth
	}
	if f.Browser.ViewportHeight > 0 {
		c.ViewportHeight = f.Browser.ViewportHeight
	}
	if f.Traversal.MaxPasses > 0 {
		c.MaxPasses = f.Traversal.MaxPasses
	}
	if f.Traversal.MaxIdlePasses > 0 {
		c.MaxIdlePasses = f.Traversal.MaxIdlePasses
	}
	if f.Consolidate.Input != "" {
		c.ConsolidateInput = f.Consolidate.Input
	}
	if f.Consolidate.Output != "" {
		c.ConsolidateOutput = f.Consolidate.Output
	}
	if f.Consolidate.Concurrency > 0 {
		c.Concurrency = f.Consolidate.Concurrency
	}
}

// ValidateExport checks the options used by the export command.
func (c *Config) ValidateExport() error {
	if c.URL == "" {
		return ErrNoURL
	}
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.OutDir == "" {
		return ErrNoOutDir
	}
	if c.MaxPasses <= 0 || c.MaxIdlePasses <= 0 {
		return ErrInvalidPasses
	}
	for _, d := range c.Dates {
		if _, err := ParseDate(d); err != nil {
			return err
		}
	}
	if err := c.Selectors.Validate(); err != nil {
		return err
	}
	return c.validateReport()
}

// ValidateConsolidate checks the options used by the consolidate command.
func (c *Config) ValidateConsolidate() error {
	if c.ConsolidateInput == "" {
		return ErrNoInputDir
	}
	if c.ConsolidateOutput == "" {
		return ErrNoOutDir
	}
	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if pathutil.Within(c.ConsolidateInput, c.ConsolidateOutput) {
		return fmt.Errorf("%w: %s", ErrOutputContainsInput, c.ConsolidateOutput)
	}
	return c.validateReport()
}

// ValidateHistory checks the options used by the history command.
func (c *Config) ValidateHistory() error {
	return c.validateReport()
}

func (c *Config) validateReport() error {
	if c.JSONReport && c.MarkdownReport {
		return ErrConflictingReportFormats
	}
	return nil
}

// Package exporter exports the data of one dashboard panel as a CSV file.
//
// An export first tries the inspector route (Inspect, Download CSV,
// Formatted CSV) and falls back to the panel's options menu (Download CSV,
// possibly under More). Whatever happens, residual dialogs and extra tabs
// are closed afterwards so the next panel starts from a clean page.
package exporter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"time"

	"github.com/nao1215/dashcsv/internal/config"
	"github.com/nao1215/dashcsv/internal/identity"
	"github.com/nao1215/dashcsv/internal/model"
	"github.com/nao1215/dashcsv/internal/pathutil"
	"github.com/nao1215/dashcsv/internal/probe"
	"github.com/nao1215/dashcsv/internal/surface"
)

// Defaults for Options fields left zero.
const (
	DefaultOptionsWait   = 2 * time.Second
	DefaultInspectWait   = 8 * time.Second
	DefaultSettleTimeout = 5 * time.Second
	DefaultConfirmWait   = 3 * time.Second
	DefaultMenuWait      = 5 * time.Second
	DefaultGrace         = 300 * time.Millisecond
	DefaultCloseTimeout  = 8 * time.Second

	// fallbackSuggestedName is used when a download carries no file name.
	fallbackSuggestedName = "data.csv"

	// maxCloseRounds bounds how many stacked dialogs cleanup closes.
	maxCloseRounds = 3
)

const (
	buttonSelector   = `button, [role="button"]`
	menuItemSelector = `button, [role="menuitem"], [role="button"], a`
)

var (
	optionsName     = regexp.MustCompile(`(?i)Panel options`)
	inspectName     = regexp.MustCompile(`^Inspect$`)
	downloadCSVName = regexp.MustCompile(`(?i)Download CSV`)
	formattedName   = regexp.MustCompile(`(?i)^Formatted CSV$`)
	moreName        = regexp.MustCompile(`(?i)^More$`)
	closeName       = regexp.MustCompile(`(?i)^Close$`)
	closeInspector  = regexp.MustCompile(`(?i)Close Inspector`)
)

// Options configures an Exporter.
type Options struct {
	// OutDir receives the exported files. It must exist.
	OutDir string

	// Timeout bounds one whole attempt, cleanup excluded.
	Timeout time.Duration

	// Selectors locate panel options, loading markers, dialogs and close buttons.
	Selectors config.Selectors

	// OptionsWait bounds opening the options menu.
	OptionsWait time.Duration

	// InspectWait bounds each wait of the inspector route: the Inspect item,
	// the inspector's Download CSV control, and that control becoming
	// actionable. It is capped at Timeout.
	InspectWait time.Duration

	// SettleTimeout bounds waiting for a panel to finish loading.
	SettleTimeout time.Duration

	// ConfirmWait bounds waiting for the optional Formatted CSV confirmation
	// on the menu route.
	ConfirmWait time.Duration

	// MenuWait bounds finding the Download CSV menu item.
	MenuWait time.Duration

	// Grace is the delay before a "loaded" or "actionable" observation is
	// confirmed by a second look.
	Grace time.Duration

	// CloseTimeout is the budget of the cleanup after each attempt. Cleanup
	// gets this budget even when the attempt itself timed out.
	CloseTimeout time.Duration

	// PollInterval is the polling interval of all waits.
	PollInterval time.Duration
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = config.DefaultTimeout
	}
	if o.OptionsWait <= 0 {
		o.OptionsWait = DefaultOptionsWait
	}
	if o.InspectWait <= 0 {
		o.InspectWait = DefaultInspectWait
	}
	o.InspectWait = min(o.InspectWait, o.Timeout)
	if o.SettleTimeout <= 0 {
		o.SettleTimeout = min(DefaultSettleTimeout, o.Timeout)
	}
	if o.ConfirmWait <= 0 {
		o.ConfirmWait = DefaultConfirmWait
	}
	if o.MenuWait <= 0 {
		o.MenuWait = DefaultMenuWait
	}
	if o.Grace <= 0 {
		o.Grace = DefaultGrace
	}
	if o.CloseTimeout <= 0 {
		o.CloseTimeout = DefaultCloseTimeout
	}
	if o.PollInterval <= 0 {
		o.PollInterval = probe.DefaultInterval
	}
	return o
}

// Exporter runs export attempts on one page. Attempts must not overlap:
// both routes change page-wide state such as open menus, dialogs and the
// armed download capture.
type Exporter struct {
	page   surface.Page
	opts   Options
	logger *slog.Logger
	state  State
}

// New creates an Exporter for page.
func New(page surface.Page, opts Options, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		page:   page,
		opts:   opts.withDefaults(),
		logger: logger,
	}
}

// State returns the state the last attempt ended in.
func (e *Exporter) State() State {
	return e.state
}

func (e *Exporter) setState(s State) {
	if !e.state.CanTransition(s) {
		e.logger.Debug("unexpected export state transition", "from", e.state, "to", s)
	}
	e.state = s
}

// Export exports panel and reports the outcome. It never returns an error:
// failures are described by the attempt's Outcome and Reason. defaultName
// names the file when the panel has no readable title.
func (e *Exporter) Export(ctx context.Context, panel surface.Panel, defaultName string) (attempt model.ExportAttempt) {
	start := time.Now()
	e.state = StateIdle
	attempt = model.ExportAttempt{
		PanelName: identity.DisplayName(ctx, panel, defaultName),
		Path:      model.PathNone,
		Outcome:   model.OutcomeFailed,
		StartedAt: start,
	}
	logger := e.logger.With("panel", attempt.PanelName)
	logger.Info("exporting panel")

	defer func() {
		e.cleanup(ctx)
		attempt.Duration = time.Since(start)
	}()

	actx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	e.bringIntoView(actx, panel, logger)

	if !e.openOptions(actx, panel) {
		e.setState(StateFailed)
		attempt.Outcome = model.OutcomeSkipped
		attempt.Reason = ErrNoOptionsMenu.Error()
		logger.Warn("panel has no options menu, skipped")
		return attempt
	}
	e.setState(StateOptionsMenuOpen)

	e.setState(StateInspectPath)
	attempt.Path = model.PathInspect
	download, inspectErr := e.viaInspector(actx)
	if inspectErr != nil {
		logger.Warn("inspect route failed, trying panel menu", "error", inspectErr)
		cctx, ccancel := context.WithTimeout(context.WithoutCancel(actx), e.opts.CloseTimeout)
		e.closeDialogs(cctx)
		ccancel()

		e.setState(StateMenuPath)
		attempt.Path = model.PathMenu
		var menuErr error
		download, menuErr = e.viaMenu(actx, panel)
		if menuErr != nil {
			e.setState(StateFailed)
			attempt.Reason = fmt.Sprintf("inspect: %v; menu: %v", inspectErr, menuErr)
			logger.Warn("panel export failed", "reason", attempt.Reason)
			return attempt
		}
	}

	file, err := e.save(download, attempt.PanelName)
	if err != nil {
		e.setState(StateFailed)
		attempt.Reason = err.Error()
		logger.Warn("saving download failed", "error", err)
		return attempt
	}

	e.setState(StateDownloaded)
	attempt.Outcome = model.OutcomeSuccess
	attempt.File = file
	logger.Info("panel exported", "file", file, "path", attempt.Path)
	return attempt
}

// bringIntoView scrolls the panel into view, hovers it so that hover-only
// controls appear, and waits for it to finish loading. All of it is best
// effort.
func (e *Exporter) bringIntoView(ctx context.Context, panel surface.Panel, logger *slog.Logger) {
	if err := panel.ScrollIntoView(ctx); err != nil {
		logger.Debug("scroll into view failed", "error", err)
	}
	if err := panel.Hover(ctx); err != nil {
		logger.Debug("hover failed", "error", err)
	}
	if !e.settle(ctx, panel, e.opts.SettleTimeout) {
		logger.Debug("panel still loading, continuing anyway")
	}
}

// settle waits until scope shows no loading marker across two looks a grace
// period apart. It reports false when timeout expires first.
func (e *Exporter) settle(ctx context.Context, scope surface.Scope, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	loading := cssQueries(e.opts.Selectors.Loading)
	quiet := func(ctx context.Context) (struct{}, bool) {
		return struct{}{}, probe.Absent(ctx, scope, loading...)
	}
	for {
		if _, ok := probe.Wait(ctx, e.opts.PollInterval, quiet); !ok {
			return false
		}
		if !sleep(ctx, e.opts.Grace) {
			return false
		}
		if _, ok := quiet(ctx); ok {
			return true
		}
	}
}

// openOptions clicks the panel's options toggle, trying the panel-scoped
// selectors first and a page-wide "Panel options" button last.
func (e *Exporter) openOptions(ctx context.Context, panel surface.Panel) bool {
	ctx, cancel := context.WithTimeout(ctx, e.opts.OptionsWait)
	defer cancel()

	probes := probe.ClickAll(panel, cssQueries(e.opts.Selectors.PanelOptions)...)
	probes = append(probes, probe.Click(e.page, surface.Query{Selector: buttonSelector, Name: optionsName}))
	_, ok := probe.Wait(ctx, e.opts.PollInterval, probes...)
	return ok
}

// viaInspector runs the inspector route. The options menu must be open.
func (e *Exporter) viaInspector(ctx context.Context) (surface.Download, error) {
	ictx, cancel := context.WithTimeout(ctx, e.opts.InspectWait)
	_, ok := probe.Wait(ictx, e.opts.PollInterval,
		probe.Click(e.page, surface.Query{Selector: buttonSelector, Name: inspectName}))
	cancel()
	if !ok {
		return nil, ErrNoInspect
	}

	downloadQuery := surface.Query{Selector: buttonSelector, Name: downloadCSVName}
	ictx, cancel = context.WithTimeout(ctx, e.opts.InspectWait)
	button, ok := probe.Wait(ictx, e.opts.PollInterval, e.inDialogs(downloadQuery))
	cancel()
	if !ok {
		return nil, ErrNoInspector
	}
	ictx, cancel = context.WithTimeout(ctx, e.opts.InspectWait)
	ready := e.actionable(ictx, button)
	cancel()
	if !ready {
		return nil, ErrNotActionable
	}
	if err := button.Click(ctx); err != nil {
		return nil, fmt.Errorf("click Download CSV: %w", err)
	}

	formatted, ok := probe.Wait(ctx, e.opts.PollInterval,
		e.inDialogs(surface.Query{Selector: buttonSelector, Name: formattedName}))
	if !ok {
		return nil, ErrNoFormatted
	}
	return e.clickAndCapture(ctx, formatted)
}

// actionable waits until c is enabled and no dialog shows a loading marker,
// confirmed again after a grace period.
func (e *Exporter) actionable(ctx context.Context, c surface.Control) bool {
	ready := func(ctx context.Context) (struct{}, bool) {
		enabled, err := c.Enabled(ctx)
		if err != nil || !enabled {
			return struct{}{}, false
		}
		return struct{}{}, e.dialogsQuiet(ctx)
	}
	for {
		if _, ok := probe.Wait(ctx, e.opts.PollInterval, ready); !ok {
			return false
		}
		if !sleep(ctx, e.opts.Grace) {
			return false
		}
		if _, ok := ready(ctx); ok {
			return true
		}
	}
}

func (e *Exporter) dialogsQuiet(ctx context.Context) bool {
	dialogs, err := e.page.Dialogs(ctx, e.opts.Selectors.DialogSelector())
	if err != nil {
		return false
	}
	loading := cssQueries(e.opts.Selectors.Loading)
	for _, d := range dialogs {
		if !probe.Absent(ctx, d, loading...) {
			return false
		}
	}
	return true
}

// inDialogs builds a probe that finds q inside any open dialog.
func (e *Exporter) inDialogs(q surface.Query) probe.Probe[surface.Control] {
	return func(ctx context.Context) (surface.Control, bool) {
		dialogs, err := e.page.Dialogs(ctx, e.opts.Selectors.DialogSelector())
		if err != nil {
			return nil, false
		}
		for _, d := range dialogs {
			if c, err := d.Find(ctx, q); err == nil {
				return c, true
			}
		}
		return nil, false
	}
}

// viaMenu runs the options menu route. The menu is reopened first because
// closing the inspector may have closed it.
func (e *Exporter) viaMenu(ctx context.Context, panel surface.Panel) (surface.Download, error) {
	if !e.openOptions(ctx, panel) {
		return nil, ErrNoOptionsMenu
	}

	item := surface.Query{Selector: menuItemSelector, Name: downloadCSVName}
	more := surface.Query{Selector: menuItemSelector, Name: moreName}

	mctx, cancel := context.WithTimeout(ctx, e.opts.MenuWait)
	control, ok := probe.Wait(mctx, e.opts.PollInterval,
		probe.Find(e.page, item),
		e.revealedBy(more, item))
	cancel()
	if !ok {
		return nil, ErrNoMenuItem
	}

	dctx, dcancel := context.WithCancel(ctx)
	defer dcancel()
	downloads := e.page.ExpectDownload(dctx)
	if err := control.Click(ctx); err != nil {
		return nil, fmt.Errorf("click Download CSV: %w", err)
	}
	return e.awaitWithConfirm(ctx, downloads)
}

// revealedBy builds a probe that clicks opener and then waits for target
// to appear.
func (e *Exporter) revealedBy(opener, target surface.Query) probe.Probe[surface.Control] {
	return func(ctx context.Context) (surface.Control, bool) {
		c, err := e.page.Find(ctx, opener)
		if err != nil {
			return nil, false
		}
		if err := c.Click(ctx); err != nil {
			return nil, false
		}
		return probe.Wait(ctx, e.opts.PollInterval, probe.Find(e.page, target))
	}
}

// awaitWithConfirm waits for the download while watching, for ConfirmWait,
// for a Formatted CSV confirmation that some versions show first.
func (e *Exporter) awaitWithConfirm(ctx context.Context, downloads <-chan surface.DownloadResult) (surface.Download, error) {
	confirm := surface.Query{Selector: buttonSelector, Name: formattedName}
	confirmTimer := time.NewTimer(e.opts.ConfirmWait)
	defer confirmTimer.Stop()
	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()

	watching := true
	for {
		var tick <-chan time.Time
		if watching {
			tick = ticker.C
		}
		select {
		case r := <-downloads:
			return r.Download, r.Err
		case <-ctx.Done():
			return nil, errors.Join(surface.ErrNoDownload, ctx.Err())
		case <-confirmTimer.C:
			watching = false
		case <-tick:
			c, err := e.page.Find(ctx, confirm)
			if err != nil {
				continue
			}
			if err := c.Click(ctx); err == nil {
				e.logger.Debug("clicked Formatted CSV confirmation")
				watching = false
			}
		}
	}
}

// clickAndCapture clicks c with a download capture armed.
func (e *Exporter) clickAndCapture(ctx context.Context, c surface.Control) (surface.Download, error) {
	dctx, cancel := context.WithCancel(ctx)
	defer cancel()
	downloads := e.page.ExpectDownload(dctx)
	if err := c.Click(ctx); err != nil {
		return nil, fmt.Errorf("click Formatted CSV: %w", err)
	}
	select {
	case r := <-downloads:
		return r.Download, r.Err
	case <-ctx.Done():
		return nil, errors.Join(surface.ErrNoDownload, ctx.Err())
	}
}

// save stores d as "<panel> - <suggested name>" in the output directory
// without overwriting anything.
func (e *Exporter) save(d surface.Download, panelName string) (string, error) {
	if d == nil {
		return "", surface.ErrNoDownload
	}
	suggested := d.SuggestedFilename()
	if suggested == "" {
		suggested = fallbackSuggestedName
	}
	name := identity.SanitizeFilename(panelName + identity.ReportDelimiter + suggested)
	target := pathutil.UniquePath(filepath.Join(e.opts.OutDir, name))
	if err := d.SaveAs(target); err != nil {
		return "", fmt.Errorf("save %s: %w", target, err)
	}
	return target, nil
}

// cleanup closes residual dialogs and extra tabs. It has its own budget so
// that it also runs after the attempt timed out.
func (e *Exporter) cleanup(parent context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), e.opts.CloseTimeout)
	defer cancel()

	e.closeDialogs(ctx)

	// Only Download CSV controls inside dialogs count: some dashboards keep
	// one on the page itself.
	download := surface.Query{Selector: buttonSelector, Name: downloadCSVName}
	gone := func(ctx context.Context) (struct{}, bool) {
		dialogs, err := e.page.Dialogs(ctx, e.opts.Selectors.DialogSelector())
		if err != nil {
			return struct{}{}, false
		}
		for _, d := range dialogs {
			if !probe.Absent(ctx, d, download) {
				return struct{}{}, false
			}
		}
		return struct{}{}, true
	}
	if _, ok := probe.Wait(ctx, e.opts.PollInterval, gone); !ok {
		e.logger.Debug("Download CSV control still attached after cleanup")
	}

	if err := e.page.CloseOtherTabs(ctx); err != nil {
		e.logger.Debug("closing extra tabs failed", "error", err)
	}
}

// closeDialogs closes open dialogs one at a time: a close button inside
// the dialog, else a close button anywhere, else Escape.
func (e *Exporter) closeDialogs(ctx context.Context) {
	queries := e.closeQueries()
	for round := 0; round < maxCloseRounds; round++ {
		dialogs, err := e.page.Dialogs(ctx, e.opts.Selectors.DialogSelector())
		if err != nil || len(dialogs) == 0 {
			return
		}
		if !e.closeOne(ctx, dialogs, queries) {
			if err := e.page.PressEscape(ctx); err != nil {
				e.logger.Debug("pressing Escape failed", "error", err)
				return
			}
		}
		if !sleep(ctx, e.opts.PollInterval) {
			return
		}
	}
}

func (e *Exporter) closeOne(ctx context.Context, dialogs []surface.Scope, queries []surface.Query) bool {
	for _, d := range dialogs {
		if _, ok := probe.First(ctx, probe.ClickAll(d, queries...)...); ok {
			return true
		}
	}
	_, ok := probe.First(ctx, probe.ClickAll(e.page, queries...)...)
	return ok
}

func (e *Exporter) closeQueries() []surface.Query {
	queries := cssQueries(e.opts.Selectors.CloseButtons)
	return append(queries,
		surface.Query{Selector: buttonSelector, Name: closeName},
		surface.Query{Selector: buttonSelector, Name: closeInspector},
	)
}

func cssQueries(selectors []string) []surface.Query {
	queries := make([]surface.Query, 0, len(selectors))
	for _, s := range selectors {
		queries = append(queries, surface.Query{Selector: s})
	}
	return queries
}

// sleep waits for d and reports false if ctx ends first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

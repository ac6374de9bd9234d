package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/nao1215/dashcsv/internal/exporter"
	"github.com/nao1215/dashcsv/internal/model"
	"github.com/nao1215/dashcsv/internal/probe"
	"github.com/nao1215/dashcsv/internal/surface"
	"github.com/nao1215/dashcsv/internal/traversal"
)

// MaxGuestWait caps how long the guest login button is looked for.
const MaxGuestWait = 20 * time.Second

// DefaultNavigateTimeout bounds navigation when no timeout is given.
const DefaultNavigateTimeout = 45 * time.Second

var guestName = regexp.MustCompile(`(?i)continue as guest`)

// StepOption configures the logger and polling of a step.
type StepOption func(*stepBase)

type stepBase struct {
	logger   *slog.Logger
	interval time.Duration
}

// WithStepLogger sets the step's logger.
func WithStepLogger(logger *slog.Logger) StepOption {
	return func(b *stepBase) {
		b.logger = logger
	}
}

// WithPollInterval sets how often a waiting step looks again.
func WithPollInterval(d time.Duration) StepOption {
	return func(b *stepBase) {
		b.interval = d
	}
}

func newBase(opts []StepOption) stepBase {
	b := stepBase{logger: slog.Default(), interval: probe.DefaultInterval}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// NavigateStep opens the run's URL and waits at most timeout for it to load.
type NavigateStep struct {
	stepBase
	page    surface.Page
	timeout time.Duration
}

// NewNavigateStep creates a NavigateStep. A timeout of zero or less means
// DefaultNavigateTimeout.
func NewNavigateStep(page surface.Page, timeout time.Duration, opts ...StepOption) *NavigateStep {
	if timeout <= 0 {
		timeout = DefaultNavigateTimeout
	}
	return &NavigateStep{stepBase: newBase(opts), page: page, timeout: timeout}
}

// Name returns the step name.
func (s *NavigateStep) Name() string {
	return "navigate"
}

// Do implements Step.
func (s *NavigateStep) Do(ctx context.Context, run *model.ExportRun) error {
	s.logger.Info("opening dashboard", "url", run.URL)

	nctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.page.Navigate(nctx, run.URL); err != nil {
		if ctx.Err() == nil && nctx.Err() != nil {
			return fmt.Errorf("%w: page did not load within %s: %w", ErrNavigation, s.timeout, err)
		}
		return fmt.Errorf("%w: %w", ErrNavigation, err)
	}
	return nil
}

// GuestAccessStep clicks a "Continue as Guest" control when the dashboard
// shows a login page. The control may live in the page or in any iframe.
// Not finding it is not an error: the dashboard may be open already.
type GuestAccessStep struct {
	stepBase
	page    surface.Page
	queries []surface.Query
	wait    time.Duration
}

// NewGuestAccessStep creates a GuestAccessStep that looks for the guest
// control with selectors first and by its name last, for at most wait
// (capped at MaxGuestWait).
func NewGuestAccessStep(page surface.Page, selectors []string, wait time.Duration, opts ...StepOption) *GuestAccessStep {
	queries := make([]surface.Query, 0, len(selectors)+3)
	for _, sel := range selectors {
		queries = append(queries, surface.Query{Selector: sel})
	}
	queries = append(queries,
		surface.Query{Selector: `button, [role="button"]`, Name: guestName},
		surface.Query{Selector: `a, [role="link"]`, Name: guestName},
		surface.Query{Selector: `span, div, p`, Name: guestName},
	)
	if wait <= 0 || wait > MaxGuestWait {
		wait = MaxGuestWait
	}
	return &GuestAccessStep{stepBase: newBase(opts), page: page, queries: queries, wait: wait}
}

// Name returns the step name.
func (s *GuestAccessStep) Name() string {
	return "guest_access"
}

// Do implements Step.
func (s *GuestAccessStep) Do(ctx context.Context, run *model.ExportRun) error {
	wctx, cancel := context.WithTimeout(ctx, s.wait)
	defer cancel()

	_, ok := probe.Wait[surface.Control](wctx, s.interval, s.clickInAnyFrame)
	if err := ctx.Err(); err != nil {
		return err
	}
	if !ok {
		s.logger.Warn("guest login not found or not clickable, the dashboard may already be open")
		return nil
	}
	run.GuestAccess = true
	s.logger.Info("continued as guest")
	return nil
}

// clickInAnyFrame tries every query in the page, then in each frame.
func (s *GuestAccessStep) clickInAnyFrame(ctx context.Context) (surface.Control, bool) {
	frames, err := s.page.Frames(ctx)
	if err != nil && len(frames) == 0 {
		return nil, false
	}
	for _, f := range frames {
		if c, ok := probe.First(ctx, probe.ClickAll(f, s.queries...)...); ok {
			return c, true
		}
	}
	return nil, false
}

// WaitPanelsStep waits for the first dashboard panel to render.
type WaitPanelsStep struct {
	stepBase
	page     surface.Page
	selector string
	timeout  time.Duration
}

// NewWaitPanelsStep creates a WaitPanelsStep.
func NewWaitPanelsStep(page surface.Page, selector string, timeout time.Duration, opts ...StepOption) *WaitPanelsStep {
	return &WaitPanelsStep{stepBase: newBase(opts), page: page, selector: selector, timeout: timeout}
}

// Name returns the step name.
func (s *WaitPanelsStep) Name() string {
	return "wait_panels"
}

// Do implements Step.
func (s *WaitPanelsStep) Do(ctx context.Context, run *model.ExportRun) error {
	wctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, ok := probe.Wait[int](wctx, s.interval, func(ctx context.Context) (int, bool) {
		panels, err := s.page.Panels(ctx, s.selector)
		return len(panels), err == nil && len(panels) > 0
	})
	if err := ctx.Err(); err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w within %s", ErrNoPanels, s.timeout)
	}
	run.InitialPanels = n
	s.logger.Info("dashboard panels detected", "count", n)
	return nil
}

// TraverseStep exports every panel of the dashboard into run.OutDir.
type TraverseStep struct {
	stepBase
	page     surface.Page
	export   exporter.Options
	traverse traversal.Config
	observer func(model.ExportAttempt)
}

// NewTraverseStep creates a TraverseStep. observer, when not nil, is told
// about every attempt as soon as it ends.
func NewTraverseStep(page surface.Page, export exporter.Options, traverse traversal.Config, observer func(model.ExportAttempt), opts ...StepOption) *TraverseStep {
	return &TraverseStep{
		stepBase: newBase(opts),
		page:     page,
		export:   export,
		traverse: traverse,
		observer: observer,
	}
}

// Name returns the step name.
func (s *TraverseStep) Name() string {
	return "traverse"
}

// Do implements Step. Failed panels are recorded in the run; only
// cancellation makes Do fail.
func (s *TraverseStep) Do(ctx context.Context, run *model.ExportRun) error {
	opts := s.export
	opts.OutDir = run.OutDir
	exp := exporter.New(s.page, opts, s.logger)

	c := traversal.New(s.page, exp, s.traverse,
		traversal.WithLogger(s.logger),
		traversal.WithObserver(func(a model.ExportAttempt) {
			run.AddAttempt(a)
			if s.observer != nil {
				s.observer(a)
			}
		}),
	)
	run.Stats = c.Run(ctx)

	s.logger.Info("traversal finished",
		"passes", run.Stats.Passes,
		"exported", run.Stats.Exported,
		"skipped", run.Stats.Skipped,
		"failed", run.Stats.Failed,
		"stop", run.Stats.Stop,
	)
	if run.Stats.Stop == model.StopCanceled {
		return ctx.Err()
	}
	return nil
}

// Package traversal visits every panel of a lazily rendered dashboard once.
//
// Dashboards render panels as they scroll into view, so the full set is not
// known up front. The controller alternates between exporting the panels
// that are currently rendered and scrolling further, deduplicating panels by
// their identity key, until several passes in a row find nothing new or a
// pass limit is reached.
package traversal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nao1215/dashcsv/internal/config"
	"github.com/nao1215/dashcsv/internal/identity"
	"github.com/nao1215/dashcsv/internal/model"
	"github.com/nao1215/dashcsv/internal/surface"
)

// Scroll distances and pause between passes.
const (
	DefaultPause       = 400 * time.Millisecond
	DefaultPageWheel   = 1200
	DefaultBottomWheel = 900
)

// Exporter exports a single panel. *exporter.Exporter implements it.
type Exporter interface {
	Export(ctx context.Context, panel surface.Panel, defaultName string) model.ExportAttempt
}

// Config holds traversal limits and the selectors used to find panels and
// scroll containers.
type Config struct {
	PanelSelector     string
	ScrollerSelectors []string
	MaxPasses         int
	MaxIdlePasses     int

	// Pause is the wait after each scroll for panels to render.
	Pause time.Duration

	// PageWheel scrolls the page when no container could be scrolled.
	PageWheel float64

	// BottomWheel scrolls the page after a container reports its end.
	BottomWheel float64
}

func (c Config) withDefaults() Config {
	if c.MaxPasses <= 0 {
		c.MaxPasses = config.DefaultMaxPasses
	}
	if c.MaxIdlePasses <= 0 {
		c.MaxIdlePasses = config.DefaultMaxIdlePasses
	}
	if c.Pause <= 0 {
		c.Pause = DefaultPause
	}
	if c.PageWheel == 0 {
		c.PageWheel = DefaultPageWheel
	}
	if c.BottomWheel == 0 {
		c.BottomWheel = DefaultBottomWheel
	}
	return c
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithObserver registers fn to receive every attempt as soon as it ends.
func WithObserver(fn func(model.ExportAttempt)) Option {
	return func(c *Controller) {
		c.observer = fn
	}
}

// Controller drives one traversal. Its seen set lives as long as the
// controller, so a Controller must not be shared between pages.
type Controller struct {
	page     surface.Page
	exporter Exporter
	cfg      Config
	logger   *slog.Logger
	observer func(model.ExportAttempt)
	seen     map[string]struct{}
}

// New creates a Controller.
func New(page surface.Page, exp Exporter, cfg Config, opts ...Option) *Controller {
	c := &Controller{
		page:     page,
		exporter: exp,
		cfg:      cfg.withDefaults(),
		logger:   slog.Default(),
		seen:     make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Seen reports whether a panel with key was already handed to the exporter.
func (c *Controller) Seen(key string) bool {
	_, ok := c.seen[key]
	return ok
}

// Run traverses the dashboard. No panel key is exported twice. Run returns
// after MaxIdlePasses consecutive passes without a new panel, after
// MaxPasses passes, or when ctx is canceled between panels.
func (c *Controller) Run(ctx context.Context) model.TraversalStats {
	var stats model.TraversalStats
	idle := 0

	for pass := 1; pass <= c.cfg.MaxPasses; pass++ {
		if ctx.Err() != nil {
			stats.Stop = model.StopCanceled
			return stats
		}
		stats.Passes = pass

		panels, err := c.page.Panels(ctx, c.cfg.PanelSelector)
		if err != nil {
			c.logger.Warn("listing panels failed", "pass", pass, "error", err)
		}

		fresh := 0
		for _, p := range panels {
			if ctx.Err() != nil {
				stats.Stop = model.StopCanceled
				return stats
			}
			key, fallback := identity.PanelKey(ctx, p)
			if c.Seen(key) {
				continue
			}
			c.seen[key] = struct{}{}
			fresh++
			stats.Discovered++
			if fallback {
				stats.FallbackKeys++
				c.logger.Warn("panel has no stable identity, it may be exported again on a later pass", "key", key)
			}

			attempt := c.exportOne(ctx, p, key, fmt.Sprintf("panel-%d", len(c.seen)))
			stats.Record(attempt)
			if c.observer != nil {
				c.observer(attempt)
			}
		}
		c.logger.Debug("pass finished", "pass", pass, "rendered", len(panels), "new", fresh)

		if fresh == 0 {
			idle++
		} else {
			idle = 0
		}
		if idle >= c.cfg.MaxIdlePasses {
			stats.Stop = model.StopIdle
			return stats
		}

		c.scroll(ctx)
	}

	stats.Stop = model.StopMaxPasses
	return stats
}

// exportOne runs one attempt and turns a panic into a failed attempt so
// that one broken panel cannot end the traversal.
func (c *Controller) exportOne(ctx context.Context, p surface.Panel, key, defaultName string) (attempt model.ExportAttempt) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panel export panicked", "key", key, "panic", r)
			attempt = model.ExportAttempt{
				PanelKey:  key,
				PanelName: defaultName,
				Path:      model.PathNone,
				Outcome:   model.OutcomeFailed,
				Reason:    fmt.Sprintf("panic: %v", r),
				StartedAt: start,
				Duration:  time.Since(start),
			}
		}
	}()

	attempt = c.exporter.Export(ctx, p, defaultName)
	attempt.PanelKey = key
	return attempt
}

// scroll advances every scroll container by about one viewport, wheeling
// the page as well when a container is at its end. When no container could
// be scrolled the page is wheeled instead. It then pauses for rendering.
func (c *Controller) scroll(ctx context.Context) {
	scrolled := false
	for _, sel := range c.cfg.ScrollerSelectors {
		s, err := c.page.Scroller(ctx, sel)
		if err != nil {
			continue
		}
		atBottom, err := s.ScrollBy(ctx)
		if err != nil {
			c.logger.Debug("scrolling container failed", "selector", sel, "error", err)
			continue
		}
		scrolled = true
		if atBottom {
			if err := c.page.Wheel(ctx, c.cfg.BottomWheel); err != nil {
				c.logger.Debug("wheel failed", "error", err)
			}
		}
	}
	if !scrolled {
		if err := c.page.Wheel(ctx, c.cfg.PageWheel); err != nil {
			c.logger.Debug("wheel failed", "error", err)
		}
	}

	t := time.NewTimer(c.cfg.Pause)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Package surfacetest provides an in-memory dashboard implementing the
// surface interfaces, for driving the exporter and traversal controller in
// tests without a browser.
package surfacetest

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"

	"github.com/nao1215/dashcsv/internal/surface"
)

// Control is a fake clickable element. OnClick runs after the click is
// counted; a non-nil error fails the click.
type Control struct {
	Name     string
	Selector string
	Disabled bool
	OnClick  func() error

	mu     sync.Mutex
	clicks int
}

// Click implements surface.Control.
func (c *Control) Click(_ context.Context) error {
	c.mu.Lock()
	c.clicks++
	fn := c.OnClick
	c.mu.Unlock()
	if fn != nil {
		return fn()
	}
	return nil
}

// Enabled implements surface.Control.
func (c *Control) Enabled(_ context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.Disabled, nil
}

// Clicks returns how many times the control was clicked.
func (c *Control) Clicks() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clicks
}

// Scope is a searchable set of controls. A query with a Name matches
// controls by name only; a query without one matches controls whose
// Selector equals one of the query's comma-separated selectors.
type Scope struct {
	mu       sync.Mutex
	controls []*Control
}

// Add appends controls to the scope.
func (s *Scope) Add(controls ...*Control) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.controls = append(s.controls, controls...)
}

// Remove drops c from the scope.
func (s *Scope) Remove(c *Control) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, have := range s.controls {
		if have == c {
			s.controls = append(s.controls[:i], s.controls[i+1:]...)
			return
		}
	}
}

// Find implements surface.Scope.
func (s *Scope) Find(ctx context.Context, q surface.Query) (surface.Control, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.controls {
		if matches(c, q) {
			return c, nil
		}
	}
	return nil, surface.ErrNotFound
}

func matches(c *Control, q surface.Query) bool {
	if q.Name != nil {
		return c.Name != "" && q.Name.MatchString(c.Name)
	}
	for _, sel := range strings.Split(q.Selector, ",") {
		if strings.TrimSpace(sel) == c.Selector {
			return true
		}
	}
	return false
}

// Panel is a fake dashboard panel.
type Panel struct {
	Scope

	Attrs   map[string]string
	Heading string
	HTML    string

	mu       sync.Mutex
	scrolled int
}

// Attribute implements surface.Panel.
func (p *Panel) Attribute(_ context.Context, name string) (string, error) {
	return p.Attrs[name], nil
}

// HeadingText implements surface.Panel.
func (p *Panel) HeadingText(_ context.Context) (string, error) {
	return p.Heading, nil
}

// Markup implements surface.Panel.
func (p *Panel) Markup(_ context.Context) (string, error) {
	return p.HTML, nil
}

// ScrollIntoView implements surface.Panel.
func (p *Panel) ScrollIntoView(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scrolled++
	return nil
}

// Hover implements surface.Panel.
func (p *Panel) Hover(_ context.Context) error { return nil }

// Scrolled returns how many times the panel was scrolled into view.
func (p *Panel) Scrolled() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scrolled
}

// Download is a fake captured file.
type Download struct {
	Name    string
	Content []byte
}

// SuggestedFilename implements surface.Download.
func (d *Download) SuggestedFilename() string { return d.Name }

// SaveAs implements surface.Download.
func (d *Download) SaveAs(path string) error {
	return os.WriteFile(path, d.Content, 0o600)
}

// Scroller is a fake scroll container.
type Scroller struct {
	AtBottom bool
	Err      error

	mu    sync.Mutex
	calls int
}

// ScrollBy implements surface.Scroller.
func (s *Scroller) ScrollBy(_ context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.AtBottom, s.Err
}

// Calls returns how many times ScrollBy ran.
func (s *Scroller) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Page is a fake dashboard page. Panels are served by PanelsFunc, which
// receives the number of scroll gestures performed so far, so tests can
// model lazy rendering. Dialogs form a stack; Escape closes the top one.
type Page struct {
	Scope

	PanelsFunc  func(scrolls int) []*Panel
	Scrollers   map[string]*Scroller
	FrameList   []*Scope
	NavigateErr error
	// NavigateHangs makes Navigate block until its context is done.
	NavigateHangs bool

	mu        sync.Mutex
	dialogs   []*Scope
	waiter    chan surface.DownloadResult
	scrolls   int
	wheels    []float64
	escapes   int
	tabCloses int
	navigated []string
}

// Navigate implements surface.Page.
func (p *Page) Navigate(ctx context.Context, url string) error {
	p.mu.Lock()
	p.navigated = append(p.navigated, url)
	p.mu.Unlock()

	if p.NavigateHangs {
		<-ctx.Done()
		return ctx.Err()
	}
	return p.NavigateErr
}

// Navigated returns the URLs passed to Navigate.
func (p *Page) Navigated() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.navigated...)
}

// Panels implements surface.Page.
func (p *Page) Panels(_ context.Context, _ string) ([]surface.Panel, error) {
	p.mu.Lock()
	scrolls := p.scrolls
	p.mu.Unlock()
	if p.PanelsFunc == nil {
		return nil, nil
	}
	fakes := p.PanelsFunc(scrolls)
	panels := make([]surface.Panel, len(fakes))
	for i, f := range fakes {
		panels[i] = f
	}
	return panels, nil
}

// OpenDialog adds a dialog scope to the page and returns it.
func (p *Page) OpenDialog(controls ...*Control) *Scope {
	d := &Scope{}
	d.Add(controls...)
	p.mu.Lock()
	p.dialogs = append(p.dialogs, d)
	p.mu.Unlock()
	return d
}

// CloseDialog removes d from the page.
func (p *Page) CloseDialog(d *Scope) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, have := range p.dialogs {
		if have == d {
			p.dialogs = append(p.dialogs[:i], p.dialogs[i+1:]...)
			return
		}
	}
}

// OpenDialogs returns the number of open dialogs.
func (p *Page) OpenDialogs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.dialogs)
}

// Dialogs implements surface.Page.
func (p *Page) Dialogs(_ context.Context, _ string) ([]surface.Scope, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	scopes := make([]surface.Scope, len(p.dialogs))
	for i, d := range p.dialogs {
		scopes[i] = d
	}
	return scopes, nil
}

// Find searches open dialogs first, then the page itself, mirroring a
// document-wide lookup.
func (p *Page) Find(ctx context.Context, q surface.Query) (surface.Control, error) {
	p.mu.Lock()
	dialogs := append([]*Scope(nil), p.dialogs...)
	p.mu.Unlock()
	for _, d := range dialogs {
		if c, err := d.Find(ctx, q); err == nil {
			return c, nil
		}
	}
	return p.Scope.Find(ctx, q)
}

// Frames implements surface.Page.
func (p *Page) Frames(_ context.Context) ([]surface.Scope, error) {
	frames := []surface.Scope{p}
	for _, f := range p.FrameList {
		frames = append(frames, f)
	}
	return frames, nil
}

// Scroller implements surface.Page.
func (p *Page) Scroller(_ context.Context, selector string) (surface.Scroller, error) {
	s, ok := p.Scrollers[selector]
	if !ok {
		return nil, surface.ErrNotFound
	}
	return pageScroller{page: p, scroller: s}, nil
}

// pageScroller counts successful container scrolls as scroll gestures.
type pageScroller struct {
	page     *Page
	scroller *Scroller
}

func (w pageScroller) ScrollBy(ctx context.Context) (bool, error) {
	atBottom, err := w.scroller.ScrollBy(ctx)
	if err == nil {
		w.page.mu.Lock()
		w.page.scrolls++
		w.page.mu.Unlock()
	}
	return atBottom, err
}

// Wheel implements surface.Page.
func (p *Page) Wheel(_ context.Context, dy float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scrolls++
	p.wheels = append(p.wheels, dy)
	return nil
}

// Wheels returns the recorded wheel gestures.
func (p *Page) Wheels() []float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]float64(nil), p.wheels...)
}

// PressEscape implements surface.Page. It closes the most recently opened
// dialog.
func (p *Page) PressEscape(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.escapes++
	if n := len(p.dialogs); n > 0 {
		p.dialogs = p.dialogs[:n-1]
	}
	return nil
}

// Escapes returns how many times Escape was pressed.
func (p *Page) Escapes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.escapes
}

// ExpectDownload implements surface.Page.
func (p *Page) ExpectDownload(ctx context.Context) <-chan surface.DownloadResult {
	ch := make(chan surface.DownloadResult, 1)
	p.mu.Lock()
	p.waiter = ch
	p.mu.Unlock()

	go func() {
		<-ctx.Done()
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.waiter == ch {
			p.waiter = nil
			ch <- surface.DownloadResult{Err: errors.Join(surface.ErrNoDownload, ctx.Err())}
		}
	}()
	return ch
}

// Deliver completes the armed download capture with d. It reports false
// when no capture is armed.
func (p *Page) Deliver(d surface.Download) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.waiter == nil {
		return false
	}
	p.waiter <- surface.DownloadResult{Download: d}
	p.waiter = nil
	return true
}

// CloseOtherTabs implements surface.Page.
func (p *Page) CloseOtherTabs(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tabCloses++
	return nil
}

// TabCloses returns how many times CloseOtherTabs ran.
func (p *Page) TabCloses() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tabCloses
}

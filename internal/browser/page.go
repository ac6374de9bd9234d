package browser

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"

	"github.com/nao1215/dashcsv/internal/surface"
)

// Page is the dashboard page of a Session. It implements surface.Page.
type Page struct {
	session *Session
	rp      *rod.Page
}

var _ surface.Page = (*Page)(nil)

func (p *Page) with(ctx context.Context) *rod.Page {
	return p.rp.Context(ctx)
}

// networkIdleWait caps the wait for the page to go quiet after loading.
const networkIdleWait = 5 * time.Second

// Navigate loads url and waits for the load event, then briefly for the
// page to go idle. ctx bounds both waits.
func (p *Page) Navigate(ctx context.Context, url string) error {
	rp := p.with(ctx)
	if err := rp.Navigate(url); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	if err := rp.WaitLoad(); err != nil {
		return fmt.Errorf("wait for load: %w", err)
	}
	// Dashboards keep polling, so an idle page is not guaranteed.
	if err := rp.Timeout(networkIdleWait).WaitIdle(networkIdleWait); err != nil {
		p.session.logger.Debug("page did not go idle after load", "error", err)
	}
	return nil
}

// Find implements surface.Scope over the whole document.
func (p *Page) Find(ctx context.Context, q surface.Query) (surface.Control, error) {
	return find(ctx, p.with(ctx).Elements, q)
}

// Panels implements surface.Page.
func (p *Page) Panels(ctx context.Context, selector string) ([]surface.Panel, error) {
	els, err := p.with(ctx).Elements(selector)
	if err != nil {
		return nil, err
	}
	panels := make([]surface.Panel, 0, len(els))
	for _, el := range els {
		panels = append(panels, &panel{element{el: el}})
	}
	return panels, nil
}

// Dialogs returns the visible elements matching selector.
func (p *Page) Dialogs(ctx context.Context, selector string) ([]surface.Scope, error) {
	els, err := p.with(ctx).Elements(selector)
	if err != nil {
		return nil, err
	}
	var dialogs []surface.Scope
	for _, el := range els {
		if visible, err := el.Context(ctx).Visible(); err == nil && visible {
			dialogs = append(dialogs, &element{el: el})
		}
	}
	return dialogs, nil
}

// Frames returns the page followed by the document of every iframe.
// Frames that cannot be entered, such as cross-origin ones that are not
// loaded yet, are left out.
func (p *Page) Frames(ctx context.Context) ([]surface.Scope, error) {
	scopes := []surface.Scope{p}
	iframes, err := p.with(ctx).Elements("iframe")
	if err != nil {
		return scopes, err
	}
	for _, el := range iframes {
		fp, err := el.Context(ctx).Frame()
		if err != nil {
			continue
		}
		scopes = append(scopes, frame{rp: fp})
	}
	return scopes, nil
}

// Scroller returns the first element matching selector that can scroll
// vertically.
func (p *Page) Scroller(ctx context.Context, selector string) (surface.Scroller, error) {
	els, err := p.with(ctx).Elements(selector)
	if err != nil {
		return nil, err
	}
	for _, el := range els {
		res, err := el.Context(ctx).Eval(`() => this.scrollHeight > this.clientHeight + 1`)
		if err == nil && res.Value.Bool() {
			return scroller{el: el}, nil
		}
	}
	return nil, surface.ErrNotFound
}

// Wheel scrolls with the mouse wheel at the current pointer position.
func (p *Page) Wheel(ctx context.Context, dy float64) error {
	return p.with(ctx).Mouse.Scroll(0, dy, 1)
}

// PressEscape implements surface.Page.
func (p *Page) PressEscape(ctx context.Context) error {
	return p.with(ctx).Keyboard.Type(input.Escape)
}

// ExpectDownload arms a capture for the next download of the browser. The
// capture is armed before ExpectDownload returns, so a click issued after
// it cannot race the download.
func (p *Page) ExpectDownload(ctx context.Context) <-chan surface.DownloadResult {
	ch := make(chan surface.DownloadResult, 1)
	dir := p.session.downloadDir
	wait := p.session.browser.Context(ctx).WaitDownload(dir)

	go func() {
		info := wait()
		if err := ctx.Err(); err != nil || info == nil {
			ch <- surface.DownloadResult{Err: fmt.Errorf("%w: %v", surface.ErrNoDownload, context.Cause(ctx))}
			return
		}
		ch <- surface.DownloadResult{Download: &download{
			path: filepath.Join(dir, info.GUID),
			name: info.SuggestedFilename,
		}}
	}()
	return ch
}

// CloseOtherTabs closes every page but this one, which a download link may
// have opened, and brings this page to the front.
func (p *Page) CloseOtherTabs(ctx context.Context) error {
	pages, err := p.session.browser.Context(ctx).Pages()
	if err != nil {
		return err
	}
	for _, other := range pages {
		if other.TargetID == p.rp.TargetID {
			continue
		}
		if err := other.Context(ctx).Close(); err != nil {
			p.session.logger.Debug("closing tab failed", "target", other.TargetID, "error", err)
		}
	}
	_, err = p.with(ctx).Activate()
	return err
}

// frame is the document of an iframe.
type frame struct {
	rp *rod.Page
}

func (f frame) Find(ctx context.Context, q surface.Query) (surface.Control, error) {
	return find(ctx, f.rp.Context(ctx).Elements, q)
}

// scroller is a scrollable container element.
type scroller struct {
	el *rod.Element
}

// ScrollBy scrolls by 90% of the container height and reports whether the
// container did not move or is now at its end.
func (s scroller) ScrollBy(ctx context.Context) (bool, error) {
	res, err := s.el.Context(ctx).Eval(`() => {
		const before = this.scrollTop;
		this.scrollBy(0, Math.max(this.clientHeight * 0.9, 400));
		return this.scrollTop === before ||
			this.scrollTop + this.clientHeight >= this.scrollHeight - 2;
	}`)
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}

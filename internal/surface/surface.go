// Package surface defines the browser surface that the export state machine
// and the traversal controller drive. The interfaces describe a dashboard in
// terms of panels, scoped controls, dialogs, scroll containers and downloads;
// the go-rod backed implementation lives in the browser package and the
// in-memory fake used by tests lives in surfacetest.
//
// Lookups are non-blocking: Find reports ErrNotFound immediately when nothing
// matches. Waiting is the caller's job and is always bounded by a context.
package surface

import (
	"context"
	"errors"
	"regexp"
)

// ErrNotFound is returned by Scope.Find when no element matches a Query.
var ErrNotFound = errors.New("element not found")

// ErrNoDownload is delivered when a download capture ends without a file.
var ErrNoDownload = errors.New("no download captured")

// Query selects a control. Selector is a CSS selector. When Name is set, only
// elements whose accessible name (aria-label, falling back to visible text)
// matches it are considered.
type Query struct {
	Selector string
	Name     *regexp.Regexp
}

// String renders the query for log output.
func (q Query) String() string {
	if q.Name == nil {
		return q.Selector
	}
	return q.Selector + " name~" + q.Name.String()
}

// Control is a clickable element.
type Control interface {
	Click(ctx context.Context) error
	// Enabled reports false for disabled or aria-disabled elements.
	Enabled(ctx context.Context) (bool, error)
}

// Scope is a part of the page that can be searched for controls: the whole
// document, one panel, one dialog or one frame.
type Scope interface {
	Find(ctx context.Context, q Query) (Control, error)
}

// Panel is a transient handle to one rendered dashboard panel.
type Panel interface {
	Scope

	// Attribute returns the attribute value, or "" when it is absent.
	Attribute(ctx context.Context, name string) (string, error)
	// HeadingText returns the text of the panel's heading element, or "".
	HeadingText(ctx context.Context) (string, error)
	// Markup returns the panel's outer HTML.
	Markup(ctx context.Context) (string, error)
	ScrollIntoView(ctx context.Context) error
	Hover(ctx context.Context) error
}

// Scroller is a scrollable container on the page.
type Scroller interface {
	// ScrollBy advances the container by about one viewport. atBottom is
	// true when the container did not move or has reached its end.
	ScrollBy(ctx context.Context) (atBottom bool, err error)
}

// Download is a file captured from a download event.
type Download interface {
	SuggestedFilename() string
	// SaveAs moves the captured file to path.
	SaveAs(path string) error
}

// DownloadResult is delivered exactly once on the channel returned by
// Page.ExpectDownload.
type DownloadResult struct {
	Download Download
	Err      error
}

// Page is the dashboard page of one browsing session.
type Page interface {
	Scope

	Navigate(ctx context.Context, url string) error
	// Panels snapshots the currently rendered panels matching selector.
	Panels(ctx context.Context, selector string) ([]Panel, error)
	// Dialogs returns the open dialogs matching selector.
	Dialogs(ctx context.Context, selector string) ([]Scope, error)
	// Frames returns the main document followed by every child frame.
	Frames(ctx context.Context) ([]Scope, error)
	// Scroller returns the first container matching selector.
	Scroller(ctx context.Context, selector string) (Scroller, error)
	// Wheel scrolls the page with the mouse wheel by dy pixels.
	Wheel(ctx context.Context, dy float64) error
	PressEscape(ctx context.Context) error
	// ExpectDownload arms a download capture. The channel yields one result:
	// the next completed download, or an error once ctx is done.
	ExpectDownload(ctx context.Context) <-chan DownloadResult
	// CloseOtherTabs closes every tab except this one and focuses it.
	CloseOtherTabs(ctx context.Context) error
}

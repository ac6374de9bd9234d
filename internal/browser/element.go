package browser

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/nao1215/dashcsv/internal/surface"
)

// headingSelector locates a panel's title inside the panel.
const headingSelector = `h2, [data-test-subj="dashboardPanelTitle"], figcaption`

// accessibleNameJS approximates the accessible name the way the lookups
// need it: aria-label first, then the rendered text.
const accessibleNameJS = `() => (this.getAttribute('aria-label') || this.innerText || this.textContent || '').trim()`

// element is a scope and a control backed by one DOM element.
type element struct {
	el *rod.Element
}

func (e *element) Find(ctx context.Context, q surface.Query) (surface.Control, error) {
	return find(ctx, e.el.Context(ctx).Elements, q)
}

func (e *element) Click(ctx context.Context) error {
	el := e.el.Context(ctx)
	if err := el.ScrollIntoView(); err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (e *element) Enabled(ctx context.Context) (bool, error) {
	res, err := e.el.Context(ctx).Eval(`() => !(this.disabled || this.getAttribute('aria-disabled') === 'true')`)
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}

// panel is a rendered dashboard panel.
type panel struct {
	element
}

func (p *panel) Attribute(ctx context.Context, name string) (string, error) {
	v, err := p.el.Context(ctx).Attribute(name)
	if err != nil || v == nil {
		return "", err
	}
	return *v, nil
}

func (p *panel) HeadingText(ctx context.Context) (string, error) {
	els, err := p.el.Context(ctx).Elements(headingSelector)
	if err != nil || len(els) == 0 {
		return "", err
	}
	return els.First().Context(ctx).Text()
}

func (p *panel) Markup(ctx context.Context) (string, error) {
	return p.el.Context(ctx).HTML()
}

func (p *panel) ScrollIntoView(ctx context.Context) error {
	return p.el.Context(ctx).ScrollIntoView()
}

func (p *panel) Hover(ctx context.Context) error {
	return p.el.Context(ctx).Hover()
}

// find returns the first visible element listed by list that matches q.
func find(ctx context.Context, list func(string) (rod.Elements, error), q surface.Query) (surface.Control, error) {
	els, err := list(q.Selector)
	if err != nil {
		return nil, err
	}
	for _, el := range els {
		el := el.Context(ctx)
		if visible, err := el.Visible(); err != nil || !visible {
			continue
		}
		if q.Name != nil {
			res, err := el.Eval(accessibleNameJS)
			if err != nil || !nameMatches(q, res.Value.Str()) {
				continue
			}
		}
		return &element{el: el}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return nil, surface.ErrNotFound
}

// nameMatches reports whether name satisfies the name filter of q.
// Whitespace runs in rendered text are collapsed first.
func nameMatches(q surface.Query, name string) bool {
	if q.Name == nil {
		return true
	}
	return q.Name.MatchString(strings.Join(strings.Fields(name), " "))
}

// download is a finished download waiting in the session's download
// directory under its GUID.
type download struct {
	path string
	name string
}

func (d *download) SuggestedFilename() string {
	return d.name
}

// SaveAs moves the file to path, copying when a rename is not possible
// across file systems.
func (d *download) SaveAs(path string) error {
	err := os.Rename(d.path, path)
	if err == nil {
		return nil
	}
	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) {
		return err
	}
	if err := copyFile(d.path, path); err != nil {
		return err
	}
	return os.Remove(d.path)
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src) //nolint:gosec // src is inside the session's download directory
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600) //nolint:gosec // dst is a path chosen not to overwrite
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
	}()
	_, err = io.Copy(out, in)
	return err
}

package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/nao1215/dashcsv/internal/config"
	"github.com/nao1215/dashcsv/internal/surface"
)

// ErrLaunch is returned when Chromium cannot be started or reached.
var ErrLaunch = errors.New("cannot launch browser")

// Options configures a browser session.
type Options struct {
	// Bin is the Chromium executable. Empty means the system browser when
	// one is found, otherwise the one rod downloads.
	Bin string

	Headless bool

	// SlowMotion delays every input action.
	SlowMotion time.Duration

	ViewportWidth  int
	ViewportHeight int

	// DownloadDir receives downloads before they are moved into place.
	// Empty means a fresh temporary directory removed on Close.
	DownloadDir string

	Logger *slog.Logger
}

// Session is a running browser with one dashboard page.
type Session struct {
	launcher    *launcher.Launcher
	browser     *rod.Browser
	page        *Page
	downloadDir string
	ownsDir     bool
	logger      *slog.Logger
}

// Launch starts Chromium and opens a blank page with the configured
// viewport.
func Launch(ctx context.Context, opts Options) (*Session, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ViewportWidth <= 0 {
		opts.ViewportWidth = config.DefaultViewportWidth
	}
	if opts.ViewportHeight <= 0 {
		opts.ViewportHeight = config.DefaultViewportHeight
	}

	s := &Session{logger: logger, downloadDir: opts.DownloadDir}
	if s.downloadDir == "" {
		dir, err := os.MkdirTemp("", "dashcsv-downloads-")
		if err != nil {
			return nil, fmt.Errorf("create download directory: %w", err)
		}
		s.downloadDir = dir
		s.ownsDir = true
	} else if err := os.MkdirAll(s.downloadDir, 0o750); err != nil {
		return nil, fmt.Errorf("create download directory: %w", err)
	}

	bin := opts.Bin
	if bin == "" {
		if path, ok := launcher.LookPath(); ok {
			bin = path
		}
	}
	l := launcher.New().
		Context(ctx).
		Headless(opts.Headless).
		NoSandbox(os.Geteuid() == 0).
		Set("lang", "en-US")
	if bin != "" {
		l = l.Bin(bin)
	}
	s.launcher = l

	controlURL, err := l.Launch()
	if err != nil {
		s.cleanupDir()
		return nil, fmt.Errorf("%w: %w", ErrLaunch, err)
	}
	logger.Debug("browser launched", "bin", bin, "headless", opts.Headless)

	b := rod.New().ControlURL(controlURL)
	if opts.SlowMotion > 0 {
		b = b.SlowMotion(opts.SlowMotion)
	}
	if err := b.Connect(); err != nil {
		l.Kill()
		s.cleanupDir()
		return nil, fmt.Errorf("%w: connect: %w", ErrLaunch, err)
	}
	s.browser = b

	p, err := b.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("%w: open page: %w", ErrLaunch, err)
	}
	err = p.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             opts.ViewportWidth,
		Height:            opts.ViewportHeight,
		DeviceScaleFactor: 1,
	})
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("%w: set viewport: %w", ErrLaunch, err)
	}
	s.page = &Page{session: s, rp: p.Context(context.Background())}
	return s, nil
}

// Page returns the dashboard page.
func (s *Session) Page() surface.Page {
	return s.page
}

// Close shuts the browser down and removes the temporary download
// directory.
func (s *Session) Close() error {
	var err error
	if s.browser != nil {
		err = s.browser.Close()
	}
	if s.launcher != nil {
		s.launcher.Kill()
		s.launcher.Cleanup()
	}
	s.cleanupDir()
	return err
}

func (s *Session) cleanupDir() {
	if s.ownsDir {
		if err := os.RemoveAll(s.downloadDir); err != nil {
			s.logger.Debug("removing download directory failed", "dir", s.downloadDir, "error", err)
		}
	}
}

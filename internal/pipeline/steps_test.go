package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nao1215/dashcsv/internal/config"
	"github.com/nao1215/dashcsv/internal/exporter"
	"github.com/nao1215/dashcsv/internal/model"
	"github.com/nao1215/dashcsv/internal/surface/surfacetest"
	"github.com/nao1215/dashcsv/internal/traversal"
)

func testStepOptions() []StepOption {
	return []StepOption{
		WithStepLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithPollInterval(5 * time.Millisecond),
	}
}

const guestSelector = `[data-test-subj="loginAsGuestButton"]`

func TestNavigateStep(t *testing.T) {
	t.Parallel()

	t.Run("opens the run url", func(t *testing.T) {
		t.Parallel()

		page := &surfacetest.Page{}
		run := newRun()
		if err := NewNavigateStep(page, time.Second, testStepOptions()...).Do(context.Background(), run); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := page.Navigated(); len(got) != 1 || got[0] != run.URL {
			t.Errorf("unexpected navigation %v", got)
		}
	})

	t.Run("wraps navigation failures", func(t *testing.T) {
		t.Parallel()

		page := &surfacetest.Page{NavigateErr: errors.New("net::ERR_NAME_NOT_RESOLVED")}
		err := NewNavigateStep(page, time.Second, testStepOptions()...).Do(context.Background(), newRun())
		if !errors.Is(err, ErrNavigation) {
			t.Errorf("expected ErrNavigation, got %v", err)
		}
	})

	t.Run("gives up on a page that never loads", func(t *testing.T) {
		t.Parallel()

		page := &surfacetest.Page{NavigateHangs: true}
		step := NewNavigateStep(page, 50*time.Millisecond, testStepOptions()...)

		done := make(chan error, 1)
		go func() { done <- step.Do(context.Background(), newRun()) }()

		select {
		case err := <-done:
			if !errors.Is(err, ErrNavigation) || !errors.Is(err, context.DeadlineExceeded) {
				t.Errorf("expected a navigation timeout, got %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("navigation was not bounded by the step timeout")
		}
	})

	t.Run("zero timeout uses the default", func(t *testing.T) {
		t.Parallel()

		step := NewNavigateStep(&surfacetest.Page{}, 0)
		if step.timeout != DefaultNavigateTimeout {
			t.Errorf("expected %s, got %s", DefaultNavigateTimeout, step.timeout)
		}
	})
}

func TestGuestAccessStep(t *testing.T) {
	t.Parallel()

	t.Run("waits at most the timeout, capped", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			timeout time.Duration
			want    time.Duration
		}{
			{timeout: 2 * time.Second, want: 2 * time.Second},
			{timeout: 45 * time.Second, want: MaxGuestWait},
			{timeout: 0, want: MaxGuestWait},
		}
		for _, tt := range tests {
			step := NewGuestAccessStep(&surfacetest.Page{}, nil, tt.timeout)
			if step.wait != tt.want {
				t.Errorf("timeout %s: expected wait %s, got %s", tt.timeout, tt.want, step.wait)
			}
		}
	})

	t.Run("clicks the guest button in the page", func(t *testing.T) {
		t.Parallel()

		page := &surfacetest.Page{}
		button := &surfacetest.Control{Selector: guestSelector}
		page.Add(button)

		run := newRun()
		step := NewGuestAccessStep(page, []string{guestSelector}, time.Second, testStepOptions()...)
		if err := step.Do(context.Background(), run); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !run.GuestAccess || button.Clicks() != 1 {
			t.Errorf("expected one guest click, got access=%v clicks=%d", run.GuestAccess, button.Clicks())
		}
	})

	t.Run("finds the guest link by name inside a frame", func(t *testing.T) {
		t.Parallel()

		frame := &surfacetest.Scope{}
		link := &surfacetest.Control{Name: "Continue as Guest"}
		frame.Add(link)
		page := &surfacetest.Page{FrameList: []*surfacetest.Scope{frame}}

		run := newRun()
		step := NewGuestAccessStep(page, []string{guestSelector}, time.Second, testStepOptions()...)
		if err := step.Do(context.Background(), run); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !run.GuestAccess || link.Clicks() != 1 {
			t.Errorf("expected the frame link to be clicked, got access=%v clicks=%d", run.GuestAccess, link.Clicks())
		}
	})

	t.Run("missing button is not an error", func(t *testing.T) {
		t.Parallel()

		run := newRun()
		step := NewGuestAccessStep(&surfacetest.Page{}, []string{guestSelector}, 30*time.Millisecond, testStepOptions()...)
		if err := step.Do(context.Background(), run); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if run.GuestAccess {
			t.Error("expected no guest access")
		}
	})

	t.Run("unclickable button is not an error", func(t *testing.T) {
		t.Parallel()

		page := &surfacetest.Page{}
		page.Add(&surfacetest.Control{Selector: guestSelector, OnClick: func() error { return errors.New("covered") }})

		run := newRun()
		step := NewGuestAccessStep(page, []string{guestSelector}, 30*time.Millisecond, testStepOptions()...)
		if err := step.Do(context.Background(), run); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if run.GuestAccess {
			t.Error("expected no guest access")
		}
	})

	t.Run("reports cancellation", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		step := NewGuestAccessStep(&surfacetest.Page{}, nil, time.Second, testStepOptions()...)
		if err := step.Do(ctx, newRun()); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestWaitPanelsStep(t *testing.T) {
	t.Parallel()

	t.Run("records the initial panel count", func(t *testing.T) {
		t.Parallel()

		page := &surfacetest.Page{PanelsFunc: func(int) []*surfacetest.Panel {
			return []*surfacetest.Panel{{}, {}}
		}}
		run := newRun()
		step := NewWaitPanelsStep(page, config.DefaultSelectors().PanelSelector(), time.Second, testStepOptions()...)
		if err := step.Do(context.Background(), run); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if run.InitialPanels != 2 {
			t.Errorf("expected 2 initial panels, got %d", run.InitialPanels)
		}
	})

	t.Run("fails when no panel renders", func(t *testing.T) {
		t.Parallel()

		step := NewWaitPanelsStep(&surfacetest.Page{}, "[role=figure]", 30*time.Millisecond, testStepOptions()...)
		if err := step.Do(context.Background(), newRun()); !errors.Is(err, ErrNoPanels) {
			t.Errorf("expected ErrNoPanels, got %v", err)
		}
	})
}

func TestTraverseStep(t *testing.T) {
	t.Parallel()

	panel := &surfacetest.Panel{Attrs: map[string]string{"aria-label": "Dashboard panel: Sales"}}
	page := &surfacetest.Page{PanelsFunc: func(int) []*surfacetest.Panel {
		return []*surfacetest.Panel{panel}
	}}
	exportOpts := exporter.Options{
		Timeout:      time.Second,
		Selectors:    config.DefaultSelectors(),
		OptionsWait:  20 * time.Millisecond,
		Grace:        time.Millisecond,
		CloseTimeout: 50 * time.Millisecond,
		PollInterval: 5 * time.Millisecond,
	}
	traverseCfg := traversal.Config{
		PanelSelector: "[role=figure]",
		MaxPasses:     10,
		MaxIdlePasses: 2,
		Pause:         time.Millisecond,
	}
	var observed []model.ExportAttempt
	observer := func(a model.ExportAttempt) { observed = append(observed, a) }

	run := newRun()
	run.OutDir = t.TempDir()
	step := NewTraverseStep(page, exportOpts, traverseCfg, observer, testStepOptions()...)
	if err := step.Do(context.Background(), run); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if run.Stats.Discovered != 1 || run.Stats.Skipped != 1 || run.Stats.Stop != model.StopIdle {
		t.Errorf("unexpected stats %+v", run.Stats)
	}
	if len(run.Attempts) != 1 || len(observed) != 1 {
		t.Fatalf("expected one recorded and observed attempt, got %d and %d", len(run.Attempts), len(observed))
	}
	a := run.Attempts[0]
	if a.Outcome != model.OutcomeSkipped || a.PanelKey != "Dashboard panel: Sales" || a.PanelName != "Sales" {
		t.Errorf("unexpected attempt %+v", a)
	}
}

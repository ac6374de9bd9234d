package identity

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/nao1215/dashcsv/internal/surface/surfacetest"
)

func TestPanelKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		panel *surfacetest.Panel
		want  string
	}{
		{
			name: "aria-label wins and is used verbatim",
			panel: &surfacetest.Panel{
				Attrs:   map[string]string{"aria-label": "Dashboard panel: Sales", "data-title": "Sales", "id": "p1"},
				Heading: "Sales",
			},
			want: "Dashboard panel: Sales",
		},
		{
			name:  "data-title is prefixed",
			panel: &surfacetest.Panel{Attrs: map[string]string{"data-title": "Sales", "id": "p1"}, Heading: "x"},
			want:  "title:Sales",
		},
		{
			name:  "heading text is prefixed",
			panel: &surfacetest.Panel{Attrs: map[string]string{"id": "p1"}, Heading: "Top hosts"},
			want:  "h2:Top hosts",
		},
		{
			name:  "id before data-test-subj",
			panel: &surfacetest.Panel{Attrs: map[string]string{"id": "p1", "data-test-subj": "panel-2"}},
			want:  "id:p1",
		},
		{
			name:  "data-test-subj when id is missing",
			panel: &surfacetest.Panel{Attrs: map[string]string{"data-test-subj": "panel-2"}},
			want:  "id:panel-2",
		},
		{
			name:  "blank aria-label is skipped",
			panel: &surfacetest.Panel{Attrs: map[string]string{"aria-label": "  ", "data-title": "T"}},
			want:  "title:T",
		},
		{
			name:  "markup fingerprint",
			panel: &surfacetest.Panel{HTML: `<div class="panel">chart</div>`},
			want:  "fp:" + Fingerprint(`<div class="panel">chart</div>`),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, fallback := PanelKey(context.Background(), tt.panel)
			if got != tt.want {
				t.Errorf("PanelKey() = %q, want %q", got, tt.want)
			}
			if fallback {
				t.Error("expected fallback to be false")
			}
		})
	}

	t.Run("deterministic for an unchanged panel", func(t *testing.T) {
		t.Parallel()

		p := &surfacetest.Panel{HTML: strings.Repeat("<span>", 40)}
		a, _ := PanelKey(context.Background(), p)
		b, _ := PanelKey(context.Background(), p)
		if a != b {
			t.Errorf("keys differ: %q vs %q", a, b)
		}
	})

	t.Run("last resort keys are unique and flagged", func(t *testing.T) {
		t.Parallel()

		p := &surfacetest.Panel{}
		a, fa := PanelKey(context.Background(), p)
		b, fb := PanelKey(context.Background(), p)
		if !fa || !fb {
			t.Error("expected fallback to be true")
		}
		if a == b {
			t.Errorf("expected unique keys, got %q twice", a)
		}
		if !strings.HasPrefix(a, "panel:") {
			t.Errorf("expected panel: prefix, got %q", a)
		}
	})
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	prefix := strings.Repeat("a", 80)
	if Fingerprint(prefix+"tail one") != Fingerprint(prefix+"tail two") {
		t.Error("expected only the first 80 runes to be hashed")
	}
	if Fingerprint("a") == Fingerprint("b") {
		t.Error("expected different markup to hash differently")
	}
	if got := len(Fingerprint("x")); got != 16 {
		t.Errorf("expected 16 hex digits, got %d", got)
	}
}

func TestDisplayName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		panel    *surfacetest.Panel
		fallback string
		want     string
	}{
		{
			name:  "strips panel prefix from aria-label",
			panel: &surfacetest.Panel{Attrs: map[string]string{"aria-label": "Dashboard panel: Sales by region"}},
			want:  "Sales by region",
		},
		{
			name:  "prefix match is case-insensitive",
			panel: &surfacetest.Panel{Attrs: map[string]string{"aria-label": "dashboard PANEL:Errors"}},
			want:  "Errors",
		},
		{
			name:  "uses heading when aria-label is missing",
			panel: &surfacetest.Panel{Heading: "Dashboard panel: Top / hosts"},
			want:  "Top hosts",
		},
		{
			name:     "falls back to default name",
			panel:    &surfacetest.Panel{},
			fallback: "panel-3",
			want:     "panel-3",
		},
		{
			name:     "prefix only falls back",
			panel:    &surfacetest.Panel{Attrs: map[string]string{"aria-label": "Dashboard panel: "}},
			fallback: "panel-1",
			want:     "panel-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := DisplayName(context.Background(), tt.panel, tt.fallback); got != tt.want {
				t.Errorf("DisplayName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "Sales Report", want: "Sales Report"},
		{name: "forbidden run becomes one space", in: `a/\:*?"<>|b`, want: "a b"},
		{name: "line breaks", in: "first\r\nsecond", want: "first second"},
		{name: "collapses and trims whitespace", in: "  a \t  b  ", want: "a b"},
		{name: "normalizes to NFC", in: "Cafe\u0301", want: "Caf\u00e9"},
		{name: "keeps unicode", in: "銷售報表 - export.csv", want: "銷售報表 - export.csv"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := SanitizeFilename(tt.in); got != tt.want {
				t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}

	t.Run("caps at 180 runes", func(t *testing.T) {
		t.Parallel()

		got := SanitizeFilename(strings.Repeat("報", 300))
		if n := utf8.RuneCountInString(got); n != MaxFilenameRunes {
			t.Errorf("expected %d runes, got %d", MaxFilenameRunes, n)
		}
		if !utf8.ValidString(got) {
			t.Error("expected valid UTF-8 after truncation")
		}
	})
}

func TestReportKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "Sales Report - export (1).csv", want: "Sales Report"},
		{in: "Summary.csv", want: "Summary"},
		{in: "2024-05-01/Errors - data.csv", want: "Errors"},
		{in: "A - B - C.csv", want: "A"},
		{in: "No-spaces-dash.csv", want: "No-spaces-dash"},
		{in: "  Padded   - x.csv", want: "Padded"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			if got := ReportKey(tt.in); got != tt.want {
				t.Errorf("ReportKey(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestOutputName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{in: "Sales Report", want: "Sales Report.csv"},
		{in: `a/b\c?d%e*f:g|h"i<j>k`, want: "a-b-c-d-e-f-g-h-i-j-k.csv"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			if got := OutputName(tt.in); got != tt.want {
				t.Errorf("OutputName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

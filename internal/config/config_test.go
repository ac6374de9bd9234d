package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// TestNewConfig verifies that NewConfig returns a Config with all expected default values.
// Changes to defaults must be intentional, so each one is pinned here.
func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	t.Run("default Timeout is 45 seconds", func(t *testing.T) {
		t.Parallel()
		if cfg.Timeout != 45*time.Second {
			t.Errorf("expected Timeout to be 45s, got %v", cfg.Timeout)
		}
	})

	t.Run("default OutDir is downloads", func(t *testing.T) {
		t.Parallel()
		if cfg.OutDir != "downloads" {
			t.Errorf("expected OutDir to be 'downloads', got %q", cfg.OutDir)
		}
	})

	t.Run("default consolidation reads downloads into analysis_output", func(t *testing.T) {
		t.Parallel()
		if cfg.ConsolidateInput != "downloads" {
			t.Errorf("expected ConsolidateInput 'downloads', got %q", cfg.ConsolidateInput)
		}
		if cfg.ConsolidateOutput != "analysis_output" {
			t.Errorf("expected ConsolidateOutput 'analysis_output', got %q", cfg.ConsolidateOutput)
		}
	})

	t.Run("default traversal limits are 40 passes and 5 idle passes", func(t *testing.T) {
		t.Parallel()
		if cfg.MaxPasses != 40 {
			t.Errorf("expected MaxPasses 40, got %d", cfg.MaxPasses)
		}
		if cfg.MaxIdlePasses != 5 {
			t.Errorf("expected MaxIdlePasses 5, got %d", cfg.MaxIdlePasses)
		}
	})

	t.Run("default viewport is 1600x1200", func(t *testing.T) {
		t.Parallel()
		if cfg.ViewportWidth != 1600 || cfg.ViewportHeight != 1200 {
			t.Errorf("expected 1600x1200, got %dx%d", cfg.ViewportWidth, cfg.ViewportHeight)
		}
	})

	t.Run("default is headless with ledger enabled", func(t *testing.T) {
		t.Parallel()
		if !cfg.Headless {
			t.Error("expected Headless to be true")
		}
		if !cfg.SaveToDB {
			t.Error("expected SaveToDB to be true")
		}
	})
}

// TestConfigValidateExport tests the export validation rules one at a time.
func TestConfigValidateExport(t *testing.T) {
	t.Parallel()

	validConfig := func() *Config {
		cfg := NewConfig()
		cfg.URL = "https://kibana.example.com/app/dashboards#/view/abc"
		return cfg
	}

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr error
	}{
		{name: "valid config returns nil", modify: func(*Config) {}},
		{name: "valid dates return nil", modify: func(c *Config) { c.Dates = []string{"2024-05-01", "2024-05-02"} }},
		{name: "empty URL", modify: func(c *Config) { c.URL = "" }, wantErr: ErrNoURL},
		{name: "zero timeout", modify: func(c *Config) { c.Timeout = 0 }, wantErr: ErrInvalidTimeout},
		{name: "negative timeout", modify: func(c *Config) { c.Timeout = -time.Second }, wantErr: ErrInvalidTimeout},
		{name: "empty out dir", modify: func(c *Config) { c.OutDir = "" }, wantErr: ErrNoOutDir},
		{name: "zero passes", modify: func(c *Config) { c.MaxPasses = 0 }, wantErr: ErrInvalidPasses},
		{name: "zero idle passes", modify: func(c *Config) { c.MaxIdlePasses = 0 }, wantErr: ErrInvalidPasses},
		{name: "malformed date", modify: func(c *Config) { c.Dates = []string{"2024/05/01"} }, wantErr: ErrInvalidDate},
		{name: "empty panel selectors", modify: func(c *Config) { c.Selectors.Panels = nil }, wantErr: ErrEmptySelector},
		{
			name:    "both report formats",
			modify:  func(c *Config) { c.JSONReport, c.MarkdownReport = true, true },
			wantErr: ErrConflictingReportFormats,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.modify(cfg)
			err := cfg.ValidateExport()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

// TestConfigValidateConsolidate tests the consolidation validation rules.
func TestConfigValidateConsolidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr error
	}{
		{name: "defaults are valid", modify: func(*Config) {}},
		{name: "URL is not required", modify: func(c *Config) { c.URL = "" }},
		{name: "empty input", modify: func(c *Config) { c.ConsolidateInput = "" }, wantErr: ErrNoInputDir},
		{name: "empty output", modify: func(c *Config) { c.ConsolidateOutput = "" }, wantErr: ErrNoOutDir},
		{name: "zero concurrency", modify: func(c *Config) { c.Concurrency = 0 }, wantErr: ErrInvalidConcurrency},
		{
			name:    "output is the input",
			modify:  func(c *Config) { c.ConsolidateInput, c.ConsolidateOutput = "exports", "exports/" },
			wantErr: ErrOutputContainsInput,
		},
		{
			name:    "output is a parent of the input",
			modify:  func(c *Config) { c.ConsolidateInput, c.ConsolidateOutput = "exports/2024", "exports" },
			wantErr: ErrOutputContainsInput,
		},
		{
			name:   "output below the input",
			modify: func(c *Config) { c.ConsolidateInput, c.ConsolidateOutput = "exports", "exports/merged" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := NewConfig()
			tt.modify(cfg)
			err := cfg.ValidateConsolidate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

// TestConfigValidateHistory tests that only the report format is checked.
func TestConfigValidateHistory(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()
	cfg.URL = ""
	if err := cfg.ValidateHistory(); err != nil {
		t.Errorf("expected no error, got %v", err)
	}

	cfg.JSONReport, cfg.MarkdownReport = true, true
	if err := cfg.ValidateHistory(); !errors.Is(err, ErrConflictingReportFormats) {
		t.Errorf("expected %v, got %v", ErrConflictingReportFormats, err)
	}
}

// TestApplyFile tests that file values overlay defaults only where set.
func TestApplyFile(t *testing.T) {
	t.Parallel()

	t.Run("nil file keeps defaults", func(t *testing.T) {
		t.Parallel()

		cfg := NewConfig()
		cfg.ApplyFile(nil)
		if diff := cmp.Diff(NewConfig(), cfg); diff != "" {
			t.Errorf("config changed (-want +got):\n%s", diff)
		}
	})

	t.Run("set values override, unset values keep defaults", func(t *testing.T) {
		t.Parallel()

		cfg := NewConfig()
		cfg.ApplyFile(&File{
			Selectors: Selectors{Scrollers: []string{"#grid"}},
			Browser:   BrowserFile{Bin: "/usr/bin/chromium", ViewportWidth: 1920},
			Traversal: TraversalFile{MaxIdlePasses: 3},
			Consolidate: ConsolidateFile{
				Output:      "merged",
				Concurrency: 8,
			},
		})

		if cfg.BrowserBin != "/usr/bin/chromium" {
			t.Errorf("expected browser bin override, got %q", cfg.BrowserBin)
		}
		if cfg.ViewportWidth != 1920 || cfg.ViewportHeight != DefaultViewportHeight {
			t.Errorf("unexpected viewport %dx%d", cfg.ViewportWidth, cfg.ViewportHeight)
		}
		if cfg.MaxIdlePasses != 3 || cfg.MaxPasses != DefaultMaxPasses {
			t.Errorf("unexpected traversal limits %d/%d", cfg.MaxPasses, cfg.MaxIdlePasses)
		}
		if cfg.ConsolidateOutput != "merged" || cfg.ConsolidateInput != DefaultOutDir {
			t.Errorf("unexpected consolidation dirs %q -> %q", cfg.ConsolidateInput, cfg.ConsolidateOutput)
		}
		if cfg.Concurrency != 8 {
			t.Errorf("expected concurrency 8, got %d", cfg.Concurrency)
		}
		if diff := cmp.Diff([]string{"#grid"}, cfg.Selectors.Scrollers); diff != "" {
			t.Errorf("scrollers mismatch (-want +got):\n%s", diff)
		}
		if diff := cmp.Diff(DefaultSelectors().PanelOptions, cfg.Selectors.PanelOptions); diff != "" {
			t.Errorf("panel options should keep defaults (-want +got):\n%s", diff)
		}
	})
}

// TestSelectors tests selector helpers.
func TestSelectors(t *testing.T) {
	t.Parallel()

	t.Run("defaults validate", func(t *testing.T) {
		t.Parallel()
		if err := DefaultSelectors().Validate(); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})

	t.Run("missing dialogs is reported by name", func(t *testing.T) {
		t.Parallel()

		s := DefaultSelectors()
		s.Dialogs = nil
		err := s.Validate()
		if !errors.Is(err, ErrEmptySelector) {
			t.Fatalf("expected ErrEmptySelector, got %v", err)
		}
		if got := err.Error(); got != "selector list must not be empty: dialogs" {
			t.Errorf("unexpected message %q", got)
		}
	})

	t.Run("panel selector joins the group", func(t *testing.T) {
		t.Parallel()

		s := Selectors{Panels: []string{".a", ".b"}}
		if got := s.PanelSelector(); got != ".a, .b" {
			t.Errorf("expected '.a, .b', got %q", got)
		}
	})
}

// TestLoadConfigFile tests the LoadConfigFile function.
func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("returns ErrConfigNotFound for non-existent file", func(t *testing.T) {
		t.Parallel()

		cfg, err := LoadConfigFile("/nonexistent/path/.dashcsv")
		if !errors.Is(err, ErrConfigNotFound) {
			t.Fatalf("expected ErrConfigNotFound, got: %v", err)
		}
		if cfg != nil {
			t.Error("expected nil config when file not found")
		}
	})

	t.Run("loads valid YAML config", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), ".dashcsv")
		content := `selectors:
  panelOptions:
    - 'button[data-test-subj="panelMenu"]'
browser:
  bin: /opt/chrome/chrome
  viewportHeight: 2000
traversal:
  maxPasses: 10
consolidate:
  input: exports
`
		if err := os.WriteFile(configPath, []byte(content), 0o600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		f, err := LoadConfigFile(configPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := &File{
			Selectors:   Selectors{PanelOptions: []string{`button[data-test-subj="panelMenu"]`}},
			Browser:     BrowserFile{Bin: "/opt/chrome/chrome", ViewportHeight: 2000},
			Traversal:   TraversalFile{MaxPasses: 10},
			Consolidate: ConsolidateFile{Input: "exports"},
		}
		if diff := cmp.Diff(want, f); diff != "" {
			t.Errorf("file mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("returns error for invalid YAML", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), ".dashcsv")
		if err := os.WriteFile(configPath, []byte(`invalid: yaml: content: [}`), 0o600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		if _, err := LoadConfigFile(configPath); err == nil {
			t.Error("expected error for invalid YAML")
		}
	})
}

// TestFindConfigFile tests the FindConfigFile function.
func TestFindConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("returns explicit path if exists", func(t *testing.T) {
		t.Parallel()

		configPath := filepath.Join(t.TempDir(), "custom.yaml")
		if err := os.WriteFile(configPath, []byte("selectors: {}"), 0o600); err != nil {
			t.Fatalf("failed to write test config: %v", err)
		}

		if got := FindConfigFile(configPath); got != configPath {
			t.Errorf("expected %q, got %q", configPath, got)
		}
	})

	t.Run("returns empty for non-existent explicit path", func(t *testing.T) {
		t.Parallel()

		if got := FindConfigFile("/nonexistent/path/config.yaml"); got != "" {
			t.Errorf("expected empty string, got %q", got)
		}
	})
}

// TestXDGDirs tests XDG directory functions.
func TestXDGDirs(t *testing.T) {
	t.Parallel()

	if XDGDataDir() == "" {
		t.Error("expected non-empty XDG data dir")
	}
	if XDGConfigDir() == "" {
		t.Error("expected non-empty XDG config dir")
	}
	if filepath.Base(XDGDataDir()) != AppName {
		t.Errorf("expected data dir to end with %q, got %q", AppName, XDGDataDir())
	}
}

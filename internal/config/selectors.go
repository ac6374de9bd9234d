package config

import (
	"fmt"
	"strings"
)

// Selectors groups the CSS selectors used to find dashboard affordances.
// Each list is tried in order; the first match wins. Name-based lookups
// (such as a button labelled "Inspect") are fixed in the exporter and are
// not configurable.
type Selectors struct {
	// Panels match the dashboard panel containers.
	Panels []string `yaml:"panels,omitempty"`

	// PanelOptions match the options menu toggle inside a panel.
	PanelOptions []string `yaml:"panelOptions,omitempty"`

	// Loading match spinners and progress markers that indicate a panel or
	// inspector is still rendering.
	Loading []string `yaml:"loading,omitempty"`

	// Dialogs match flyouts and modals such as the inspector.
	Dialogs []string `yaml:"dialogs,omitempty"`

	// CloseButtons match dialog close buttons.
	CloseButtons []string `yaml:"closeButtons,omitempty"`

	// GuestButtons match the "continue as guest" login bypass.
	GuestButtons []string `yaml:"guestButtons,omitempty"`

	// Scrollers match the dashboard's scroll containers.
	Scrollers []string `yaml:"scrollers,omitempty"`
}

// DefaultSelectors returns the selectors for Kibana 7 and 8 dashboards.
func DefaultSelectors() Selectors {
	return Selectors{
		Panels: []string{
			`[role="figure"][aria-label*="Dashboard panel" i]`,
		},
		PanelOptions: []string{
			`button[aria-label="Panel options"]`,
			`button[aria-label*="Panel options"]`,
			`[data-test-subj="embeddablePanelToggleMenuIcon"]`,
			`[data-test-subj^="embeddablePanelOptions"]`,
		},
		Loading: []string{
			`[data-test-subj="loadingSpinner"]`,
			`.euiLoadingChart`,
			`.euiLoadingSpinner`,
			`.euiProgress`,
			`[aria-busy="true"]`,
		},
		Dialogs: []string{
			`[role="dialog"]`,
		},
		CloseButtons: []string{
			`[data-test-subj="euiFlyoutCloseButton"]`,
			`[data-test-subj="modalCloseButton"]`,
			`button[aria-label="Close"]`,
			`button[aria-label*="Close"]`,
		},
		GuestButtons: []string{
			`[data-test-subj="loginAsGuestButton"]`,
		},
		Scrollers: []string{
			`[data-test-subj="dashboardViewport"]`,
			`[data-test-subj="dashboardViewport__scroll"]`,
			`[data-test-subj*="dashboard"]`,
			`main[role="main"]`,
			`[role="main"]`,
		},
	}
}

// Merge returns s with every non-empty list of o replacing its counterpart.
func (s Selectors) Merge(o Selectors) Selectors {
	pick := func(base, override []string) []string {
		if len(override) > 0 {
			return override
		}
		return base
	}
	return Selectors{
		Panels:       pick(s.Panels, o.Panels),
		PanelOptions: pick(s.PanelOptions, o.PanelOptions),
		Loading:      pick(s.Loading, o.Loading),
		Dialogs:      pick(s.Dialogs, o.Dialogs),
		CloseButtons: pick(s.CloseButtons, o.CloseButtons),
		GuestButtons: pick(s.GuestButtons, o.GuestButtons),
		Scrollers:    pick(s.Scrollers, o.Scrollers),
	}
}

// Validate checks that the lists the exporter cannot work without are set.
func (s Selectors) Validate() error {
	required := []struct {
		name string
		list []string
	}{
		{"panels", s.Panels},
		{"panelOptions", s.PanelOptions},
		{"dialogs", s.Dialogs},
	}
	for _, r := range required {
		if len(r.list) == 0 {
			return fmt.Errorf("%w: %s", ErrEmptySelector, r.name)
		}
	}
	return nil
}

// PanelSelector returns the panel selectors joined into one selector group.
func (s Selectors) PanelSelector() string {
	return strings.Join(s.Panels, ", ")
}

// DialogSelector returns the dialog selectors joined into one selector group.
func (s Selectors) DialogSelector() string {
	return strings.Join(s.Dialogs, ", ")
}

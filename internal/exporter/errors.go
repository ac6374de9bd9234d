package exporter

import "errors"

// Export route errors. They end up in ExportAttempt.Reason; none of them is
// fatal to a traversal.
var (
	// ErrNoOptionsMenu is returned when the panel's options menu cannot be opened.
	ErrNoOptionsMenu = errors.New("no options menu")

	// ErrNoInspect is returned when the options menu has no Inspect item.
	ErrNoInspect = errors.New("no inspect item")

	// ErrNoInspector is returned when the inspector does not offer Download CSV in time.
	ErrNoInspector = errors.New("inspector did not offer Download CSV")

	// ErrNotActionable is returned when the Download CSV control stays disabled or loading.
	ErrNotActionable = errors.New("download CSV control did not become actionable")

	// ErrNoFormatted is returned when the Formatted CSV choice does not appear.
	ErrNoFormatted = errors.New("no Formatted CSV choice")

	// ErrNoMenuItem is returned when the options menu has no Download CSV item.
	ErrNoMenuItem = errors.New("no Download CSV menu item")
)

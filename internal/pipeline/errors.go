package pipeline

import "errors"

var (
	// ErrNavigation is returned when the dashboard URL cannot be opened.
	ErrNavigation = errors.New("cannot open dashboard")

	// ErrNoPanels is returned when no panel renders within the timeout.
	ErrNoPanels = errors.New("no dashboard panel appeared")
)

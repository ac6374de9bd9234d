package model

import "time"

// ExportAttempt records one panel's export attempt. Every panel the
// traversal controller hands to the exporter produces exactly one attempt.
type ExportAttempt struct {
	// PanelKey is the panel's deduplication key.
	PanelKey string `json:"panel_key"`

	// PanelName is the sanitized display name used in the file name.
	PanelName string `json:"panel_name"`

	// Path is the route the attempt finished on.
	Path ExportPath `json:"path"`

	// Outcome is success, skipped or failed.
	Outcome Outcome `json:"outcome"`

	// File is the saved file path. Empty unless Outcome is success.
	File string `json:"file,omitempty"`

	// Reason explains a skipped or failed attempt.
	Reason string `json:"reason,omitempty"`

	// StartedAt is when the attempt began.
	StartedAt time.Time `json:"started_at"`

	// Duration is how long the attempt took, cleanup included.
	Duration time.Duration `json:"duration"`
}

// Succeeded reports whether a file was saved.
func (a ExportAttempt) Succeeded() bool {
	return a.Outcome == OutcomeSuccess
}

// StopReason tells why a traversal ended.
type StopReason string

const (
	// StopIdle means several consecutive passes found no new panel.
	StopIdle StopReason = "idle"

	// StopMaxPasses means the pass limit was reached.
	StopMaxPasses StopReason = "max_passes"

	// StopCanceled means the run context was canceled.
	StopCanceled StopReason = "canceled"
)

// TraversalStats summarizes one traversal.
type TraversalStats struct {
	Passes       int        `json:"passes"`
	Discovered   int        `json:"discovered"`
	Exported     int        `json:"exported"`
	Skipped      int        `json:"skipped"`
	Failed       int        `json:"failed"`
	FallbackKeys int        `json:"fallback_keys"`
	Stop         StopReason `json:"stop"`
}

// Record counts the outcome of a.
func (s *TraversalStats) Record(a ExportAttempt) {
	switch a.Outcome {
	case OutcomeSuccess:
		s.Exported++
	case OutcomeSkipped:
		s.Skipped++
	default:
		s.Failed++
	}
}

// ExportRun is one browsing session over one dashboard URL.
type ExportRun struct {
	// ID identifies the run in the ledger.
	ID string `json:"id"`

	// URL is the dashboard URL actually opened, time range included.
	URL string `json:"url"`

	// Date is the export date (YYYY-MM-DD), empty for an undated run.
	Date string `json:"date,omitempty"`

	// OutDir is the directory the panel files were written to.
	OutDir string `json:"out_dir"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// GuestAccess is true when the guest login bypass was used.
	GuestAccess bool `json:"guest_access"`

	// InitialPanels is the number of panels rendered after page load.
	InitialPanels int `json:"initial_panels"`

	Stats    TraversalStats  `json:"stats"`
	Attempts []ExportAttempt `json:"attempts"`

	// Error is the fatal error that ended the run, if any.
	Error string `json:"error,omitempty"`
}

// NewExportRun creates a run for url writing into outDir.
func NewExportRun(id, url, date, outDir string) *ExportRun {
	return &ExportRun{
		ID:        id,
		URL:       url,
		Date:      date,
		OutDir:    outDir,
		StartedAt: time.Now(),
		Attempts:  make([]ExportAttempt, 0),
	}
}

// AddAttempt appends a to the run.
func (r *ExportRun) AddAttempt(a ExportAttempt) {
	r.Attempts = append(r.Attempts, a)
}

// Files returns the paths of all saved files in attempt order.
func (r *ExportRun) Files() []string {
	files := make([]string, 0, len(r.Attempts))
	for _, a := range r.Attempts {
		if a.Succeeded() {
			files = append(files, a.File)
		}
	}
	return files
}

// Elapsed returns the wall time of the run, or zero if it has not finished.
func (r *ExportRun) Elapsed() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

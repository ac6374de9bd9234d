package model

import "time"

// DownloadedFile is an exported CSV file found under the consolidation root.
type DownloadedFile struct {
	// Path is the file path.
	Path string `json:"path"`

	// ReportKey is the logical report name derived from the file name.
	ReportKey string `json:"report_key"`

	// ProvenanceDate is the name of the file's parent directory, which is
	// the export date for dated runs.
	ProvenanceDate string `json:"provenance_date"`
}

// ReportGroup is the set of files sharing one report key, in discovery
// order.
type ReportGroup struct {
	Key   string           `json:"key"`
	Files []DownloadedFile `json:"files"`
}

// GroupResult is the outcome of merging one report group.
type GroupResult struct {
	Key string `json:"key"`

	// Output is the consolidated file, empty when nothing was written.
	Output string `json:"output,omitempty"`

	// Files is the number of input files in the group.
	Files int `json:"files"`

	// Rows is the number of data rows written.
	Rows int `json:"rows"`

	// Columns is the output header, date column included.
	Columns []string `json:"columns,omitempty"`

	// Bytes is the size of the output file.
	Bytes int64 `json:"bytes"`

	// Errors lists per-file and write errors. A group with errors is failed
	// even if an output file was produced from its readable files.
	Errors []string `json:"errors,omitempty"`
}

// Failed reports whether any error occurred while merging the group.
func (g GroupResult) Failed() bool {
	return len(g.Errors) > 0
}

// ConsolidationRun is one offline merge over an input root.
type ConsolidationRun struct {
	ID         string        `json:"id"`
	InputRoot  string        `json:"input_root"`
	OutputDir  string        `json:"output_dir"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	FilesFound int           `json:"files_found"`
	Groups     []GroupResult `json:"groups"`
}

// TotalRows returns the number of rows written across all groups.
func (r *ConsolidationRun) TotalRows() int {
	n := 0
	for _, g := range r.Groups {
		n += g.Rows
	}
	return n
}

// FailedGroups returns the number of groups with errors.
func (r *ConsolidationRun) FailedGroups() int {
	n := 0
	for _, g := range r.Groups {
		if g.Failed() {
			n++
		}
	}
	return n
}

// Elapsed returns the wall time of the run, or zero if it has not finished.
func (r *ConsolidationRun) Elapsed() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/nao1215/dashcsv/internal/log"
	"github.com/nao1215/dashcsv/internal/model"
)

const ruleWidth = 70

// timeLayout is used for run start times in text and Markdown reports.
const timeLayout = "2006-01-02 15:04:05 MST"

// TextWriter outputs human-readable run summaries for terminal display.
// Dashboard URLs are printed with credentials masked.
type TextWriter struct {
	baseWriter

	// onlyProblems hides successful attempts and groups.
	onlyProblems bool
}

// TextWriterOption configures a TextWriter.
type TextWriterOption func(*TextWriter)

// WithOnlyProblems hides panels that were exported and groups that merged
// cleanly, keeping the totals.
func WithOnlyProblems(only bool) TextWriterOption {
	return func(w *TextWriter) {
		w.onlyProblems = only
	}
}

// NewTextWriter creates a TextWriter that outputs to the given writer.
func NewTextWriter(output io.Writer, opts ...TextWriterOption) *TextWriter {
	w := &TextWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WriteExport outputs the export run summary.
func (w *TextWriter) WriteExport(run *model.ExportRun) (int, error) {
	var sb strings.Builder

	writeBanner(&sb, "DASHCSV EXPORT")
	fmt.Fprintf(&sb, "Dashboard:     %s\n", displayURL(run.URL))
	if run.Date != "" {
		fmt.Fprintf(&sb, "Date:          %s\n", run.Date)
	}
	fmt.Fprintf(&sb, "Output:        %s\n", run.OutDir)
	fmt.Fprintf(&sb, "Started:       %s\n", run.StartedAt.Format(timeLayout))
	fmt.Fprintf(&sb, "Elapsed:       %s\n", formatDuration(run.Elapsed()))
	if run.GuestAccess {
		sb.WriteString("Guest access:  yes\n")
	}
	if run.Error != "" {
		fmt.Fprintf(&sb, "Status:        ERROR - %s\n", run.Error)
	} else {
		sb.WriteString("Status:        Complete\n")
	}
	sb.WriteString("\n")

	writeSection(&sb, "TRAVERSAL")
	s := run.Stats
	fmt.Fprintf(&sb, "  Passes:      %d (stopped: %s)\n", s.Passes, stopLabel(s.Stop))
	fmt.Fprintf(&sb, "  Discovered:  %d\n", s.Discovered)
	fmt.Fprintf(&sb, "  Exported:    %d\n", s.Exported)
	fmt.Fprintf(&sb, "  Skipped:     %d\n", s.Skipped)
	fmt.Fprintf(&sb, "  Failed:      %d\n", s.Failed)
	if s.FallbackKeys > 0 {
		fmt.Fprintf(&sb, "  Unstable:    %d panel(s) without a stable identity\n", s.FallbackKeys)
	}
	sb.WriteString("\n")

	attempts := run.Attempts
	if w.onlyProblems {
		attempts = problemAttempts(attempts)
	}
	if len(attempts) > 0 {
		writeSection(&sb, "PANELS")
		for _, a := range attempts {
			w.writeAttempt(&sb, a)
		}
		sb.WriteString("\n")
	}

	return w.output.Write([]byte(sb.String()))
}

func (w *TextWriter) writeAttempt(sb *strings.Builder, a model.ExportAttempt) {
	switch a.Outcome {
	case model.OutcomeSuccess:
		fmt.Fprintf(sb, "  [OK]   %s -> %s\n", a.PanelName, a.File)
	case model.OutcomeSkipped:
		fmt.Fprintf(sb, "  [SKIP] %s: %s\n", a.PanelName, a.Reason)
	default:
		fmt.Fprintf(sb, "  [FAIL] %s (%s): %s\n", a.PanelName, a.Path, a.Reason)
	}
}

// WriteConsolidation outputs the consolidation run summary.
func (w *TextWriter) WriteConsolidation(run *model.ConsolidationRun) (int, error) {
	var sb strings.Builder

	writeBanner(&sb, "DASHCSV CONSOLIDATION")
	fmt.Fprintf(&sb, "Input:         %s\n", run.InputRoot)
	fmt.Fprintf(&sb, "Output:        %s\n", run.OutputDir)
	fmt.Fprintf(&sb, "Started:       %s\n", run.StartedAt.Format(timeLayout))
	fmt.Fprintf(&sb, "Elapsed:       %s\n", formatDuration(run.Elapsed()))
	fmt.Fprintf(&sb, "Files found:   %s\n", humanize.Comma(int64(run.FilesFound)))
	fmt.Fprintf(&sb, "Reports:       %d (%d failed)\n", len(run.Groups), run.FailedGroups())
	fmt.Fprintf(&sb, "Rows written:  %s\n", humanize.Comma(int64(run.TotalRows())))
	sb.WriteString("\n")

	groups := run.Groups
	if w.onlyProblems {
		groups = problemGroups(groups)
	}
	if len(groups) > 0 {
		writeSection(&sb, "REPORTS")
		for _, g := range groups {
			w.writeGroup(&sb, g)
		}
		sb.WriteString("\n")
	}

	return w.output.Write([]byte(sb.String()))
}

func (w *TextWriter) writeGroup(sb *strings.Builder, g model.GroupResult) {
	status := "OK"
	switch {
	case g.Failed():
		status = "FAIL"
	case g.Output == "":
		status = "EMPTY"
	}

	fmt.Fprintf(sb, "  [%s] %s: %s rows from %d file(s)", status, g.Key, humanize.Comma(int64(g.Rows)), g.Files)
	if g.Output != "" {
		fmt.Fprintf(sb, ", %s -> %s", humanize.Bytes(uint64(g.Bytes)), g.Output)
	}
	sb.WriteString("\n")
	for _, e := range g.Errors {
		fmt.Fprintf(sb, "      %s\n", e)
	}
}

func writeBanner(sb *strings.Builder, title string) {
	rule := strings.Repeat("=", ruleWidth)
	pad := (ruleWidth - len(title)) / 2
	sb.WriteString("\n")
	sb.WriteString(rule)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat(" ", pad))
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(rule)
	sb.WriteString("\n\n")
}

func writeSection(sb *strings.Builder, title string) {
	rule := strings.Repeat("-", ruleWidth)
	sb.WriteString(rule)
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(rule)
	sb.WriteString("\n\n")
}

func problemAttempts(attempts []model.ExportAttempt) []model.ExportAttempt {
	out := make([]model.ExportAttempt, 0, len(attempts))
	for _, a := range attempts {
		if !a.Succeeded() {
			out = append(out, a)
		}
	}
	return out
}

func problemGroups(groups []model.GroupResult) []model.GroupResult {
	out := make([]model.GroupResult, 0, len(groups))
	for _, g := range groups {
		if g.Failed() || g.Output == "" {
			out = append(out, g)
		}
	}
	return out
}

// displayURL masks credentials in a dashboard URL.
func displayURL(raw string) string {
	masked, _ := log.MaskURL(raw)
	return masked
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(time.Millisecond).String()
}

func stopLabel(s model.StopReason) string {
	switch s {
	case model.StopIdle:
		return "no new panels"
	case model.StopMaxPasses:
		return "pass limit reached"
	case model.StopCanceled:
		return "canceled"
	default:
		return "-"
	}
}

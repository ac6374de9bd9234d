package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/dashcsv/internal/model"
)

// MarkdownWriter outputs run summaries in Markdown format, for attaching
// to tickets or sharing with the people who own the dashboard.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// WriteExport outputs the export run in Markdown format.
func (w *MarkdownWriter) WriteExport(run *model.ExportRun) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Dashboard Export")
	md.PlainText("")

	rows := [][]string{
		{"Dashboard", "`" + displayURL(run.URL) + "`"},
	}
	if run.Date != "" {
		rows = append(rows, []string{"Date", run.Date})
	}
	rows = append(rows,
		[]string{"Output", "`" + run.OutDir + "`"},
		[]string{"Started", run.StartedAt.Format(timeLayout)},
		[]string{"Elapsed", formatDuration(run.Elapsed())},
		[]string{"Guest access", yesNo(run.GuestAccess)},
		[]string{"Status", exportStatus(run)},
	)
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")

	w.writeTraversal(md, run.Stats)
	w.writeAttempts(md, run.Attempts)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeTraversal writes the traversal counters and the outcome chart.
func (w *MarkdownWriter) writeTraversal(md *markdown.Markdown, s model.TraversalStats) {
	md.H2("Traversal")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Counter", "Value"},
		Rows: [][]string{
			{"Passes", strconv.Itoa(s.Passes)},
			{"Stopped", stopLabel(s.Stop)},
			{"Discovered", strconv.Itoa(s.Discovered)},
			{"Exported", strconv.Itoa(s.Exported)},
			{"Skipped", strconv.Itoa(s.Skipped)},
			{"Failed", strconv.Itoa(s.Failed)},
		},
	})
	md.PlainText("")

	if s.Discovered > 0 {
		chart := piechart.NewPieChart(
			io.Discard,
			piechart.WithTitle("Panel Outcomes"),
			piechart.WithShowData(true),
		)
		if s.Exported > 0 {
			chart.LabelAndIntValue("Exported", uint64(s.Exported))
		}
		if s.Skipped > 0 {
			chart.LabelAndIntValue("Skipped", uint64(s.Skipped))
		}
		if s.Failed > 0 {
			chart.LabelAndIntValue("Failed", uint64(s.Failed))
		}
		md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
		md.PlainText("")
	}

	switch {
	case s.Stop == model.StopCanceled:
		md.Warningf("The run was canceled before every panel was visited.")
	case s.Failed > 0:
		md.Warningf("%d panel(s) could not be exported.", s.Failed)
	case s.FallbackKeys > 0:
		md.Note(fmt.Sprintf("%d panel(s) had no stable identity and may have been exported twice.", s.FallbackKeys))
	case s.Exported > 0:
		md.Tip("Every panel that offered an export was saved.")
	default:
		md.Note("No panel was exported.")
	}
	md.PlainText("")
}

// writeAttempts writes one table row per export attempt.
func (w *MarkdownWriter) writeAttempts(md *markdown.Markdown, attempts []model.ExportAttempt) {
	md.H2("Panels")
	md.PlainText("")

	if len(attempts) == 0 {
		md.PlainText("No panels were found.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(attempts))
	for i, a := range attempts {
		detail := a.Reason
		if a.Succeeded() {
			detail = "`" + a.File + "`"
		}
		rows[i] = []string{
			cell(a.PanelName),
			a.Outcome.String(),
			a.Path.String(),
			formatDuration(a.Duration),
			cell(detail),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"Panel", "Outcome", "Route", "Duration", "File / Reason"},
		Rows:   rows,
	})
	md.PlainText("")
}

// WriteConsolidation outputs the consolidation run in Markdown format.
func (w *MarkdownWriter) WriteConsolidation(run *model.ConsolidationRun) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Report Consolidation")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Input", "`" + run.InputRoot + "`"},
			{"Output", "`" + run.OutputDir + "`"},
			{"Started", run.StartedAt.Format(timeLayout)},
			{"Elapsed", formatDuration(run.Elapsed())},
			{"Files found", humanize.Comma(int64(run.FilesFound))},
			{"Reports", strconv.Itoa(len(run.Groups))},
			{"Rows written", humanize.Comma(int64(run.TotalRows()))},
		},
	})
	md.PlainText("")

	if n := run.FailedGroups(); n > 0 {
		md.Cautionf("%d report(s) had unreadable files or could not be written.", n)
		md.PlainText("")
	}

	md.H2("Reports")
	md.PlainText("")
	if len(run.Groups) == 0 {
		md.PlainText("No CSV files were found.")
		md.PlainText("")
	} else {
		rows := make([][]string, len(run.Groups))
		for i, g := range run.Groups {
			output := "-"
			size := "-"
			if g.Output != "" {
				output = "`" + g.Output + "`"
				size = humanize.Bytes(uint64(g.Bytes))
			}
			rows[i] = []string{
				cell(g.Key),
				strconv.Itoa(g.Files),
				humanize.Comma(int64(g.Rows)),
				size,
				cell(output),
			}
		}
		md.Table(markdown.TableSet{
			Header: []string{"Report", "Files", "Rows", "Size", "Output"},
			Rows:   rows,
		})
		md.PlainText("")

		for _, g := range run.Groups {
			if g.Failed() {
				md.Details(g.Key, strings.Join(g.Errors, "\n"))
			}
		}
		md.PlainText("")
	}

	w.writeFooter(md)

	return len(md.String()), md.Build()
}

// writeFooter writes the report footer.
func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [dashcsv](https://github.com/nao1215/dashcsv)*")
}

func exportStatus(run *model.ExportRun) string {
	if run.Error != "" {
		return "❌ Error - " + run.Error
	}
	if run.Stats.Stop == model.StopCanceled {
		return "⚠️ Canceled (partial results)"
	}
	return "✅ Complete"
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// cell keeps a value from breaking out of its table cell.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.ReplaceAll(s, "\n", " ")
}

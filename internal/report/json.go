package report

import (
	"encoding/json"
	"io"

	"github.com/nao1215/dashcsv/internal/model"
)

// Kinds of runs in a JSONReport.
const (
	KindExport        = "export"
	KindConsolidation = "consolidation"
)

// JSONWriter outputs run reports in JSON format for tool integration.
type JSONWriter struct {
	baseWriter

	// indent enables pretty-printed JSON output.
	indent bool

	indentPrefix string
	indentString string

	// version is recorded in every report when set.
	version string
}

// JSONWriterOption configures a JSONWriter.
type JSONWriterOption func(*JSONWriter)

// WithIndent enables pretty-printed JSON output.
// The prefix is prepended to each line, and indent is used for each level.
func WithIndent(prefix, indent string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.indent = true
		w.indentPrefix = prefix
		w.indentString = indent
	}
}

// WithPrettyPrint enables pretty-printed JSON with two-space indentation.
func WithPrettyPrint() JSONWriterOption {
	return WithIndent("", "  ")
}

// WithVersion records the dashcsv version in every report.
func WithVersion(version string) JSONWriterOption {
	return func(w *JSONWriter) {
		w.version = version
	}
}

// NewJSONWriter creates a JSONWriter that outputs to the given writer.
func NewJSONWriter(output io.Writer, opts ...JSONWriterOption) *JSONWriter {
	w := &JSONWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// JSONReport wraps a run with its kind, so that a consumer reading a
// stream of reports can tell exports from consolidations.
type JSONReport struct {
	Version string `json:"version,omitempty"`
	Kind    string `json:"kind"`
	Run     any    `json:"run"`
}

// WriteExport outputs the export run as JSON.
func (w *JSONWriter) WriteExport(run *model.ExportRun) (int, error) {
	return w.writeJSON(JSONReport{Version: w.version, Kind: KindExport, Run: run})
}

// WriteConsolidation outputs the consolidation run as JSON.
func (w *JSONWriter) WriteConsolidation(run *model.ConsolidationRun) (int, error) {
	return w.writeJSON(JSONReport{Version: w.version, Kind: KindConsolidation, Run: run})
}

// writeJSON marshals v and writes it to the output with a trailing newline.
func (w *JSONWriter) writeJSON(v any) (int, error) {
	var (
		data []byte
		err  error
	)
	if w.indent {
		data, err = json.MarshalIndent(v, w.indentPrefix, w.indentString)
	} else {
		data, err = json.Marshal(v)
	}
	if err != nil {
		return 0, err
	}

	data = append(data, '\n')
	return w.output.Write(data)
}

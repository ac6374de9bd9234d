package report

import (
	"io"

	"github.com/nao1215/dashcsv/internal/model"
)

// Writer defines the interface for run report output.
type Writer interface {
	// WriteExport outputs the summary of one export run.
	// Returns the number of bytes written and any error encountered.
	WriteExport(run *model.ExportRun) (int, error)

	// WriteConsolidation outputs the summary of one consolidation run.
	WriteConsolidation(run *model.ConsolidationRun) (int, error)
}

// MultiWriter writes to multiple Writers in order.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// WriteExport outputs the export run to all configured Writers.
// Returns the total bytes written and stops on the first error.
func (m *MultiWriter) WriteExport(run *model.ExportRun) (int, error) {
	return m.each(func(w Writer) (int, error) { return w.WriteExport(run) })
}

// WriteConsolidation outputs the consolidation run to all configured Writers.
func (m *MultiWriter) WriteConsolidation(run *model.ConsolidationRun) (int, error) {
	return m.each(func(w Writer) (int, error) { return w.WriteConsolidation(run) })
}

func (m *MultiWriter) each(fn func(Writer) (int, error)) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := fn(w)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

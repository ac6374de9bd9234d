// Package report renders run summaries for export and consolidation runs.
//
// Writers:
//   - TextWriter: human-readable text for terminal display
//   - MarkdownWriter: Markdown documents with attempt and group tables
//   - JSONWriter: the run itself as JSON for tool integration
//
// Writers implement the Writer interface and can be composed with
// MultiWriter to print a summary and save a copy at the same time.
package report

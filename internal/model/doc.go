// Package model defines the data structures shared by the export and
// consolidation sides of dashcsv.
//
// This package contains the following main types:
//   - ExportAttempt: the outcome of exporting one dashboard panel
//   - ExportRun: one browsing session over one dashboard URL
//   - ReportGroup: exported files that belong to the same logical report
//   - ConsolidationRun: one offline merge of report groups
//
// The types live in their own package because the exporter, traversal,
// pipeline, report and database packages all pass them around. They are
// serializable to JSON for reports.
package model

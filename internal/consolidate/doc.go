// Package consolidate merges exported CSV files into one file per report.
//
// Exports land in dated subdirectories of an input root, one file per panel
// and date. Files are grouped by their report key (the file name up to the
// first " - "), and each group is merged into a single CSV whose columns are
// the union of the group's headers plus a trailing date column that records
// which subdirectory each row came from.
//
// Groups are independent. The Engine merges them in parallel with a bounded
// number of workers, and a failing group never stops the others.
package consolidate

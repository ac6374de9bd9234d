// Package database keeps a ledger of export and consolidation runs in a
// SQLite file (modernc.org/sqlite, no cgo).
//
// Every run is stored with its summary counts, and with its per-panel
// attempts or per-report group results, so that `dashcsv history` can show
// what a past run exported, skipped and failed without rescanning the
// output directories.
package database

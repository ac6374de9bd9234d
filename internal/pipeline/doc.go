// Package pipeline runs the ordered steps of one export session.
//
// A session opens the dashboard, gets past the guest login when one is
// shown, waits for the first panel and then traverses the dashboard,
// exporting every panel. Each stage is a Step that records what it did in
// the shared model.ExportRun; the Pipeline runs them in order, logs each
// one and stops at the first critical error.
package pipeline

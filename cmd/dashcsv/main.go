// Package main provides the entry point for the dashcsv CLI.
//
// dashcsv exports the CSV data behind every panel of a dashboard and later
// merges the exports of many runs into one table per report.
//
// Usage:
//
//	dashcsv export --url <dashboard-url> [--date YYYY-MM-DD ...]
//	dashcsv consolidate [--input downloads] [--output analysis_output]
//	dashcsv history [--run <id>]
//
// See --help for all available options.
package main

func main() {
	Execute()
}

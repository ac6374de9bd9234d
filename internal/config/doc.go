// Package config provides configuration structures and utilities for dashcsv.
// It defines the export and consolidation options, the CSS selectors used to
// locate dashboard affordances, the optional YAML configuration file, and the
// conversion of export dates into dashboard time ranges.
package config

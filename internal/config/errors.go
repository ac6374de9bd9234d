package config

import "errors"

// Configuration errors. They are fatal: the command reports them and exits
// with a non-zero status before any browser is launched or file written.
var (
	// ErrNoURL is returned when the export command has no dashboard URL.
	ErrNoURL = errors.New("no dashboard URL specified: use --url")

	// ErrInvalidTimeout is returned when the timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrNoOutDir is returned when an output directory is empty.
	ErrNoOutDir = errors.New("no output directory specified")

	// ErrNoInputDir is returned when the consolidation input root is empty.
	ErrNoInputDir = errors.New("no input directory specified")

	// ErrInvalidPasses is returned when traversal limits are not positive.
	ErrInvalidPasses = errors.New("invalid traversal limits: max passes and max idle passes must be positive")

	// ErrInvalidConcurrency is returned when the merge concurrency is not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrConflictingReportFormats is returned when both --json and --markdown
	// are specified.
	ErrConflictingReportFormats = errors.New("conflicting report formats: --json and --markdown cannot be used together")

	// ErrInvalidDate is returned for a date not in YYYY-MM-DD form.
	ErrInvalidDate = errors.New("invalid date: expected YYYY-MM-DD")

	// ErrInvalidURL is returned when the dashboard URL cannot be parsed.
	ErrInvalidURL = errors.New("invalid dashboard URL")

	// ErrOutputContainsInput is returned when the consolidation output
	// directory is the input root or one of its parents.
	ErrOutputContainsInput = errors.New("output directory must not be the input directory or one of its parents")

	// ErrEmptySelector is returned when a required selector list is empty.
	ErrEmptySelector = errors.New("selector list must not be empty")
)

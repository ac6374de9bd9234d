package consolidate

import "errors"

var (
	// ErrInputRoot is returned when the input root is missing or is not a
	// readable directory.
	ErrInputRoot = errors.New("input root is not a readable directory")

	// ErrOutputContainsInput is returned when the output directory is the
	// input root or one of its parents, where outputs would be merged again.
	ErrOutputContainsInput = errors.New("output directory contains the input root")

	// ErrOutputDir is returned when the output directory cannot be created.
	ErrOutputDir = errors.New("cannot create output directory")
)

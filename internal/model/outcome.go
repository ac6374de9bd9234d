package model

import "fmt"

// ExportPath is the interaction route an export attempt finished on.
type ExportPath int

const (
	// PathNone means no export route was reached, for example because the
	// panel had no options menu.
	PathNone ExportPath = iota

	// PathInspect is the inspector route: Inspect, Download CSV, Formatted CSV.
	PathInspect

	// PathMenu is the fallback route through the panel's options menu.
	PathMenu
)

// String returns the lowercase name of the path.
func (p ExportPath) String() string {
	switch p {
	case PathNone:
		return "none"
	case PathInspect:
		return "inspect"
	case PathMenu:
		return "menu"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p ExportPath) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *ExportPath) UnmarshalText(text []byte) error {
	v, err := ParseExportPath(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// ParseExportPath parses the output of ExportPath.String.
func ParseExportPath(s string) (ExportPath, error) {
	switch s {
	case "none":
		return PathNone, nil
	case "inspect":
		return PathInspect, nil
	case "menu":
		return PathMenu, nil
	default:
		return PathNone, fmt.Errorf("unknown export path %q", s)
	}
}

// Outcome is the result of one export attempt.
type Outcome int

const (
	// OutcomeFailed means an export route was tried and no file was saved.
	OutcomeFailed Outcome = iota

	// OutcomeSkipped means the panel offered no way to export.
	OutcomeSkipped

	// OutcomeSuccess means a file was saved.
	OutcomeSuccess
)

// String returns the lowercase name of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeFailed:
		return "failed"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Outcome) UnmarshalText(text []byte) error {
	v, err := ParseOutcome(string(text))
	if err != nil {
		return err
	}
	*o = v
	return nil
}

// ParseOutcome parses the output of Outcome.String.
func ParseOutcome(s string) (Outcome, error) {
	switch s {
	case "failed":
		return OutcomeFailed, nil
	case "skipped":
		return OutcomeSkipped, nil
	case "success":
		return OutcomeSuccess, nil
	default:
		return OutcomeFailed, fmt.Errorf("unknown outcome %q", s)
	}
}

// Package identity derives stable names for dashboard panels and exported
// files.
//
// A panel key deduplicates panels across scroll passes: the same rendered
// panel must map to the same key every time it is seen. A report key groups
// exported files that belong to the same logical report across export runs.
package identity

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"
	"golang.org/x/text/unicode/norm"

	"github.com/nao1215/dashcsv/internal/surface"
)

const (
	// MaxFilenameRunes caps sanitized file names.
	MaxFilenameRunes = 180

	// fingerprintRunes is how much of a panel's markup is hashed when it
	// carries no naming attribute.
	fingerprintRunes = 80

	// ReportDelimiter separates the report name from the rest of an exported
	// file name.
	ReportDelimiter = " - "
)

var (
	// forbiddenRun matches characters not allowed in file names on common
	// platforms, plus line breaks.
	forbiddenRun = regexp.MustCompile(`[\\/:*?"<>|\r\n]+`)
	whitespace   = regexp.MustCompile(`\s+`)
	panelPrefix  = regexp.MustCompile(`(?i)^\s*Dashboard panel:\s*`)

	outputReplacer = strings.NewReplacer(
		"/", "-", `\`, "-", "?", "-", "%", "-", "*", "-",
		":", "-", "|", "-", `"`, "-", "<", "-", ">", "-",
	)
)

// PanelKey returns the deduplication key of a panel. Sources are tried in
// order: aria-label (verbatim), data-title, heading text, id or
// data-test-subj, then an xxh3 fingerprint of the leading markup. fallback
// is true when none of them produced a value and the key is unique per call,
// which means the panel cannot be recognized on a later pass.
func PanelKey(ctx context.Context, p surface.Panel) (key string, fallback bool) {
	if v, err := p.Attribute(ctx, "aria-label"); err == nil && strings.TrimSpace(v) != "" {
		return v, false
	}
	if v := attr(ctx, p, "data-title"); v != "" {
		return "title:" + v, false
	}
	if v, err := p.HeadingText(ctx); err == nil && strings.TrimSpace(v) != "" {
		return "h2:" + v, false
	}
	if v := attr(ctx, p, "id"); v != "" {
		return "id:" + v, false
	}
	if v := attr(ctx, p, "data-test-subj"); v != "" {
		return "id:" + v, false
	}
	if html, err := p.Markup(ctx); err == nil && html != "" {
		return "fp:" + Fingerprint(html), false
	}
	return fmt.Sprintf("panel:%d-%s", time.Now().UnixNano(), uuid.NewString()), true
}

// Fingerprint hashes the first 80 runes of markup.
func Fingerprint(markup string) string {
	return fmt.Sprintf("%016x", xxh3.HashString(truncateRunes(markup, fingerprintRunes)))
}

// DisplayName returns a human-readable, file-name-safe panel name: the
// aria-label or heading text with any "Dashboard panel:" prefix removed,
// or fallback when neither is present.
func DisplayName(ctx context.Context, p surface.Panel, fallback string) string {
	name := attr(ctx, p, "aria-label")
	if name == "" {
		if v, err := p.HeadingText(ctx); err == nil {
			name = v
		}
	}
	name = strings.TrimSpace(panelPrefix.ReplaceAllString(name, ""))
	if name == "" {
		name = fallback
	}
	return SanitizeFilename(name)
}

// SanitizeFilename makes name safe to use as a file name: forbidden
// characters and line breaks become spaces, whitespace runs collapse, and
// the result is trimmed and capped at MaxFilenameRunes.
func SanitizeFilename(name string) string {
	s := norm.NFC.String(name)
	s = forbiddenRun.ReplaceAllString(s, " ")
	s = whitespace.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)
	return truncateRunes(s, MaxFilenameRunes)
}

// ReportKey derives the logical report name from an exported file name:
// everything from the first " - " on is dropped. Without the delimiter the
// whole stem is the key.
//
//	"Sales Report - export (1).csv" -> "Sales Report"
//	"Summary.csv"                   -> "Summary"
func ReportKey(filename string) string {
	base := filepath.Base(filename)
	if head, _, ok := strings.Cut(base, ReportDelimiter); ok {
		return strings.TrimSpace(head)
	}
	return strings.TrimSpace(strings.TrimSuffix(base, filepath.Ext(base)))
}

// OutputName returns the consolidated file name for a report key.
func OutputName(key string) string {
	return outputReplacer.Replace(key) + ".csv"
}

func attr(ctx context.Context, p surface.Panel, name string) string {
	v, err := p.Attribute(ctx, name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(v)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

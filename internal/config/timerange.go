package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// DateLayout is the layout of the --date flag.
const DateLayout = "2006-01-02"

// dashboardZone is the zone in which export dates are interpreted.
var dashboardZone = time.FixedZone("UTC+8", 8*60*60)

// ParseDate parses a YYYY-MM-DD date as the start of that day at UTC+8.
func ParseDate(s string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), dashboardZone)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t, nil
}

// DayRange returns the first and last millisecond of the UTC+8 day that
// contains t.
func DayRange(t time.Time) (from, to time.Time) {
	local := t.In(dashboardZone)
	from = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, dashboardZone)
	to = from.AddDate(0, 0, 1).Add(-time.Millisecond)
	return from, to
}

// ApplyTimeRange returns rawURL with the dashboard's global time range set to
// the day of t. The range is written into the _g parameter as
// time:(from:'<start>',to:'<end>') in ISO-8601 UTC. An existing time group is
// replaced, other _g state is preserved. For hash-routed URLs (#/view/...)
// the parameter lives in the fragment's query string.
func ApplyTimeRange(rawURL string, t time.Time) (string, error) {
	if _, err := url.Parse(rawURL); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}

	from, to := DayRange(t)
	group := fmt.Sprintf("time:(from:'%s',to:'%s')", isoMillis(from), isoMillis(to))

	if base, fragment, ok := strings.Cut(rawURL, "#"); ok {
		return base + "#" + setGlobalTime(fragment, group), nil
	}
	return setGlobalTime(rawURL, group), nil
}

func isoMillis(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// setGlobalTime sets the time group of the _g parameter in s, which is a
// path with an optional query string.
func setGlobalTime(s, group string) string {
	path, query, ok := strings.Cut(s, "?")
	if !ok || query == "" {
		return path + "?_g=(" + group + ")"
	}

	params := strings.Split(query, "&")
	for i, p := range params {
		if v, found := strings.CutPrefix(p, "_g="); found {
			params[i] = "_g=" + mergeTimeGroup(v, group)
			return path + "?" + strings.Join(params, "&")
		}
	}
	return path + "?" + query + "&_g=(" + group + ")"
}

// mergeTimeGroup replaces or inserts group in the rison object v. A value
// that is not a rison object is replaced entirely.
func mergeTimeGroup(v, group string) string {
	if strings.Contains(v, "%") {
		if unescaped, err := url.PathUnescape(v); err == nil {
			v = unescaped
		}
	}
	if len(v) < 2 || v[0] != '(' || v[len(v)-1] != ')' {
		return "(" + group + ")"
	}
	inner := v[1 : len(v)-1]
	if inner == "" {
		return "(" + group + ")"
	}

	start := findTopLevelKey(inner, "time:(")
	if start < 0 {
		return "(" + group + "," + inner + ")"
	}
	end := matchParen(inner, start+len("time:"))
	if end < 0 {
		return "(" + group + ")"
	}
	return "(" + inner[:start] + group + inner[end+1:] + ")"
}

// findTopLevelKey returns the index of key in s at nesting depth zero and
// outside quoted strings, or -1.
func findTopLevelKey(s, key string) int {
	depth := 0
	quoted := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quoted:
			if c == '!' {
				i++
			} else if c == '\'' {
				quoted = false
			}
		case c == '\'':
			quoted = true
		case c == '(':
			depth++
		case c == ')':
			depth--
		case depth == 0 && (i == 0 || s[i-1] == ',') && strings.HasPrefix(s[i:], key):
			return i
		}
	}
	return -1
}

// matchParen returns the index of the parenthesis closing the one at open,
// or -1 when it is unbalanced.
func matchParen(s string, open int) int {
	depth := 0
	quoted := false
	for i := open; i < len(s); i++ {
		c := s[i]
		switch {
		case quoted:
			if c == '!' {
				i++
			} else if c == '\'' {
				quoted = false
			}
		case c == '\'':
			quoted = true
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

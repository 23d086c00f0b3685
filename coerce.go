package dataimport

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// isoDatePrefix matches the YYYY-MM-DD prefix required before the date
// branch of the coercer even attempts to parse.
var isoDatePrefix = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)

// Coerce converts a raw cell string into a typed value.
//
// Precedence, first match wins:
//
//  1. empty (after trimming) -> nil
//  2. "true"/"false" (case-insensitive) -> bool
//  3. fully parses as a number -> float64
//  4. YYYY-MM-DD prefix and valid calendar date -> RFC 3339 timestamp string
//  5. anything else -> trimmed string
//
// The number check runs before the date check on purpose: "2024" must stay
// the number 2024, not become a date.
func Coerce(raw string) any {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}

	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}

	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n
	}

	if isoDatePrefix.MatchString(s) {
		if ts, ok := parseISODate(s); ok {
			return ts
		}
	}

	return s
}

// parseISODate validates the leading YYYY-MM-DD as a real calendar date
// and returns it as an RFC 3339 timestamp string. Longer inputs that
// already carry a time component are parsed as such when possible.
func parseISODate(s string) (string, bool) {
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format(time.RFC3339), true
		}
	}
	// A valid date prefix followed by trailing text (e.g. "2024-01-02 foo")
	// is not a date.
	return "", false
}

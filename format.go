package dataimport

import (
	"encoding/json"
	"path/filepath"
	"strings"
)

// FormatTag is the closed set of recognized input formats.
type FormatTag string

const (
	FormatCSV     FormatTag = "csv"
	FormatTSV     FormatTag = "tsv"
	FormatJSON    FormatTag = "json"
	FormatNDJSON  FormatTag = "ndjson"
	FormatXLSX    FormatTag = "xlsx"
	FormatXLS     FormatTag = "xls"
	FormatSQLite  FormatTag = "sqlite"
	FormatUnknown FormatTag = "unknown"
)

var extensionFormats = map[string]FormatTag{
	".csv":     FormatCSV,
	".tsv":     FormatTSV,
	".json":    FormatJSON,
	".ndjson":  FormatNDJSON,
	".jsonl":   FormatNDJSON,
	".xlsx":    FormatXLSX,
	".xls":     FormatXLS,
	".db":      FormatSQLite,
	".sqlite":  FormatSQLite,
	".sqlite3": FormatSQLite,
}

// DetectFormat classifies a file by extension, case-insensitively.
// Unrecognized extensions yield FormatUnknown, which must be rejected
// before dispatching to any parser.
func DetectFormat(fileName string) FormatTag {
	ext := strings.ToLower(filepath.Ext(fileName))
	if tag, ok := extensionFormats[ext]; ok {
		return tag
	}
	return FormatUnknown
}

// sniffSampleLines is how many leading lines content sniffing examines.
const sniffSampleLines = 5

// SniffFormat classifies raw text from sources without a reliable file
// name (clipboard, extensionless URLs).
//
// Text that starts with '[' or '{' and parses as JSON is json. Otherwise
// tab counts across a 5-line sample decide tsv vs csv: tabs must be
// present on every line, consistent within one of each other, and exceed
// the comma count; anything else defaults to csv.
func SniffFormat(text string) FormatTag {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return FormatCSV
	}

	if trimmed[0] == '[' || trimmed[0] == '{' {
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return FormatJSON
		}
	}

	lines := sampleLines(trimmed, sniffSampleLines)
	if len(lines) == 0 {
		return FormatCSV
	}

	minTabs, maxTabs := -1, 0
	commas := 0
	for _, line := range lines {
		t := strings.Count(line, "\t")
		if minTabs < 0 || t < minTabs {
			minTabs = t
		}
		if t > maxTabs {
			maxTabs = t
		}
		commas += strings.Count(line, ",")
	}

	tabs := minTabs * len(lines)
	if minTabs > 0 && maxTabs-minTabs <= 1 && tabs > commas {
		return FormatTSV
	}
	return FormatCSV
}

// sampleLines returns up to n non-empty leading lines of text.
func sampleLines(text string, n int) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, line)
		if len(out) == n {
			break
		}
	}
	return out
}

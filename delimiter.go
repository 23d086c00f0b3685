package dataimport

import (
	"strconv"
	"strings"
)

// delimiterCandidates in tie-break order.
var delimiterCandidates = []rune{',', '\t', ';', '|'}

// detectionSampleLines is how many leading lines the delimiter and header
// heuristics examine.
const detectionSampleLines = 5

// DetectDelimiter guesses the field delimiter from a leading text sample.
//
// For each candidate it counts occurrences per line outside quoted spans.
// A candidate whose count is identical and non-zero on every sampled line
// wins; among several such candidates the one with the higher per-line
// count wins, remaining ties resolve in candidate order. If no candidate
// is consistent, the one with the highest first-line count wins, and comma
// is the final fallback.
//
// This is a documented best-effort heuristic, not a guarantee.
func DetectDelimiter(sample string) rune {
	lines := sampleLines(sample, detectionSampleLines)
	if len(lines) == 0 {
		return ','
	}

	best := rune(0)
	bestCount := 0
	for _, cand := range delimiterCandidates {
		counts := make([]int, len(lines))
		for i, line := range lines {
			counts[i] = countOutsideQuotes(line, cand)
		}
		if counts[0] == 0 {
			continue
		}
		consistent := true
		for _, c := range counts[1:] {
			if c != counts[0] {
				consistent = false
				break
			}
		}
		if consistent && counts[0] > bestCount {
			best = cand
			bestCount = counts[0]
		}
	}
	if best != 0 {
		return best
	}

	// Fallback: highest count on the first line.
	first := lines[0]
	best, bestCount = ',', 0
	for _, cand := range delimiterCandidates {
		if c := countOutsideQuotes(first, cand); c > bestCount {
			best = cand
			bestCount = c
		}
	}
	return best
}

// countOutsideQuotes counts occurrences of sep in line, ignoring anything
// inside double-quoted spans. Doubled quotes inside a span stay inside it.
func countOutsideQuotes(line string, sep rune) int {
	count := 0
	inQuotes := false
	for _, r := range line {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case r == sep && !inQuotes:
			count++
		}
	}
	return count
}

// HasHeaderRow guesses whether the first record is a header.
//
// Row 0 is a header when it contains fewer numeric cells than row 1, or no
// numeric cells at all. With a single record the zero-numeric rule alone
// decides. Ambiguous inputs (all-text data, all-numeric headerless data)
// can be misclassified; the rule is reproducible, not exact.
func HasHeaderRow(records [][]string) bool {
	if len(records) == 0 {
		return false
	}
	first := numericCellCount(records[0])
	if len(records) == 1 {
		return first == 0
	}
	second := numericCellCount(records[1])
	return first < second || first == 0
}

func numericCellCount(row []string) int {
	n := 0
	for _, cell := range row {
		cell = strings.TrimSpace(cell)
		if cell == "" {
			continue
		}
		if _, err := strconv.ParseFloat(cell, 64); err == nil {
			n++
		}
	}
	return n
}

// synthesizeColumns generates column_1..column_N names for headerless data.
func synthesizeColumns(n int) []string {
	cols := make([]string, n)
	for i := range cols {
		cols[i] = "column_" + strconv.Itoa(i+1)
	}
	return cols
}

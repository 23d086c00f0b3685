package dataimport

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// importCSV materializes delimited text into an ImportResult. Delimiter
// and header presence are auto-detected unless overridden. Quote problems
// degrade to warnings; other malformed rows become warning-severity error
// entries and parsing continues, so a partial result is always returned.
func importCSV(name string, r io.Reader, format FormatTag, opts Options) *ImportResult {
	start := time.Now()
	result := &ImportResult{
		Success: true,
		Metadata: Metadata{
			Source:     SourceFile,
			FileName:   name,
			Format:     format,
			ImportedAt: start,
		},
	}

	raw, err := io.ReadAll(newImportReader(r))
	if err != nil {
		result.addError(ImportError{Message: fmt.Sprintf("read input: %v", err), Severity: ErrorSeverity})
		result.Metadata.Duration = time.Since(start)
		return result
	}

	text := string(raw)
	delim := opts.Delimiter
	if delim == 0 {
		if format == FormatTSV {
			delim = '\t'
		} else {
			delim = DetectDelimiter(text)
		}
	}
	result.Metadata.Delimiter = string(delim)

	records, lineNums := readRecords(text, delim, result)

	if opts.SkipRows > 0 && len(records) > 0 {
		skip := opts.SkipRows
		if skip > len(records) {
			skip = len(records)
		}
		records = records[skip:]
		lineNums = lineNums[skip:]
	}

	hasHeader := HasHeaderRow(records)
	if opts.HasHeader != nil {
		hasHeader = *opts.HasHeader
	}

	var columns []string
	if hasHeader && len(records) > 0 {
		for _, h := range records[0] {
			columns = append(columns, strings.TrimSpace(h))
		}
		records = records[1:]
		lineNums = lineNums[1:]
	} else if len(records) > 0 {
		columns = synthesizeColumns(len(records[0]))
	}

	for i, rec := range records {
		if opts.MaxRows > 0 && result.RowCount >= opts.MaxRows {
			break
		}
		if emptyRecord(rec) {
			continue
		}
		if len(rec) != len(columns) {
			result.addError(ImportError{
				Line:     lineNums[i],
				Message:  fmt.Sprintf("row has %d fields, expected %d", len(rec), len(columns)),
				Severity: WarningSeverity,
			})
		}
		row := make(Row, len(columns))
		for c, col := range columns {
			if c < len(rec) {
				row[col] = Coerce(rec[c])
			} else {
				row[col] = nil
			}
		}
		result.Data = append(result.Data, row)
		result.RowCount++
	}

	if result.RowCount == 0 {
		result.Columns = nil
		result.Data = nil
		result.addError(ImportError{Message: "empty file", Severity: ErrorSeverity})
	} else {
		result.Columns = columns
	}
	result.Metadata.Duration = time.Since(start)
	return result
}

// readRecords splits text into physical lines and reassembles multi-line
// quoted records by quote parity before strict parsing. Parsing line
// groups independently means one malformed row cannot abort the whole
// file, and quote problems surface as warnings instead of silently
// swallowing every following row into one field. Returns the records plus
// their 1-indexed source line numbers.
func readRecords(text string, delim rune, result *ImportResult) ([][]string, []int) {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}

	var records [][]string
	var lineNums []int
	emit := func(recs [][]string, firstLine int) {
		for k, rec := range recs {
			records = append(records, rec)
			lineNums = append(lineNums, firstLine+k)
		}
	}

	for i := 0; i < len(lines); i++ {
		start := i
		buf := lines[i]
		for quoteOpen(buf) && i+1 < len(lines) {
			i++
			buf += "\n" + lines[i]
		}
		if strings.TrimSpace(buf) == "" {
			continue
		}

		if quoteOpen(buf) {
			// The quote never closes before EOF. Keep only the opening
			// line as a row of its own and reprocess the lines the open
			// quote would have swallowed.
			result.addWarning(fmt.Sprintf("line %d: unterminated quote", start+1))
			if recs, err := parseRecords(lines[start], delim, true); err == nil {
				emit(recs, start+1)
			}
			i = start
			continue
		}

		recs, err := parseRecords(buf, delim, false)
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) && (pe.Err == csv.ErrQuote || pe.Err == csv.ErrBareQuote) {
				result.addWarning(fmt.Sprintf("line %d: quote issue, row kept as-is", start+1))
				recs, err = parseRecords(buf, delim, true)
			}
		}
		if err != nil {
			result.addError(ImportError{
				Line:     start + 1,
				Message:  err.Error(),
				Severity: WarningSeverity,
			})
			continue
		}
		emit(recs, start+1)
	}
	return records, lineNums
}

func parseRecords(s string, delim rune, lazy bool) ([][]string, error) {
	reader := csv.NewReader(strings.NewReader(s))
	reader.Comma = delim
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = lazy
	return reader.ReadAll()
}

// quoteOpen reports whether s ends inside an unclosed double-quoted span.
// Doubled quotes toggle twice, so escaped quotes keep the parity intact.
func quoteOpen(s string) bool {
	open := false
	for _, r := range s {
		if r == '"' {
			open = !open
		}
	}
	return open
}

func emptyRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

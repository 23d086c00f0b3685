package dataimport

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// importExcel reads one sheet of a workbook into an ImportResult. Without
// an explicit sheet selection the first sheet is used and, when others
// exist, a warning names the alternatives. Date-styled cells are read
// natively from their serial value and serialized as RFC 3339 strings;
// every other cell goes through the coercer like a CSV cell.
func importExcel(name string, r io.Reader, format FormatTag, opts Options) *ImportResult {
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

	f, err := excelize.OpenReader(r)
	if err != nil {
		result.addError(ImportError{Message: fmt.Sprintf("open workbook: %v", err), Severity: ErrorSeverity})
		result.Metadata.Duration = time.Since(start)
		return result
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		result.addError(ImportError{Message: "workbook has no sheets", Severity: ErrorSeverity})
		result.Metadata.Duration = time.Since(start)
		return result
	}

	sheet, err := selectSheet(sheets, opts)
	if err != nil {
		result.addError(ImportError{Message: err.Error(), Severity: ErrorSeverity})
		result.Metadata.Duration = time.Since(start)
		return result
	}
	if opts.Sheet == "" && opts.SheetIndex == nil && len(sheets) > 1 {
		result.addWarning(fmt.Sprintf("workbook has %d sheets, used %q (others: %s)",
			len(sheets), sheet, strings.Join(otherSheets(sheets, sheet), ", ")))
	}
	result.Metadata.SheetName = sheet

	records, err := f.GetRows(sheet)
	if err != nil {
		result.addError(ImportError{Message: fmt.Sprintf("read sheet %q: %v", sheet, err), Severity: ErrorSeverity})
		result.Metadata.Duration = time.Since(start)
		return result
	}
	normalizeExcelDates(f, sheet, records)

	if opts.SkipRows > 0 {
		skip := opts.SkipRows
		if skip > len(records) {
			skip = len(records)
		}
		records = records[skip:]
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
	} else if len(records) > 0 {
		columns = synthesizeColumns(widestRecord(records))
	}

	for _, rec := range records {
		if opts.MaxRows > 0 && result.RowCount >= opts.MaxRows {
			break
		}
		if emptyRecord(rec) {
			continue
		}
		row := make(Row, len(columns))
		for c, col := range columns {
			// GetRows trims trailing empty cells per row.
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
		result.Data = nil
		result.addError(ImportError{Message: fmt.Sprintf("empty sheet %q", sheet), Severity: ErrorSeverity})
	} else {
		result.Columns = columns
	}
	result.Metadata.Duration = time.Since(start)
	return result
}

func selectSheet(sheets []string, opts Options) (string, error) {
	if opts.Sheet != "" {
		for _, s := range sheets {
			if strings.EqualFold(s, opts.Sheet) {
				return s, nil
			}
		}
		return "", fmt.Errorf("sheet %q not found (available: %s)", opts.Sheet, strings.Join(sheets, ", "))
	}
	if opts.SheetIndex != nil {
		if *opts.SheetIndex >= len(sheets) {
			return "", fmt.Errorf("sheet index %d out of range (%d sheets)", *opts.SheetIndex, len(sheets))
		}
		return sheets[*opts.SheetIndex], nil
	}
	return sheets[0], nil
}

func otherSheets(sheets []string, used string) []string {
	out := make([]string, 0, len(sheets)-1)
	for _, s := range sheets {
		if s != used {
			out = append(out, s)
		}
	}
	return out
}

// normalizeExcelDates rewrites date-styled cells in records to RFC 3339
// strings read from the cell's raw serial value, so the imported value does
// not depend on the workbook's display format (e.g. "m/d/yy").
func normalizeExcelDates(f *excelize.File, sheet string, records [][]string) {
	raw, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return
	}
	for r, row := range records {
		for c, cell := range row {
			if cell == "" || r >= len(raw) || c >= len(raw[r]) {
				continue
			}
			name, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				continue
			}
			styleID, err := f.GetCellStyle(sheet, name)
			if err != nil || !isDateStyle(f, styleID) {
				continue
			}
			serial, err := strconv.ParseFloat(strings.TrimSpace(raw[r][c]), 64)
			if err != nil {
				continue
			}
			t, err := excelize.ExcelDateToTime(serial, false)
			if err != nil {
				continue
			}
			records[r][c] = t.UTC().Format(time.RFC3339)
		}
	}
}

// Built-in number-format ids that render as dates or datetimes.
var builtinDateNumFmts = map[int]bool{
	14: true, 15: true, 16: true, 17: true, 18: true, 19: true, 20: true,
	21: true, 22: true, 27: true, 28: true, 29: true, 30: true, 31: true,
	32: true, 33: true, 34: true, 35: true, 36: true, 45: true, 46: true,
	47: true, 50: true, 51: true, 52: true, 53: true, 54: true, 55: true,
	56: true, 57: true, 58: true,
}

func isDateStyle(f *excelize.File, styleID int) bool {
	style, err := f.GetStyle(styleID)
	if err != nil || style == nil {
		return false
	}
	if builtinDateNumFmts[style.NumFmt] {
		return true
	}
	if style.CustomNumFmt != nil {
		return isDateFormatCode(*style.CustomNumFmt)
	}
	return false
}

// isDateFormatCode detects date/time tokens in a custom number format,
// ignoring quoted literals and bracketed sections. 'm' alone is ambiguous
// (month vs minute) but always accompanies y/d/h in real formats.
func isDateFormatCode(code string) bool {
	var b strings.Builder
	inQuote, inBracket := false, false
	for _, r := range code {
		switch {
		case inQuote:
			if r == '"' {
				inQuote = false
			}
		case inBracket:
			if r == ']' {
				inBracket = false
			}
		case r == '"':
			inQuote = true
		case r == '[':
			inBracket = true
		default:
			b.WriteRune(r)
		}
	}
	return strings.ContainsAny(b.String(), "ydhYDH")
}

func widestRecord(records [][]string) int {
	w := 0
	for _, rec := range records {
		if len(rec) > w {
			w = len(rec)
		}
	}
	return w
}

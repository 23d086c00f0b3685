package dataimport

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// importJSON reads either a top-level array of objects (json) or one
// object per line (ndjson). Column order is first-seen key order across
// the decoded objects, which requires walking tokens instead of
// unmarshalling into Go maps.
func importJSON(name string, r io.Reader, format FormatTag, opts Options) *ImportResult {
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

	var columns []string
	seen := map[string]bool{}
	addColumn := func(key string) {
		if !seen[key] {
			seen[key] = true
			columns = append(columns, key)
		}
	}

	appendRow := func(row Row) bool {
		if opts.SkipRows > 0 {
			opts.SkipRows--
			return true
		}
		if opts.MaxRows > 0 && result.RowCount >= opts.MaxRows {
			return false
		}
		result.Data = append(result.Data, row)
		result.RowCount++
		return true
	}

	var err error
	if format == FormatNDJSON {
		err = decodeNDJSON(r, addColumn, appendRow, result)
	} else {
		err = decodeJSONArray(r, addColumn, appendRow)
	}
	if err != nil {
		result.addError(ImportError{Message: err.Error(), Severity: ErrorSeverity})
	}

	if result.RowCount == 0 {
		result.Data = nil
		if !result.HasErrors() {
			result.addError(ImportError{Message: "empty file", Severity: ErrorSeverity})
		}
	} else {
		result.Columns = columns
		// Rows decoded before later-seen keys existed still need those
		// keys present as nulls.
		for _, row := range result.Data {
			for _, col := range columns {
				if _, ok := row[col]; !ok {
					row[col] = nil
				}
			}
		}
	}
	result.Metadata.Duration = time.Since(start)
	return result
}

// decodeJSONArray expects `[ {...}, {...} ]`.
func decodeJSONArray(r io.Reader, addColumn func(string), appendRow func(Row) bool) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("parse JSON: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return fmt.Errorf("expected a top-level JSON array of objects, got %v", tok)
	}

	for dec.More() {
		row, err := decodeObject(dec, addColumn)
		if err != nil {
			return fmt.Errorf("parse JSON: %w", err)
		}
		if !appendRow(row) {
			return nil
		}
	}
	return nil
}

// decodeNDJSON reads one object per non-blank line. Malformed lines become
// warning-severity entries and decoding continues.
func decodeNDJSON(r io.Reader, addColumn func(string), appendRow func(Row) bool, result *ImportResult) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(line))
		dec.UseNumber()
		tok, err := dec.Token()
		if err != nil || tok != json.Delim('{') {
			result.addError(ImportError{
				Line:     lineNum,
				Message:  fmt.Sprintf("line %d is not a JSON object", lineNum),
				Severity: WarningSeverity,
			})
			continue
		}
		row, err := decodeObjectBody(dec, addColumn)
		if err != nil {
			result.addError(ImportError{
				Line:     lineNum,
				Message:  fmt.Sprintf("line %d: %v", lineNum, err),
				Severity: WarningSeverity,
			})
			continue
		}
		if !appendRow(row) {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read NDJSON: %w", err)
	}
	return nil
}

// decodeObject consumes a `{...}` value, preserving key order via addColumn.
func decodeObject(dec *json.Decoder, addColumn func(string)) (Row, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected an object, got %v", tok)
	}
	return decodeObjectBody(dec, addColumn)
}

// decodeObjectBody consumes key/value pairs up to the closing brace. The
// opening brace must already be consumed.
func decodeObjectBody(dec *json.Decoder, addColumn func(string)) (Row, error) {
	row := Row{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("expected an object key, got %v", keyTok)
		}
		addColumn(key)

		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		row[key] = normalizeJSONValue(v)
	}
	// Closing '}'.
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return row, nil
}

// normalizeJSONValue maps decoded JSON into the result value set. Numbers
// become float64; nested arrays/objects are kept as their JSON text since
// the tabular contract has no nested representation.
func normalizeJSONValue(v any) any {
	switch val := v.(type) {
	case nil, bool, string:
		return val
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}

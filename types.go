// Package dataimport provides the data-import core for telemetry datasets:
// format detection, typed value coercion, tabular parsers (CSV/TSV, Excel,
// JSON/NDJSON, SQLite), a bounded-memory streaming CSV importer, and
// folder/URL/clipboard source adapters. It has no UI dependencies and is
// intended to be driven by an application layer.
package dataimport

import "time"

// Severity classifies an ImportError. Only ErrorSeverity entries flip
// ImportResult.Success; warnings are informational.
type Severity string

const (
	ErrorSeverity   Severity = "error"
	WarningSeverity Severity = "warning"
)

// ImportError is a single problem encountered during an import.
// Line is 1-indexed and 0 when the error is not tied to a row.
type ImportError struct {
	Line     int      `json:"line,omitempty"`
	Column   string   `json:"column,omitempty"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

// SourceType identifies where the imported bytes came from.
type SourceType string

const (
	SourceFile      SourceType = "file"
	SourceURL       SourceType = "url"
	SourceClipboard SourceType = "clipboard"
	SourceAPI       SourceType = "api"
)

// Row is a single parsed record, keyed by column name. Values are the
// coercer's output set: nil, bool, float64, ISO timestamp string, or string.
type Row map[string]any

// Metadata records the provenance of an import.
type Metadata struct {
	Source     SourceType    `json:"source"`
	FileName   string        `json:"fileName,omitempty"`
	FileSize   int64         `json:"fileSize,omitempty"`
	Format     FormatTag     `json:"format"`
	Delimiter  string        `json:"delimiter,omitempty"`
	SheetName  string        `json:"sheetName,omitempty"`
	TableName  string        `json:"tableName,omitempty"`
	ImportedAt time.Time     `json:"importedAt"`
	Duration   time.Duration `json:"duration"`
}

// ImportResult is the universal output of every import operation.
//
// For streamed imports Data holds only the retained sample (never the full
// dataset) while RowCount is the true total; TotalChunks and ChunkIDs
// describe the chunk stream that was handed to the chunk handler.
type ImportResult struct {
	Success     bool          `json:"success"`
	Data        []Row         `json:"data"`
	Columns     []string      `json:"columns"`
	RowCount    int           `json:"rowCount"`
	Metadata    Metadata      `json:"metadata"`
	Errors      []ImportError `json:"errors,omitempty"`
	Warnings    []string      `json:"warnings,omitempty"`
	TotalChunks int           `json:"totalChunks,omitempty"`
	ChunkIDs    []string      `json:"chunkIds,omitempty"`
}

// HasErrors reports whether any error-severity entry was recorded.
func (r *ImportResult) HasErrors() bool {
	for _, e := range r.Errors {
		if e.Severity == ErrorSeverity {
			return true
		}
	}
	return false
}

// addError appends an entry and keeps Success consistent with it.
func (r *ImportResult) addError(e ImportError) {
	r.Errors = append(r.Errors, e)
	if e.Severity == ErrorSeverity {
		r.Success = false
	}
}

// addWarning appends an advisory string. Warnings never affect Success.
func (r *ImportResult) addWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// ChunkData is one fixed-size window of a streamed dataset's rows.
// Chunks are written once, never mutated, and owned by a single dataset.
type ChunkData struct {
	DatasetID string `json:"datasetId"`
	Index     int    `json:"index"`
	Rows      []Row  `json:"rows"`
	IsFirst   bool   `json:"isFirst"`
	IsLast    bool   `json:"isLast"`
}

// ImportPhase tags a progress report with the importer's current stage.
type ImportPhase string

const (
	PhaseParsing  ImportPhase = "parsing"
	PhaseComplete ImportPhase = "complete"
)

// Progress is emitted after every chunk flush and once at completion.
// Byte counts are estimated from the rows-processed ratio, not exact
// offsets.
type Progress struct {
	Phase              ImportPhase `json:"phase"`
	BytesProcessed     int64       `json:"bytesProcessed"`
	TotalBytes         int64       `json:"totalBytes"`
	Percent            float64     `json:"percent"`
	RowsProcessed      int         `json:"rowsProcessed"`
	EstimatedTotalRows int         `json:"estimatedTotalRows"`
}

// ProgressFunc receives progress reports. Called synchronously from the
// parse loop; a slow callback slows the import.
type ProgressFunc func(Progress)

// ChunkFunc receives each flushed chunk. The importer waits for it to
// return before parsing further rows, which is what bounds memory: a slow
// consumer throttles the parse rate.
type ChunkFunc func(ChunkData) error

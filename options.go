package dataimport

import (
	"fmt"
	"unicode/utf8"
)

// Default processing bounds.
const (
	// DefaultMaxRows caps SQLite query results to bound memory.
	DefaultMaxRows = 10_000

	// DefaultChunkSize is the row count per streamed chunk.
	DefaultChunkSize = 10_000

	// DefaultSampleSize is how many leading rows a streamed import retains
	// in memory for preview.
	DefaultSampleSize = 1_000

	// DefaultStreamingThreshold is the file size above which CSV imports
	// stream instead of materializing (50MB).
	DefaultStreamingThreshold = 50 * 1024 * 1024
)

// Options configures a single non-streaming import. The zero value
// auto-detects everything.
type Options struct {
	// Delimiter overrides delimiter detection for CSV/TSV (0 = detect).
	Delimiter rune

	// HasHeader overrides header detection (nil = detect).
	HasHeader *bool

	// SkipRows drops this many leading data rows.
	SkipRows int

	// MaxRows caps the number of parsed rows (0 = parser default:
	// unlimited for in-memory tabular formats, DefaultMaxRows for SQLite).
	MaxRows int

	// Sheet selects an Excel sheet by name. SheetIndex selects by
	// position when Sheet is empty and SheetIndex is non-nil.
	Sheet      string
	SheetIndex *int

	// Table or Query selects what to read from a SQLite file. Query wins
	// when both are set.
	Table string
	Query string
}

// validDelimiter mirrors encoding/csv's delimiter rules (0 means detect).
func validDelimiter(d rune) bool {
	return d == 0 || (d != '"' && d != '\r' && d != '\n' && d != utf8.RuneError && utf8.ValidRune(d))
}

// Validate rejects option combinations no parser can honor.
func (o *Options) Validate() error {
	if !validDelimiter(o.Delimiter) {
		return fmt.Errorf("options: invalid delimiter %q", o.Delimiter)
	}
	if o.SkipRows < 0 {
		return fmt.Errorf("options: SkipRows must be >= 0, got %d", o.SkipRows)
	}
	if o.MaxRows < 0 {
		return fmt.Errorf("options: MaxRows must be >= 0, got %d", o.MaxRows)
	}
	if o.SheetIndex != nil && *o.SheetIndex < 0 {
		return fmt.Errorf("options: SheetIndex must be >= 0, got %d", *o.SheetIndex)
	}
	return nil
}

// StreamOptions configures a streaming CSV import.
type StreamOptions struct {
	// Delimiter overrides delimiter detection (0 = detect from a leading
	// sample).
	Delimiter rune

	// ChunkSize is the row count per flushed chunk (0 = DefaultChunkSize).
	ChunkSize int

	// SampleSize is how many leading rows to retain for preview
	// (0 = DefaultSampleSize).
	SampleSize int

	// MaxRows aborts parsing at this row boundary (0 = unlimited).
	MaxRows int

	// DatasetID stamps emitted chunks. Generated when empty.
	DatasetID string

	// OnChunk receives each flushed chunk and is awaited before parsing
	// resumes. A nil handler discards chunks (sample-only import).
	OnChunk ChunkFunc

	// OnProgress receives a report after every chunk flush and once at
	// completion.
	OnProgress ProgressFunc
}

func (o *StreamOptions) applyDefaults() {
	if o.ChunkSize <= 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.SampleSize <= 0 {
		o.SampleSize = DefaultSampleSize
	}
}

func (o *StreamOptions) Validate() error {
	if !validDelimiter(o.Delimiter) {
		return fmt.Errorf("stream options: invalid delimiter %q", o.Delimiter)
	}
	if o.MaxRows < 0 {
		return fmt.Errorf("stream options: MaxRows must be >= 0, got %d", o.MaxRows)
	}
	return nil
}

package dataimport

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

const (
	// delimiterSampleBytes is the bounded leading sample used for
	// delimiter detection in the streaming path.
	delimiterSampleBytes = 32 * 1024

	// rowEstimateSampleBytes is the prefix used to estimate average bytes
	// per line, from which the total row count is approximated.
	rowEstimateSampleBytes = 100 * 1024

	// streamBufferBytes sizes the read buffer; it must cover the largest
	// peek above.
	streamBufferBytes = 256 * 1024

	// cancelCheckInterval is how often (in rows) the parse loop checks
	// for context cancellation.
	cancelCheckInterval = 100
)

// streamCSV imports delimited text of arbitrary size in bounded memory.
//
// The first parsed row becomes the header. Rows accumulate in a buffer of
// at most ChunkSize; a full buffer is flushed to OnChunk before the next
// row is appended, and the flush is awaited, so parse-ahead never exceeds
// one chunk. The first SampleSize rows are retained on the result for
// preview. A failing chunk handler degrades to a warning-severity entry
// tagged with the chunk index and streaming continues.
func streamCSV(ctx context.Context, name string, r io.Reader, size int64, opts StreamOptions, logger *slog.Logger) *ImportResult {
	start := time.Now()
	opts.applyDefaults()

	result := &ImportResult{
		Success: true,
		Metadata: Metadata{
			Source:     SourceFile,
			FileName:   name,
			FileSize:   size,
			Format:     FormatCSV,
			ImportedAt: start,
		},
	}
	if err := opts.Validate(); err != nil {
		result.addError(ImportError{Message: err.Error(), Severity: ErrorSeverity})
		result.Metadata.Duration = time.Since(start)
		return result
	}

	counted := newImportReader(r)
	buf := bufio.NewReaderSize(counted, streamBufferBytes)

	delim := opts.Delimiter
	if delim == 0 {
		sample, _ := buf.Peek(delimiterSampleBytes)
		delim = DetectDelimiter(string(sample))
	}
	result.Metadata.Delimiter = string(delim)

	estTotalRows := estimateRowCount(buf, size)
	logger.Debug("streaming import started",
		"file", name, "size", size, "delimiter", string(delim), "estimated_rows", estTotalRows)

	// Strict quoting: a malformed quote surfaces as a ParseError (degraded
	// to a warning below) instead of silently gluing rows together.
	reader := csv.NewReader(buf)
	reader.Comma = delim
	reader.FieldsPerRecord = -1

	var (
		columns   []string
		buffer    []Row
		chunkIdx  int
		rowsTotal int
		cancelled bool
	)

	flush := func(last bool) {
		if len(buffer) == 0 {
			return
		}
		chunk := ChunkData{
			DatasetID: opts.DatasetID,
			Index:     chunkIdx,
			Rows:      buffer,
			IsFirst:   chunkIdx == 0,
			IsLast:    last,
		}
		if opts.OnChunk != nil {
			if err := opts.OnChunk(chunk); err != nil {
				result.addError(ImportError{
					Message:  fmt.Sprintf("chunk %d: handler failed: %v", chunkIdx, err),
					Severity: WarningSeverity,
				})
			}
		}
		result.ChunkIDs = append(result.ChunkIDs, fmt.Sprintf("%s:%d", opts.DatasetID, chunkIdx))
		chunkIdx++
		buffer = nil
		reportProgress(opts.OnProgress, PhaseParsing, rowsTotal, estTotalRows, size)
	}

parse:
	for {
		if rowsTotal%cancelCheckInterval == 0 && ctx.Err() != nil {
			cancelled = true
			break
		}
		if opts.MaxRows > 0 && rowsTotal >= opts.MaxRows {
			break
		}

		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				if pe.Err == csv.ErrQuote || pe.Err == csv.ErrBareQuote {
					result.addWarning(fmt.Sprintf("line %d: quote issue, row skipped", pe.Line))
				} else {
					result.addError(ImportError{
						Line:     pe.Line,
						Message:  pe.Err.Error(),
						Severity: ErrorSeverity,
					})
				}
				continue
			}
			result.addError(ImportError{Message: fmt.Sprintf("read row: %v", err), Severity: ErrorSeverity})
			break parse
		}

		if emptyRecord(rec) {
			continue
		}

		// The first data row is the header; no heuristic in the
		// streaming path.
		if columns == nil {
			columns = make([]string, len(rec))
			for i, h := range rec {
				columns[i] = strings.TrimSpace(h)
			}
			continue
		}

		// A full buffer is flushed before this row is appended, so the
		// buffer never holds more than one chunk.
		if len(buffer) >= opts.ChunkSize {
			flush(false)
		}

		row := make(Row, len(columns))
		for c, col := range columns {
			if c < len(rec) {
				row[col] = Coerce(rec[c])
			} else {
				row[col] = nil
			}
		}
		buffer = append(buffer, row)
		rowsTotal++

		if len(result.Data) < opts.SampleSize {
			result.Data = append(result.Data, row)
		}
	}

	// Any remainder (including an abort's partial buffer) is the final
	// chunk.
	flush(true)
	if cancelled {
		result.addWarning(fmt.Sprintf("import cancelled after %d rows", rowsTotal))
	}

	result.RowCount = rowsTotal
	result.TotalChunks = chunkIdx
	if rowsTotal == 0 {
		result.Data = nil
		if !result.HasErrors() {
			result.addError(ImportError{Message: "empty file", Severity: ErrorSeverity})
		}
	} else {
		result.Columns = columns
	}

	reportProgress(opts.OnProgress, PhaseComplete, rowsTotal, rowsTotal, size)
	result.Metadata.Duration = time.Since(start)
	logger.Info("streaming import finished",
		"file", name, "rows", rowsTotal, "chunks", chunkIdx,
		"bytes_read", counted.count, "duration", result.Metadata.Duration)
	return result
}

// estimateRowCount samples the average line length over a bounded prefix
// and divides the file size by it. Explicitly approximate.
func estimateRowCount(buf *bufio.Reader, size int64) int {
	if size <= 0 {
		return 0
	}
	prefix, _ := buf.Peek(rowEstimateSampleBytes)
	if len(prefix) == 0 {
		return 0
	}
	lines := strings.Count(string(prefix), "\n")
	if lines == 0 {
		return 1
	}
	avg := float64(len(prefix)) / float64(lines)
	return int(float64(size) / avg)
}

// reportProgress emits a progress event. Byte counts are derived from the
// row ratio, not exact offsets; percent is pinned below 100 until the
// complete phase.
func reportProgress(fn ProgressFunc, phase ImportPhase, rows, estTotal int, size int64) {
	if fn == nil {
		return
	}
	p := Progress{
		Phase:              phase,
		RowsProcessed:      rows,
		EstimatedTotalRows: estTotal,
		TotalBytes:         size,
	}
	if phase == PhaseComplete {
		p.Percent = 100
		p.BytesProcessed = size
	} else if estTotal > 0 {
		ratio := float64(rows) / float64(estTotal)
		if ratio > 0.99 {
			ratio = 0.99
		}
		p.Percent = ratio * 100
		p.BytesProcessed = int64(ratio * float64(size))
	}
	fn(p)
}

// importCSVChunked is the small-file fallback: it parses everything at
// once through the in-memory importer and emits the rows as exactly one
// chunk, matching the streaming output shape.
func importCSVChunked(name string, r io.Reader, size int64, opts StreamOptions) *ImportResult {
	opts.applyDefaults()

	csvOpts := Options{Delimiter: opts.Delimiter}
	if opts.MaxRows > 0 {
		csvOpts.MaxRows = opts.MaxRows
	}
	result := importCSV(name, r, FormatCSV, csvOpts)
	result.Metadata.FileSize = size

	if result.RowCount > 0 {
		chunk := ChunkData{
			DatasetID: opts.DatasetID,
			Index:     0,
			Rows:      result.Data,
			IsFirst:   true,
			IsLast:    true,
		}
		if opts.OnChunk != nil {
			if err := opts.OnChunk(chunk); err != nil {
				result.addError(ImportError{
					Message:  fmt.Sprintf("chunk 0: handler failed: %v", err),
					Severity: WarningSeverity,
				})
			}
		}
		result.TotalChunks = 1
		result.ChunkIDs = []string{fmt.Sprintf("%s:0", opts.DatasetID)}
		if len(result.Data) > opts.SampleSize {
			result.Data = result.Data[:opts.SampleSize]
		}
	}
	reportProgress(opts.OnProgress, PhaseComplete, result.RowCount, result.RowCount, size)
	return result
}

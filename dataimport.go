package dataimport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
)

// Config tunes an Importer. The zero value is usable.
type Config struct {
	// StreamingThreshold is the file size above which CSV imports stream
	// (0 = DefaultStreamingThreshold).
	StreamingThreshold int64

	// URLTimeout bounds URL imports (0 = DefaultURLTimeout).
	URLTimeout time.Duration

	// HTTPClient overrides the client used for URL imports.
	HTTPClient *http.Client

	// Logger receives structured import logs (nil = slog.Default()).
	Logger *slog.Logger
}

// Importer is the entry point for all import operations. Construct one
// per consumer and pass it around explicitly; it replaces any notion of a
// shared global engine, so isolated instances can coexist (tests, multi-
// tenant callers).
type Importer struct {
	streamingThreshold int64
	urlTimeout         time.Duration
	httpClient         *http.Client
	logger             *slog.Logger
}

// New creates an Importer with the given configuration.
func New(cfg Config) *Importer {
	imp := &Importer{
		streamingThreshold: cfg.StreamingThreshold,
		urlTimeout:         cfg.URLTimeout,
		httpClient:         cfg.HTTPClient,
		logger:             cfg.Logger,
	}
	if imp.streamingThreshold <= 0 {
		imp.streamingThreshold = DefaultStreamingThreshold
	}
	if imp.urlTimeout <= 0 {
		imp.urlTimeout = DefaultURLTimeout
	}
	if imp.httpClient == nil {
		imp.httpClient = &http.Client{}
	}
	if imp.logger == nil {
		imp.logger = slog.Default()
	}
	return imp
}

// Import dispatches by detected format and returns a normalized result.
// An unknown format is rejected before any parse attempt. Errors never
// propagate as panics or returned errors; callers inspect Success and
// Errors on the result.
func (imp *Importer) Import(ctx context.Context, fileName string, r io.Reader, size int64, opts Options) *ImportResult {
	format := DetectFormat(fileName)
	if format == FormatUnknown {
		result := &ImportResult{
			Metadata: Metadata{Source: SourceFile, FileName: fileName, Format: FormatUnknown, ImportedAt: time.Now()},
		}
		result.addError(ImportError{
			Message:  fmt.Sprintf("unsupported file format: %q", fileName),
			Severity: ErrorSeverity,
		})
		return result
	}
	res := imp.importFormat(ctx, fileName, r, size, format, opts)
	res.Metadata.FileSize = size
	return res
}

// ImportPath opens a local file and imports it.
func (imp *Importer) ImportPath(ctx context.Context, path string, opts Options) *ImportResult {
	f, err := os.Open(path)
	if err != nil {
		result := &ImportResult{
			Metadata: Metadata{Source: SourceFile, FileName: path, Format: DetectFormat(path), ImportedAt: time.Now()},
		}
		result.addError(ImportError{Message: fmt.Sprintf("open file: %v", err), Severity: ErrorSeverity})
		return result
	}
	defer f.Close()

	size := int64(0)
	if info, err := f.Stat(); err == nil {
		size = info.Size()
	}
	return imp.Import(ctx, path, f, size, opts)
}

// StreamCSV runs the bounded-memory streaming importer when the source
// exceeds the streaming threshold, and the single-chunk in-memory
// fallback otherwise. A DatasetID is generated when the options carry
// none.
func (imp *Importer) StreamCSV(ctx context.Context, fileName string, r io.Reader, size int64, opts StreamOptions) *ImportResult {
	if opts.DatasetID == "" {
		opts.DatasetID = uuid.NewString()
	}

	var result *ImportResult
	func() {
		defer imp.recoverInto(&result, fileName, FormatCSV)
		if size > imp.streamingThreshold {
			result = streamCSV(ctx, fileName, r, size, opts, imp.logger)
		} else {
			result = importCSVChunked(fileName, r, size, opts)
		}
	}()
	return result
}

// importFormat invokes the parser for an already-detected format. Every
// parser runs under a recover so an internal failure surfaces as a
// synthetic error entry instead of escaping the call.
func (imp *Importer) importFormat(ctx context.Context, fileName string, r io.Reader, size int64, format FormatTag, opts Options) (result *ImportResult) {
	defer imp.recoverInto(&result, fileName, format)

	if err := opts.Validate(); err != nil {
		result = &ImportResult{
			Metadata: Metadata{Source: SourceFile, FileName: fileName, Format: format, ImportedAt: time.Now()},
		}
		result.addError(ImportError{Message: err.Error(), Severity: ErrorSeverity})
		return result
	}

	switch format {
	case FormatCSV, FormatTSV:
		result = importCSV(fileName, r, format, opts)
	case FormatJSON, FormatNDJSON:
		result = importJSON(fileName, r, format, opts)
	case FormatXLSX, FormatXLS:
		result = importExcel(fileName, r, format, opts)
	case FormatSQLite:
		result = imp.importSQLiteSource(ctx, fileName, r, opts)
	default:
		result = &ImportResult{
			Metadata: Metadata{Source: SourceFile, FileName: fileName, Format: format, ImportedAt: time.Now()},
		}
		result.addError(ImportError{
			Message:  fmt.Sprintf("unsupported file format: %q", fileName),
			Severity: ErrorSeverity,
		})
	}
	return result
}

// importSQLiteSource stages the database bytes into a temporary file,
// since the SQLite driver needs a path, then imports from it.
func (imp *Importer) importSQLiteSource(ctx context.Context, fileName string, r io.Reader, opts Options) *ImportResult {
	tmp, err := os.CreateTemp("", "dataimport-*.sqlite")
	if err != nil {
		result := &ImportResult{
			Metadata: Metadata{Source: SourceFile, FileName: fileName, Format: FormatSQLite, ImportedAt: time.Now()},
		}
		result.addError(ImportError{Message: fmt.Sprintf("stage database: %v", err), Severity: ErrorSeverity})
		return result
	}
	defer os.Remove(tmp.Name())

	_, copyErr := io.Copy(tmp, r)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		result := &ImportResult{
			Metadata: Metadata{Source: SourceFile, FileName: fileName, Format: FormatSQLite, ImportedAt: time.Now()},
		}
		if copyErr == nil {
			copyErr = closeErr
		}
		result.addError(ImportError{Message: fmt.Sprintf("stage database: %v", copyErr), Severity: ErrorSeverity})
		return result
	}
	return importSQLite(ctx, tmp.Name(), fileName, opts)
}

// recoverInto converts a parser panic into a failed result with one
// synthetic error entry, honoring the contract that import calls never
// throw.
func (imp *Importer) recoverInto(result **ImportResult, fileName string, format FormatTag) {
	if rec := recover(); rec != nil {
		imp.logger.Error("import panic recovered", "file", fileName, "panic", rec)
		res := &ImportResult{
			Metadata: Metadata{Source: SourceFile, FileName: fileName, Format: format, ImportedAt: time.Now()},
		}
		res.addError(ImportError{
			Message:  fmt.Sprintf("internal error: %v", rec),
			Severity: ErrorSeverity,
		})
		*result = res
	}
}

package dataimport

import (
	"context"
	"fmt"
	"io"
	"time"
)

// MergeStrategy controls how a folder import combines files.
type MergeStrategy string

const (
	// StrategyMerge concatenates all rows under the union of columns;
	// columns a file lacks become nulls.
	StrategyMerge MergeStrategy = "merge"

	// StrategySeparate keeps every file as its own result and schema.
	StrategySeparate MergeStrategy = "separate"

	// StrategyAuto merges when every file shares the same column set and
	// otherwise falls back to separate, surfacing the compatibility
	// report either way.
	StrategyAuto MergeStrategy = "auto"
)

// FileSource is one file in a batch: a name for format detection plus a
// lazily opened byte stream.
type FileSource struct {
	Name string
	Size int64
	Open func() (io.ReadCloser, error)
}

// ColumnCompatibility describes how the column sets of a batch relate.
// Derived, never stored.
type ColumnCompatibility struct {
	CommonColumns     []string            `json:"commonColumns"`
	AllColumns        []string            `json:"allColumns"`
	IsFullyCompatible bool                `json:"isFullyCompatible"`
	FileColumns       map[string][]string `json:"fileColumns"`
}

// BatchProgress is emitted after each file in a batch completes.
type BatchProgress struct {
	FileIndex      int     `json:"fileIndex"`
	FileName       string  `json:"fileName"`
	CompletedFiles int     `json:"completedFiles"`
	TotalFiles     int     `json:"totalFiles"`
	Percent        float64 `json:"percent"`
}

// BatchOptions configures a folder import.
type BatchOptions struct {
	Strategy   MergeStrategy
	FileOpts   Options
	OnProgress func(BatchProgress)
}

// BatchResult is the outcome of a folder import. Merged is set only when
// the effective strategy was merge; Separate always carries the per-file
// results in input order. Unsupported files are enumerated, never
// silently dropped.
type BatchResult struct {
	Strategy         MergeStrategy        `json:"strategy"`
	Merged           *ImportResult        `json:"merged,omitempty"`
	Separate         []*ImportResult      `json:"separate"`
	UnsupportedFiles []string             `json:"unsupportedFiles,omitempty"`
	Compatibility    *ColumnCompatibility `json:"compatibility,omitempty"`
}

// ImportFolder imports a set of files under the selected merge strategy.
func (imp *Importer) ImportFolder(ctx context.Context, files []FileSource, opts BatchOptions) (*BatchResult, error) {
	if opts.Strategy == "" {
		opts.Strategy = StrategyAuto
	}

	result := &BatchResult{Strategy: opts.Strategy}

	var supported []FileSource
	for _, f := range files {
		if DetectFormat(f.Name) == FormatUnknown {
			result.UnsupportedFiles = append(result.UnsupportedFiles, f.Name)
			continue
		}
		supported = append(supported, f)
	}
	if len(supported) == 0 {
		return result, fmt.Errorf("no supported files in batch (%d unsupported)", len(result.UnsupportedFiles))
	}

	for i, f := range supported {
		rc, err := f.Open()
		if err != nil {
			res := &ImportResult{
				Metadata: Metadata{Source: SourceFile, FileName: f.Name, Format: DetectFormat(f.Name), ImportedAt: time.Now()},
			}
			res.addError(ImportError{Message: fmt.Sprintf("open file: %v", err), Severity: ErrorSeverity})
			result.Separate = append(result.Separate, res)
		} else {
			res := imp.Import(ctx, f.Name, rc, f.Size, opts.FileOpts)
			rc.Close()
			result.Separate = append(result.Separate, res)
		}

		if opts.OnProgress != nil {
			opts.OnProgress(BatchProgress{
				FileIndex:      i,
				FileName:       f.Name,
				CompletedFiles: i + 1,
				TotalFiles:     len(supported),
				Percent:        float64(i+1) / float64(len(supported)) * 100,
			})
		}
	}

	result.Compatibility = analyzeCompatibility(result.Separate)

	strategy := opts.Strategy
	if strategy == StrategyAuto {
		if result.Compatibility.IsFullyCompatible {
			strategy = StrategyMerge
		} else {
			strategy = StrategySeparate
		}
		result.Strategy = strategy
	}

	if strategy == StrategyMerge {
		result.Merged = mergeResults(result.Separate, result.Compatibility.AllColumns)
	}
	return result, nil
}

// analyzeCompatibility computes the intersection and union of column sets
// across the per-file results that produced any columns.
func analyzeCompatibility(results []*ImportResult) *ColumnCompatibility {
	comp := &ColumnCompatibility{FileColumns: map[string][]string{}}

	counts := map[string]int{}
	analyzed := 0
	for _, res := range results {
		if len(res.Columns) == 0 {
			continue
		}
		analyzed++
		comp.FileColumns[res.Metadata.FileName] = res.Columns
		seen := map[string]bool{}
		for _, col := range res.Columns {
			if seen[col] {
				continue
			}
			seen[col] = true
			if counts[col] == 0 {
				comp.AllColumns = append(comp.AllColumns, col)
			}
			counts[col]++
		}
	}
	for _, col := range comp.AllColumns {
		if counts[col] == analyzed {
			comp.CommonColumns = append(comp.CommonColumns, col)
		}
	}
	comp.IsFullyCompatible = analyzed > 0 && len(comp.CommonColumns) == len(comp.AllColumns)
	return comp
}

// mergeResults concatenates rows under the union schema, nulling columns
// a file never had. Errors and warnings carry over, prefixed with the
// source file.
func mergeResults(results []*ImportResult, allColumns []string) *ImportResult {
	merged := &ImportResult{
		Success: true,
		Columns: allColumns,
		Metadata: Metadata{
			Source:     SourceFile,
			Format:     FormatCSV,
			ImportedAt: time.Now(),
		},
	}

	for _, res := range results {
		for _, e := range res.Errors {
			e.Message = fmt.Sprintf("%s: %s", res.Metadata.FileName, e.Message)
			merged.addError(e)
		}
		for _, w := range res.Warnings {
			merged.addWarning(fmt.Sprintf("%s: %s", res.Metadata.FileName, w))
		}
		for _, row := range res.Data {
			out := make(Row, len(allColumns))
			for _, col := range allColumns {
				if v, ok := row[col]; ok {
					out[col] = v
				} else {
					out[col] = nil
				}
			}
			merged.Data = append(merged.Data, out)
		}
		merged.RowCount += res.RowCount
	}

	if merged.RowCount == 0 {
		merged.Columns = nil
		merged.Data = nil
		if !merged.HasErrors() {
			merged.addError(ImportError{Message: "empty batch", Severity: ErrorSeverity})
		}
	}
	return merged
}

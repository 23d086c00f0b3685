package chunkstore

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/gamepulse/dataimport"
	"github.com/gamepulse/dataimport/logging"
)

// IngestCSV streams a CSV source through imp into the store: every flushed
// chunk is persisted as it arrives (the awaited write is what throttles
// the parse), and a DatasetMetadata record is saved at completion.
//
// A failed chunk write surfaces as a warning on the result rather than
// aborting the import; readers tolerate the gap. The metadata record is
// written even when some chunks failed, so a partially persisted dataset
// is still enumerable and deletable.
func IngestCSV(ctx context.Context, store Store, imp *dataimport.Importer, name string, r io.Reader, size int64, opts dataimport.StreamOptions) (*dataimport.ImportResult, *DatasetMetadata, error) {
	if opts.DatasetID == "" {
		opts.DatasetID = uuid.NewString()
	}
	log := logging.WithFields("dataset_id", opts.DatasetID, "file", name)

	userHandler := opts.OnChunk
	opts.OnChunk = func(chunk dataimport.ChunkData) error {
		if _, err := store.SaveChunk(ctx, opts.DatasetID, chunk); err != nil {
			return err
		}
		if userHandler != nil {
			return userHandler(chunk)
		}
		return nil
	}

	result := imp.StreamCSV(ctx, name, r, size, opts)

	if result.RowCount == 0 {
		return result, nil, fmt.Errorf("ingest %s: no rows imported", name)
	}

	chunkSize := 0
	if result.TotalChunks > 0 {
		// ceil(rowCount / chunkCount)
		chunkSize = (result.RowCount + result.TotalChunks - 1) / result.TotalChunks
	}
	meta := &DatasetMetadata{
		ID:         opts.DatasetID,
		Name:       name,
		RowCount:   result.RowCount,
		Columns:    result.Columns,
		ChunkCount: result.TotalChunks,
		ChunkSize:  chunkSize,
		IsChunked:  true,
		Format:     result.Metadata.Format,
		FileSize:   size,
		CreatedAt:  time.Now().UTC(),
	}
	if err := store.SaveDataset(ctx, *meta); err != nil {
		return result, nil, fmt.Errorf("ingest %s: save metadata: %w", name, err)
	}

	log.Info("dataset ingested", "rows", meta.RowCount, "chunks", meta.ChunkCount)
	return result, meta, nil
}

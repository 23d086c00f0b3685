// Package chunkstore persists imported datasets as fixed-size row chunks
// plus one metadata record per dataset, keeping large datasets out of main
// memory while supporting sampled preview reads.
//
// Metadata and chunks live in two typed collections joined by the dataset
// id. The linkage is by convention, not an enforced constraint: streamed
// ingestion writes chunks first and the metadata row only at completion.
// Chunk writes are last-write-wins per (dataset, index);
// the store gives no transactional isolation across a whole dataset, so
// concurrent operations against the same dataset id are the caller's
// problem. Disjoint dataset ids are safe by construction.
package chunkstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gamepulse/dataimport"
)

// ErrNotFound is returned when a dataset or chunk does not exist.
var ErrNotFound = errors.New("chunkstore: not found")

// DatasetMetadata is the one record kept per imported dataset.
// Created once at import completion; read-only afterwards except for
// deletion, which cascades to every chunk.
type DatasetMetadata struct {
	ID         string               `json:"id"`
	Name       string               `json:"name"`
	RowCount   int                  `json:"rowCount"`
	Columns    []string             `json:"columns"`
	ChunkCount int                  `json:"chunkCount"`
	ChunkSize  int                  `json:"chunkSize"`
	IsChunked  bool                 `json:"isChunked"`
	Format     dataimport.FormatTag `json:"format,omitempty"`
	FileSize   int64                `json:"fileSize,omitempty"`
	CreatedAt  time.Time            `json:"createdAt"`
}

// ChunkKey is the composite identifier of a stored chunk.
func ChunkKey(datasetID string, index int) string {
	return fmt.Sprintf("%s:%d", datasetID, index)
}

// Store is the persistence contract for chunked datasets.
type Store interface {
	// SaveChunk upserts a chunk under (datasetID, chunk.Index) and
	// returns its key. Overwriting replaces prior content, which makes
	// retries safe.
	SaveChunk(ctx context.Context, datasetID string, chunk dataimport.ChunkData) (string, error)

	// GetChunk returns one chunk or ErrNotFound.
	GetChunk(ctx context.Context, datasetID string, index int) (*dataimport.ChunkData, error)

	// GetAllChunks reads chunks 0..chunkCount-1 in index order. Missing
	// indices (partial write failures) are skipped, not errors.
	GetAllChunks(ctx context.Context, datasetID string, chunkCount int) ([]dataimport.ChunkData, error)

	// StreamChunks reads sequentially and hands each present chunk to fn,
	// for export/reprocessing without materializing the dataset.
	StreamChunks(ctx context.Context, datasetID string, chunkCount int, fn func(dataimport.ChunkData) error) error

	// GetSampleData accumulates rows in chunk order until sampleSize is
	// reached, reading no chunks beyond what it needs.
	GetSampleData(ctx context.Context, datasetID string, chunkCount, sampleSize int) ([]dataimport.Row, error)

	// DeleteChunks removes every chunk of the dataset and does not return
	// until all deletions have completed.
	DeleteChunks(ctx context.Context, datasetID string, chunkCount int) error

	// SaveDataset persists the dataset's metadata record.
	SaveDataset(ctx context.Context, meta DatasetMetadata) error

	// GetDataset returns a metadata record or ErrNotFound.
	GetDataset(ctx context.Context, id string) (*DatasetMetadata, error)

	// ListDatasets returns all metadata records, newest first.
	ListDatasets(ctx context.Context) ([]DatasetMetadata, error)

	// DeleteDataset removes the metadata record and cascades to all of
	// the dataset's chunks.
	DeleteDataset(ctx context.Context, id string) error
}

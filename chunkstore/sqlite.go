package chunkstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gamepulse/dataimport"
)

// SQLiteStore is the default Store backend: a local SQLite file (or
// :memory:) with datasets and chunks in two tables, chunk rows JSON-
// encoded. Suitable for single-process desktop/embedded use.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS datasets (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	row_count   INTEGER NOT NULL,
	columns     TEXT NOT NULL,
	chunk_count INTEGER NOT NULL,
	chunk_size  INTEGER NOT NULL,
	is_chunked  INTEGER NOT NULL,
	format      TEXT NOT NULL DEFAULT '',
	file_size   INTEGER NOT NULL DEFAULT 0,
	created_at  TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS chunks (
	dataset_id  TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	is_first    INTEGER NOT NULL,
	is_last     INTEGER NOT NULL,
	rows        BLOB NOT NULL,
	PRIMARY KEY (dataset_id, chunk_index)
);
CREATE INDEX IF NOT EXISTS idx_chunks_dataset ON chunks(dataset_id);
`

// OpenSQLite opens (creating if needed) a SQLite-backed store at path.
// Use ":memory:" for an ephemeral store.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open chunk store: %w", err)
	}
	// SQLite allows one writer; serialize access through a single conn to
	// avoid SQLITE_BUSY under concurrent imports.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init chunk store schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveChunk(ctx context.Context, datasetID string, chunk dataimport.ChunkData) (string, error) {
	rows, err := json.Marshal(chunk.Rows)
	if err != nil {
		return "", fmt.Errorf("encode chunk %d: %w", chunk.Index, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO chunks (dataset_id, chunk_index, is_first, is_last, rows) VALUES (?, ?, ?, ?, ?)`,
		datasetID, chunk.Index, chunk.IsFirst, chunk.IsLast, rows)
	if err != nil {
		return "", fmt.Errorf("save chunk %d: %w", chunk.Index, err)
	}
	return ChunkKey(datasetID, chunk.Index), nil
}

func (s *SQLiteStore) GetChunk(ctx context.Context, datasetID string, index int) (*dataimport.ChunkData, error) {
	var (
		isFirst, isLast bool
		raw             []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT is_first, is_last, rows FROM chunks WHERE dataset_id = ? AND chunk_index = ?`,
		datasetID, index).Scan(&isFirst, &isLast, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get chunk %d: %w", index, err)
	}

	chunk := &dataimport.ChunkData{
		DatasetID: datasetID,
		Index:     index,
		IsFirst:   isFirst,
		IsLast:    isLast,
	}
	if err := json.Unmarshal(raw, &chunk.Rows); err != nil {
		return nil, fmt.Errorf("decode chunk %d: %w", index, err)
	}
	return chunk, nil
}

func (s *SQLiteStore) GetAllChunks(ctx context.Context, datasetID string, chunkCount int) ([]dataimport.ChunkData, error) {
	chunks := make([]dataimport.ChunkData, 0, chunkCount)
	err := s.StreamChunks(ctx, datasetID, chunkCount, func(c dataimport.ChunkData) error {
		chunks = append(chunks, c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

func (s *SQLiteStore) StreamChunks(ctx context.Context, datasetID string, chunkCount int, fn func(dataimport.ChunkData) error) error {
	for i := 0; i < chunkCount; i++ {
		chunk, err := s.GetChunk(ctx, datasetID, i)
		if errors.Is(err, ErrNotFound) {
			// Gaps from partial write failures are tolerated on read.
			continue
		}
		if err != nil {
			return err
		}
		if err := fn(*chunk); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) GetSampleData(ctx context.Context, datasetID string, chunkCount, sampleSize int) ([]dataimport.Row, error) {
	if sampleSize <= 0 {
		return nil, nil
	}
	sample := make([]dataimport.Row, 0, sampleSize)
	for i := 0; i < chunkCount && len(sample) < sampleSize; i++ {
		chunk, err := s.GetChunk(ctx, datasetID, i)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, row := range chunk.Rows {
			sample = append(sample, row)
			if len(sample) == sampleSize {
				break
			}
		}
	}
	return sample, nil
}

func (s *SQLiteStore) DeleteChunks(ctx context.Context, datasetID string, chunkCount int) error {
	// One statement covers every chunk key; SQLite is single-writer, so
	// issuing per-chunk deletes concurrently would only contend.
	_, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE dataset_id = ?`, datasetID)
	if err != nil {
		return fmt.Errorf("delete chunks for %s: %w", datasetID, err)
	}
	return nil
}

func (s *SQLiteStore) SaveDataset(ctx context.Context, meta DatasetMetadata) error {
	cols, err := json.Marshal(meta.Columns)
	if err != nil {
		return fmt.Errorf("encode columns: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO datasets
		 (id, name, row_count, columns, chunk_count, chunk_size, is_chunked, format, file_size, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		meta.ID, meta.Name, meta.RowCount, cols, meta.ChunkCount, meta.ChunkSize,
		meta.IsChunked, string(meta.Format), meta.FileSize, meta.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("save dataset %s: %w", meta.ID, err)
	}
	return nil
}

func (s *SQLiteStore) GetDataset(ctx context.Context, id string) (*DatasetMetadata, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, row_count, columns, chunk_count, chunk_size, is_chunked, format, file_size, created_at
		 FROM datasets WHERE id = ?`, id)
	meta, err := scanDataset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get dataset %s: %w", id, err)
	}
	return meta, nil
}

func (s *SQLiteStore) ListDatasets(ctx context.Context) ([]DatasetMetadata, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, row_count, columns, chunk_count, chunk_size, is_chunked, format, file_size, created_at
		 FROM datasets ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	defer rows.Close()

	var out []DatasetMetadata
	for rows.Next() {
		meta, err := scanDataset(rows)
		if err != nil {
			return nil, fmt.Errorf("list datasets: %w", err)
		}
		out = append(out, *meta)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteDataset(ctx context.Context, id string) error {
	meta, err := s.GetDataset(ctx, id)
	if err != nil {
		return err
	}
	if err := s.DeleteChunks(ctx, id, meta.ChunkCount); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM datasets WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete dataset %s: %w", id, err)
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDataset(sc scanner) (*DatasetMetadata, error) {
	var (
		meta      DatasetMetadata
		cols      []byte
		format    string
		createdAt time.Time
	)
	err := sc.Scan(&meta.ID, &meta.Name, &meta.RowCount, &cols, &meta.ChunkCount,
		&meta.ChunkSize, &meta.IsChunked, &format, &meta.FileSize, &createdAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(cols, &meta.Columns); err != nil {
		return nil, fmt.Errorf("decode columns: %w", err)
	}
	meta.Format = dataimport.FormatTag(format)
	meta.CreatedAt = createdAt
	return &meta, nil
}

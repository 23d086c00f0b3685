package chunkstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/gamepulse/dataimport"
)

// deleteConcurrency caps parallel chunk deletions per dataset.
const deleteConcurrency = 8

// PostgresStore is a Store backend for shared deployments, keeping chunk
// rows as JSONB. Schema setup is the operator's job (see Migrate).
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgres wraps an existing connection pool.
func NewPostgres(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS datasets (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	row_count   INTEGER NOT NULL,
	columns     JSONB NOT NULL,
	chunk_count INTEGER NOT NULL,
	chunk_size  INTEGER NOT NULL,
	is_chunked  BOOLEAN NOT NULL,
	format      TEXT NOT NULL DEFAULT '',
	file_size   BIGINT NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS chunks (
	dataset_id  TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	is_first    BOOLEAN NOT NULL,
	is_last     BOOLEAN NOT NULL,
	rows        JSONB NOT NULL,
	PRIMARY KEY (dataset_id, chunk_index)
);
`

// Migrate creates the store's tables if they do not exist. Chunks carry no
// foreign key to datasets: ingestion persists chunks while streaming and
// writes the metadata row only at completion, so chunk rows legitimately
// precede their dataset row. Deletion cascades in code (DeleteDataset).
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("migrate chunk store: %w", err)
	}
	return nil
}

func (s *PostgresStore) SaveChunk(ctx context.Context, datasetID string, chunk dataimport.ChunkData) (string, error) {
	rows, err := json.Marshal(chunk.Rows)
	if err != nil {
		return "", fmt.Errorf("encode chunk %d: %w", chunk.Index, err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO chunks (dataset_id, chunk_index, is_first, is_last, rows)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (dataset_id, chunk_index)
		 DO UPDATE SET is_first = EXCLUDED.is_first, is_last = EXCLUDED.is_last, rows = EXCLUDED.rows`,
		datasetID, chunk.Index, chunk.IsFirst, chunk.IsLast, rows)
	if err != nil {
		return "", fmt.Errorf("save chunk %d: %w", chunk.Index, err)
	}
	return ChunkKey(datasetID, chunk.Index), nil
}

func (s *PostgresStore) GetChunk(ctx context.Context, datasetID string, index int) (*dataimport.ChunkData, error) {
	var (
		isFirst, isLast bool
		raw             []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT is_first, is_last, rows FROM chunks WHERE dataset_id = $1 AND chunk_index = $2`,
		datasetID, index).Scan(&isFirst, &isLast, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
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

func (s *PostgresStore) GetAllChunks(ctx context.Context, datasetID string, chunkCount int) ([]dataimport.ChunkData, error) {
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

func (s *PostgresStore) StreamChunks(ctx context.Context, datasetID string, chunkCount int, fn func(dataimport.ChunkData) error) error {
	for i := 0; i < chunkCount; i++ {
		chunk, err := s.GetChunk(ctx, datasetID, i)
		if errors.Is(err, ErrNotFound) {
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

func (s *PostgresStore) GetSampleData(ctx context.Context, datasetID string, chunkCount, sampleSize int) ([]dataimport.Row, error) {
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

// DeleteChunks issues per-chunk deletes concurrently and waits for every
// one to resolve; the dataset counts as deleted only when all have.
func (s *PostgresStore) DeleteChunks(ctx context.Context, datasetID string, chunkCount int) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(deleteConcurrency)
	for i := 0; i < chunkCount; i++ {
		i := i
		g.Go(func() error {
			_, err := s.pool.Exec(ctx,
				`DELETE FROM chunks WHERE dataset_id = $1 AND chunk_index = $2`, datasetID, i)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("delete chunks for %s: %w", datasetID, err)
	}
	return nil
}

func (s *PostgresStore) SaveDataset(ctx context.Context, meta DatasetMetadata) error {
	cols, err := json.Marshal(meta.Columns)
	if err != nil {
		return fmt.Errorf("encode columns: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO datasets
		 (id, name, row_count, columns, chunk_count, chunk_size, is_chunked, format, file_size, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name, row_count = EXCLUDED.row_count, columns = EXCLUDED.columns,
		   chunk_count = EXCLUDED.chunk_count, chunk_size = EXCLUDED.chunk_size,
		   is_chunked = EXCLUDED.is_chunked, format = EXCLUDED.format, file_size = EXCLUDED.file_size`,
		meta.ID, meta.Name, meta.RowCount, cols, meta.ChunkCount, meta.ChunkSize,
		meta.IsChunked, string(meta.Format), meta.FileSize, meta.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("save dataset %s: %w", meta.ID, err)
	}
	return nil
}

func (s *PostgresStore) GetDataset(ctx context.Context, id string) (*DatasetMetadata, error) {
	var (
		meta      DatasetMetadata
		cols      []byte
		format    string
		createdAt time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, row_count, columns, chunk_count, chunk_size, is_chunked, format, file_size, created_at
		 FROM datasets WHERE id = $1`, id).
		Scan(&meta.ID, &meta.Name, &meta.RowCount, &cols, &meta.ChunkCount,
			&meta.ChunkSize, &meta.IsChunked, &format, &meta.FileSize, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get dataset %s: %w", id, err)
	}
	if err := json.Unmarshal(cols, &meta.Columns); err != nil {
		return nil, fmt.Errorf("decode columns: %w", err)
	}
	meta.Format = dataimport.FormatTag(format)
	meta.CreatedAt = createdAt
	return &meta, nil
}

func (s *PostgresStore) ListDatasets(ctx context.Context) ([]DatasetMetadata, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, row_count, columns, chunk_count, chunk_size, is_chunked, format, file_size, created_at
		 FROM datasets ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	defer rows.Close()

	var out []DatasetMetadata
	for rows.Next() {
		var (
			meta      DatasetMetadata
			cols      []byte
			format    string
			createdAt time.Time
		)
		if err := rows.Scan(&meta.ID, &meta.Name, &meta.RowCount, &cols, &meta.ChunkCount,
			&meta.ChunkSize, &meta.IsChunked, &format, &meta.FileSize, &createdAt); err != nil {
			return nil, fmt.Errorf("list datasets: %w", err)
		}
		if err := json.Unmarshal(cols, &meta.Columns); err != nil {
			return nil, fmt.Errorf("decode columns: %w", err)
		}
		meta.Format = dataimport.FormatTag(format)
		meta.CreatedAt = createdAt
		out = append(out, meta)
	}
	return out, rows.Err()
}

func (s *PostgresStore) DeleteDataset(ctx context.Context, id string) error {
	meta, err := s.GetDataset(ctx, id)
	if err != nil {
		return err
	}
	if err := s.DeleteChunks(ctx, id, meta.ChunkCount); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, `DELETE FROM datasets WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete dataset %s: %w", id, err)
	}
	return nil
}

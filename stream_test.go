package dataimport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// streamingImporter forces the streaming path regardless of input size.
func streamingImporter() *Importer {
	return New(Config{StreamingThreshold: 1})
}

func buildCSV(rows int) string {
	var sb strings.Builder
	sb.WriteString("id,name\n")
	for i := 1; i <= rows; i++ {
		fmt.Fprintf(&sb, "%d,player%d\n", i, i)
	}
	return sb.String()
}

func streamString(t *testing.T, imp *Importer, content string, opts StreamOptions) *ImportResult {
	t.Helper()
	return imp.StreamCSV(context.Background(), "big.csv", strings.NewReader(content), int64(len(content)), opts)
}

func TestStreamCSVChunkContiguity(t *testing.T) {
	var chunks []ChunkData
	res := streamString(t, streamingImporter(), buildCSV(25), StreamOptions{
		DatasetID: "ds1",
		ChunkSize: 10,
		OnChunk: func(c ChunkData) error {
			chunks = append(chunks, c)
			return nil
		},
	})

	require.True(t, res.Success)
	assert.Equal(t, 25, res.RowCount)
	assert.Equal(t, 3, res.TotalChunks)
	assert.Equal(t, []string{"ds1:0", "ds1:1", "ds1:2"}, res.ChunkIDs)
	assert.Equal(t, []string{"id", "name"}, res.Columns)

	require.Len(t, chunks, 3)
	next := 1.0
	for i, c := range chunks {
		assert.Equal(t, "ds1", c.DatasetID)
		assert.Equal(t, i, c.Index)
		assert.Equal(t, i == 0, c.IsFirst)
		assert.Equal(t, i == len(chunks)-1, c.IsLast)
		for _, row := range c.Rows {
			assert.Equal(t, next, row["id"])
			next++
		}
	}
	assert.Len(t, chunks[0].Rows, 10)
	assert.Len(t, chunks[1].Rows, 10)
	assert.Len(t, chunks[2].Rows, 5)
}

func TestStreamCSVExactMultipleStillMarksLast(t *testing.T) {
	var chunks []ChunkData
	res := streamString(t, streamingImporter(), buildCSV(20), StreamOptions{
		DatasetID: "ds1",
		ChunkSize: 10,
		OnChunk: func(c ChunkData) error {
			chunks = append(chunks, c)
			return nil
		},
	})

	require.True(t, res.Success)
	assert.Equal(t, 2, res.TotalChunks)
	require.Len(t, chunks, 2)
	assert.False(t, chunks[0].IsLast)
	assert.True(t, chunks[1].IsLast)
}

func TestStreamCSVSampleRetention(t *testing.T) {
	res := streamString(t, streamingImporter(), buildCSV(25), StreamOptions{
		DatasetID:  "ds1",
		ChunkSize:  10,
		SampleSize: 7,
		OnChunk:    func(ChunkData) error { return nil },
	})

	require.True(t, res.Success)
	assert.Equal(t, 25, res.RowCount)
	require.Len(t, res.Data, 7)
	assert.Equal(t, float64(1), res.Data[0]["id"])
	assert.Equal(t, float64(7), res.Data[6]["id"])
}

func TestStreamCSVMaxRowsAborts(t *testing.T) {
	var chunks []ChunkData
	res := streamString(t, streamingImporter(), buildCSV(100), StreamOptions{
		DatasetID: "ds1",
		ChunkSize: 10,
		MaxRows:   12,
		OnChunk: func(c ChunkData) error {
			chunks = append(chunks, c)
			return nil
		},
	})

	require.True(t, res.Success)
	assert.Equal(t, 12, res.RowCount)
	assert.Equal(t, 2, res.TotalChunks)
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[1].Rows, 2)
	assert.True(t, chunks[1].IsLast)
}

func TestStreamCSVHandlerFailureIsWarning(t *testing.T) {
	res := streamString(t, streamingImporter(), buildCSV(25), StreamOptions{
		DatasetID: "ds1",
		ChunkSize: 10,
		OnChunk: func(c ChunkData) error {
			if c.Index == 1 {
				return errors.New("disk full")
			}
			return nil
		},
	})

	// Streaming continues past the failed chunk.
	require.True(t, res.Success)
	assert.Equal(t, 25, res.RowCount)
	assert.Equal(t, 3, res.TotalChunks)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, WarningSeverity, res.Errors[0].Severity)
	assert.Contains(t, res.Errors[0].Message, "chunk 1")
}

// The chunk handler is awaited, so parsing never runs ahead of an
// in-flight chunk.
func TestStreamCSVBackpressure(t *testing.T) {
	inFlight := 0
	res := streamString(t, streamingImporter(), buildCSV(50), StreamOptions{
		DatasetID: "ds1",
		ChunkSize: 10,
		OnChunk: func(c ChunkData) error {
			inFlight++
			defer func() { inFlight-- }()
			require.Equal(t, 1, inFlight)
			return nil
		},
	})

	require.True(t, res.Success)
	assert.Equal(t, 5, res.TotalChunks)
}

func TestStreamCSVCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	content := buildCSV(450)
	imp := streamingImporter()
	var chunks int
	res := imp.StreamCSV(ctx, "big.csv", strings.NewReader(content), int64(len(content)), StreamOptions{
		DatasetID: "ds1",
		ChunkSize: 100,
		OnChunk: func(c ChunkData) error {
			chunks++
			if c.Index == 1 {
				cancel()
			}
			return nil
		},
	})

	// Cancellation is checked every 100 rows; the partial buffer still
	// flushes as the final chunk.
	require.True(t, res.Success)
	assert.Equal(t, 300, res.RowCount)
	assert.Equal(t, 3, res.TotalChunks)
	assert.Equal(t, 3, chunks)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "cancelled after 300 rows")
}

func TestStreamCSVQuoteIssueIsWarning(t *testing.T) {
	content := "id,name\n1,p1\n2,\"x\"y\n3,p3\n"
	var rows int
	res := streamString(t, streamingImporter(), content, StreamOptions{
		DatasetID: "ds1",
		ChunkSize: 10,
		OnChunk: func(c ChunkData) error {
			rows += len(c.Rows)
			return nil
		},
	})

	// The malformed row is skipped with a warning; parsing continues.
	require.True(t, res.Success)
	assert.Equal(t, 2, res.RowCount)
	assert.Equal(t, 2, rows)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "quote")
}

func TestStreamCSVEmptyInput(t *testing.T) {
	res := streamString(t, streamingImporter(), "", StreamOptions{DatasetID: "ds1"})

	assert.False(t, res.Success)
	assert.Equal(t, 0, res.RowCount)
	assert.Equal(t, 0, res.TotalChunks)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, ErrorSeverity, res.Errors[0].Severity)
}

func TestStreamCSVProgress(t *testing.T) {
	var events []Progress
	res := streamString(t, streamingImporter(), buildCSV(25), StreamOptions{
		DatasetID:  "ds1",
		ChunkSize:  10,
		OnChunk:    func(ChunkData) error { return nil },
		OnProgress: func(p Progress) { events = append(events, p) },
	})

	require.True(t, res.Success)
	require.NotEmpty(t, events)
	for _, e := range events[:len(events)-1] {
		assert.Equal(t, PhaseParsing, e.Phase)
		assert.Less(t, e.Percent, 100.0)
	}
	final := events[len(events)-1]
	assert.Equal(t, PhaseComplete, final.Phase)
	assert.Equal(t, 100.0, final.Percent)
	assert.Equal(t, 25, final.RowsProcessed)
}

func TestStreamCSVSmallFileFallback(t *testing.T) {
	var chunks []ChunkData
	// Default threshold, tiny input: the in-memory path emits one chunk.
	imp := New(Config{})
	res := streamString(t, imp, buildCSV(5), StreamOptions{
		DatasetID: "ds1",
		OnChunk: func(c ChunkData) error {
			chunks = append(chunks, c)
			return nil
		},
	})

	require.True(t, res.Success)
	assert.Equal(t, 5, res.RowCount)
	assert.Equal(t, 1, res.TotalChunks)
	assert.Equal(t, []string{"ds1:0"}, res.ChunkIDs)
	require.Len(t, chunks, 1)
	assert.True(t, chunks[0].IsFirst)
	assert.True(t, chunks[0].IsLast)
	assert.Len(t, chunks[0].Rows, 5)
}

func TestStreamCSVGeneratesDatasetID(t *testing.T) {
	var got string
	res := streamString(t, streamingImporter(), buildCSV(3), StreamOptions{
		ChunkSize: 10,
		OnChunk: func(c ChunkData) error {
			got = c.DatasetID
			return nil
		},
	})

	require.True(t, res.Success)
	assert.NotEmpty(t, got)
	require.Len(t, res.ChunkIDs, 1)
	assert.Equal(t, got+":0", res.ChunkIDs[0])
}

package dataimport

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileSource(name, content string) FileSource {
	return FileSource{
		Name: name,
		Size: int64(len(content)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(content)), nil
		},
	}
}

func TestImportFolderAutoMergesCompatibleFiles(t *testing.T) {
	imp := New(Config{})
	res, err := imp.ImportFolder(context.Background(), []FileSource{
		fileSource("jan.csv", "id,level\n1,5\n2,7\n"),
		fileSource("feb.csv", "id,level\n3,9\n"),
	}, BatchOptions{})

	require.NoError(t, err)
	assert.Equal(t, StrategyMerge, res.Strategy)
	require.NotNil(t, res.Merged)
	assert.Equal(t, 3, res.Merged.RowCount)
	assert.Equal(t, []string{"id", "level"}, res.Merged.Columns)
	assert.True(t, res.Compatibility.IsFullyCompatible)
	require.Len(t, res.Separate, 2)
}

func TestImportFolderAutoFallsBackToSeparate(t *testing.T) {
	imp := New(Config{})
	res, err := imp.ImportFolder(context.Background(), []FileSource{
		fileSource("a.csv", "id,level\n1,5\n"),
		fileSource("b.csv", "id,level,score\n2,7,100\n"),
	}, BatchOptions{})

	require.NoError(t, err)
	assert.Equal(t, StrategySeparate, res.Strategy)
	assert.Nil(t, res.Merged)
	require.Len(t, res.Separate, 2)

	comp := res.Compatibility
	require.NotNil(t, comp)
	assert.False(t, comp.IsFullyCompatible)
	assert.Equal(t, []string{"id", "level"}, comp.CommonColumns)
	assert.Equal(t, []string{"id", "level", "score"}, comp.AllColumns)
	assert.Equal(t, []string{"id", "level"}, comp.FileColumns["a.csv"])
}

func TestImportFolderForcedMergeNullsMissingColumns(t *testing.T) {
	imp := New(Config{})
	res, err := imp.ImportFolder(context.Background(), []FileSource{
		fileSource("a.csv", "id,level\n1,5\n"),
		fileSource("b.csv", "id,level,score\n2,7,100\n"),
	}, BatchOptions{Strategy: StrategyMerge})

	require.NoError(t, err)
	require.NotNil(t, res.Merged)
	assert.Equal(t, 2, res.Merged.RowCount)
	assert.Equal(t, []string{"id", "level", "score"}, res.Merged.Columns)

	first := res.Merged.Data[0]
	v, ok := first["score"]
	require.True(t, ok)
	assert.Nil(t, v)
	assert.Equal(t, float64(100), res.Merged.Data[1]["score"])
}

func TestImportFolderUnsupportedFiles(t *testing.T) {
	imp := New(Config{})
	res, err := imp.ImportFolder(context.Background(), []FileSource{
		fileSource("players.csv", "id\n1\n"),
		fileSource("readme.txt", "not data"),
		fileSource("icon.png", "\x89PNG"),
	}, BatchOptions{})

	require.NoError(t, err)
	assert.Equal(t, []string{"readme.txt", "icon.png"}, res.UnsupportedFiles)
	require.Len(t, res.Separate, 1)
}

func TestImportFolderAllUnsupported(t *testing.T) {
	imp := New(Config{})
	_, err := imp.ImportFolder(context.Background(), []FileSource{
		fileSource("readme.txt", "not data"),
	}, BatchOptions{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no supported files")
}

func TestImportFolderMixedFormats(t *testing.T) {
	imp := New(Config{})
	res, err := imp.ImportFolder(context.Background(), []FileSource{
		fileSource("a.csv", "event,ts\nlogin,2024-01-01\n"),
		fileSource("b.ndjson", `{"event": "logout", "ts": "2024-01-02"}`+"\n"),
	}, BatchOptions{})

	require.NoError(t, err)
	assert.Equal(t, StrategyMerge, res.Strategy)
	require.NotNil(t, res.Merged)
	assert.Equal(t, 2, res.Merged.RowCount)
	assert.Equal(t, "login", res.Merged.Data[0]["event"])
	assert.Equal(t, "logout", res.Merged.Data[1]["event"])
}

func TestImportFolderProgress(t *testing.T) {
	var events []BatchProgress
	imp := New(Config{})
	_, err := imp.ImportFolder(context.Background(), []FileSource{
		fileSource("a.csv", "id\n1\n"),
		fileSource("b.csv", "id\n2\n"),
	}, BatchOptions{OnProgress: func(p BatchProgress) { events = append(events, p) }})

	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "a.csv", events[0].FileName)
	assert.Equal(t, 50.0, events[0].Percent)
	assert.Equal(t, 2, events[1].CompletedFiles)
	assert.Equal(t, 100.0, events[1].Percent)
}

func TestImportFolderMergePrefixesFileErrors(t *testing.T) {
	imp := New(Config{})
	res, err := imp.ImportFolder(context.Background(), []FileSource{
		fileSource("good.csv", "id\n1\n"),
		fileSource("bad.csv", ""),
	}, BatchOptions{Strategy: StrategyMerge})

	require.NoError(t, err)
	require.NotNil(t, res.Merged)
	assert.Equal(t, 1, res.Merged.RowCount)
	require.NotEmpty(t, res.Merged.Errors)
	assert.Contains(t, res.Merged.Errors[0].Message, "bad.csv")
}

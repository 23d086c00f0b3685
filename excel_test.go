package dataimport

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type sheetFixture struct {
	name string
	rows [][]any
}

func buildWorkbook(t *testing.T, sheets []sheetFixture) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, sheet := range sheets {
		if i == 0 {
			require.NoError(t, f.SetSheetName("Sheet1", sheet.name))
		} else {
			_, err := f.NewSheet(sheet.name)
			require.NoError(t, err)
		}
		for j, row := range sheet.rows {
			cell, err := excelize.CoordinatesToCellName(1, j+1)
			require.NoError(t, err)
			require.NoError(t, f.SetSheetRow(sheet.name, cell, &row))
		}
	}

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func importWorkbook(t *testing.T, wb []byte, opts Options) *ImportResult {
	t.Helper()
	imp := New(Config{})
	return imp.Import(context.Background(), "report.xlsx", bytes.NewReader(wb), int64(len(wb)), opts)
}

func TestImportExcel(t *testing.T) {
	wb := buildWorkbook(t, []sheetFixture{{
		name: "Players",
		rows: [][]any{
			{"player", "score", "active"},
			{"alice", 10, "true"},
			{"bob", 20, "false"},
		},
	}})
	res := importWorkbook(t, wb, Options{})

	require.True(t, res.Success)
	assert.Equal(t, 2, res.RowCount)
	assert.Equal(t, []string{"player", "score", "active"}, res.Columns)
	assert.Equal(t, "alice", res.Data[0]["player"])
	assert.Equal(t, float64(10), res.Data[0]["score"])
	assert.Equal(t, true, res.Data[0]["active"])
	assert.Equal(t, "Players", res.Metadata.SheetName)
	assert.Empty(t, res.Warnings)
}

func TestImportExcelMultiSheetWarning(t *testing.T) {
	wb := buildWorkbook(t, []sheetFixture{
		{name: "Main", rows: [][]any{{"a"}, {"1"}}},
		{name: "Extra", rows: [][]any{{"b"}, {"2"}}},
	})
	res := importWorkbook(t, wb, Options{})

	require.True(t, res.Success)
	assert.Equal(t, "Main", res.Metadata.SheetName)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "2 sheets")
	assert.Contains(t, res.Warnings[0], "Extra")
}

func TestImportExcelSheetSelection(t *testing.T) {
	wb := buildWorkbook(t, []sheetFixture{
		{name: "Summary", rows: [][]any{{"total"}, {100}}},
		{name: "Detail", rows: [][]any{{"item", "qty"}, {"sword", 3}}},
	})

	res := importWorkbook(t, wb, Options{Sheet: "detail"})
	require.True(t, res.Success)
	assert.Equal(t, "Detail", res.Metadata.SheetName)
	assert.Equal(t, []string{"item", "qty"}, res.Columns)
	assert.Empty(t, res.Warnings)

	res = importWorkbook(t, wb, Options{Sheet: "Missing"})
	assert.False(t, res.Success)
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, res.Errors[0].Message, "not found")
}

func TestImportExcelEmptySheet(t *testing.T) {
	wb := buildWorkbook(t, []sheetFixture{{name: "Blank"}})
	res := importWorkbook(t, wb, Options{})

	assert.False(t, res.Success)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Message, "empty sheet")
}

// Date cells must come out as RFC 3339 strings regardless of the display
// format the workbook renders them with.
func TestImportExcelDates(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetName("Sheet1", "Events"))
	require.NoError(t, f.SetSheetRow("Events", "A1", &[]any{"event", "when"}))
	require.NoError(t, f.SetSheetRow("Events", "A2", &[]any{
		"login", time.Date(2024, 6, 15, 10, 30, 0, 0, time.UTC),
	}))

	// Render the date cell with a non-ISO display format.
	styleID, err := f.NewStyle(&excelize.Style{NumFmt: 14}) // m/d/yy
	require.NoError(t, err)
	require.NoError(t, f.SetCellStyle("Events", "B2", "B2", styleID))

	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	res := importWorkbook(t, buf.Bytes(), Options{})
	require.True(t, res.Success)
	require.Equal(t, 1, res.RowCount)
	assert.Equal(t, "2024-06-15T10:30:00Z", res.Data[0]["when"])
}

func TestImportExcelHeaderless(t *testing.T) {
	wb := buildWorkbook(t, []sheetFixture{
		{name: "Data", rows: [][]any{{1, 2}, {3, 4}}},
	})
	res := importWorkbook(t, wb, Options{})

	require.True(t, res.Success)
	assert.Equal(t, []string{"column_1", "column_2"}, res.Columns)
	assert.Equal(t, float64(1), res.Data[0]["column_1"])
}

package dataimport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		fileName string
		want     FormatTag
	}{
		{"data.csv", FormatCSV},
		{"data.CSV", FormatCSV},
		{"data.TSV", FormatTSV},
		{"events.json", FormatJSON},
		{"events.ndjson", FormatNDJSON},
		{"events.jsonl", FormatNDJSON},
		{"report.xlsx", FormatXLSX},
		{"report.XLSX", FormatXLSX},
		{"legacy.xls", FormatXLS},
		{"game.db", FormatSQLite},
		{"game.sqlite", FormatSQLite},
		{"game.sqlite3", FormatSQLite},
		{"data.xyz", FormatUnknown},
		{"noextension", FormatUnknown},
		{"archive.csv.gz", FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.fileName, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectFormat(tt.fileName))
		})
	}
}

func TestSniffFormat(t *testing.T) {
	tests := []struct {
		name string
		text string
		want FormatTag
	}{
		{
			name: "json array",
			text: `[{"player": "alice", "score": 10}]`,
			want: FormatJSON,
		},
		{
			name: "json object",
			text: `{"player": "alice"}`,
			want: FormatJSON,
		},
		{
			name: "bracket but not valid json",
			text: "[not json,really\nsecond,line",
			want: FormatCSV,
		},
		{
			name: "tab separated",
			text: "player\tscore\nalice\t10\nbob\t20",
			want: FormatTSV,
		},
		{
			name: "comma separated",
			text: "player,score\nalice,10\nbob,20",
			want: FormatCSV,
		},
		{
			name: "tabs present but commas dominate",
			text: "a\tb,c,d,e\nf\tg,h,i,j",
			want: FormatCSV,
		},
		{
			name: "empty defaults to csv",
			text: "",
			want: FormatCSV,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SniffFormat(tt.text))
		})
	}
}

package dataimport

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoercePrecedence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want any
	}{
		{name: "empty is null", in: "", want: nil},
		{name: "whitespace is null", in: "   ", want: nil},
		{name: "true", in: "true", want: true},
		{name: "TRUE case-insensitive", in: "TRUE", want: true},
		{name: "False", in: "False", want: false},
		{name: "integer", in: "42", want: float64(42)},
		{name: "negative float", in: "-3.25", want: -3.25},
		{name: "scientific notation", in: "1e3", want: float64(1000)},
		{name: "year stays a number, not a date", in: "2024", want: float64(2024)},
		{name: "iso date", in: "2024-01-01", want: "2024-01-01T00:00:00Z"},
		{name: "iso datetime", in: "2024-06-15T10:30:00Z", want: "2024-06-15T10:30:00Z"},
		{name: "space-separated datetime", in: "2024-06-15 10:30:00", want: "2024-06-15T10:30:00Z"},
		{name: "invalid calendar date stays string", in: "2024-13-01", want: "2024-13-01"},
		{name: "date prefix with trailing junk stays string", in: "2024-01-02 hello", want: "2024-01-02 hello"},
		{name: "plain string", in: "alice", want: "alice"},
		{name: "string is trimmed", in: "  alice  ", want: "alice"},
		{name: "partial number stays string", in: "12abc", want: "12abc"},
		{name: "truthy word is not bool", in: "yes", want: "yes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Coerce(tt.in))
		})
	}
}

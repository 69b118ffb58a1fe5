package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCSV(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "empty string",
			input:    "",
			expected: nil,
		},
		{
			name:     "single value",
			input:    "JPM",
			expected: []string{"JPM"},
		},
		{
			name:     "two values",
			input:    "CS, JPM",
			expected: []string{"CS", "JPM"},
		},
		{
			name:     "varied spacing",
			input:    "MS,  Pershing , Valley",
			expected: []string{"MS", "Pershing", "Valley"},
		},
		{
			name:     "trailing comma",
			input:    "Safra,",
			expected: []string{"Safra"},
		},
		{
			name:     "leading comma",
			input:    ",HSBC",
			expected: []string{"HSBC"},
		},
		{
			name:     "only spaces",
			input:    "   ",
			expected: nil,
		},
		{
			name:     "comma only",
			input:    ",",
			expected: nil,
		},
		{
			name:     "multiple commas",
			input:    ",,JPM,,Safra,,",
			expected: []string{"JPM", "Safra"},
		},
		{
			name:     "internal spaces preserved",
			input:    "Credit Suisse, Julius Baer",
			expected: []string{"Credit Suisse", "Julius Baer"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseCSV(tt.input))
		})
	}
}

func TestParseCSV_PreservesInput(t *testing.T) {
	input := "CS, JPM"
	original := input

	_ = ParseCSV(input)

	assert.Equal(t, original, input, "input should not be modified")
}

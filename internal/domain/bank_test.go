package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllBanks(t *testing.T) {
	banks := AllBanks()
	assert.Len(t, banks, 12)

	seen := make(map[BankCode]bool)
	for _, b := range banks {
		assert.False(t, seen[b], "duplicate bank %s", b)
		seen[b] = true
		assert.True(t, b.IsValid())
		assert.NotEmpty(t, b.DisplayName())
	}
}

func TestParseBankCode(t *testing.T) {
	tests := []struct {
		input    string
		expected BankCode
		wantErr  bool
	}{
		{input: "JPM", expected: BankJPM},
		{input: "jpm", expected: BankJPM},
		{input: " valley ", expected: BankValley},
		{input: "lo", expected: BankLombard},
		{input: "ALT", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseBankCode(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestBankCode_IsValid(t *testing.T) {
	assert.False(t, BankCode("Pictet").IsValid())
	assert.True(t, BankSafra.IsValid())
}

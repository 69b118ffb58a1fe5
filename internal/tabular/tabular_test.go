package tabular

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestTable_ColumnLookup(t *testing.T) {
	tbl := New("Account Number", "  Market   Value ", "CUSIP")

	assert.Equal(t, 0, tbl.ColumnIndex("account number"))
	assert.Equal(t, 1, tbl.ColumnIndex("Market Value"))
	assert.Equal(t, -1, tbl.ColumnIndex("Ticker"))

	col, ok := tbl.FindColumn("Ticker", "cusip")
	require.True(t, ok)
	assert.Equal(t, "CUSIP", col)

	assert.Equal(t, []string{"Ticker", "Quantity"}, tbl.Missing("Ticker", "CUSIP", "Quantity"))
}

func TestTable_AppendAndSet(t *testing.T) {
	tbl := New("a", "b")
	tbl.Append([]string{"1"})
	tbl.Append([]string{"1", "2", "3"})
	assert.Equal(t, []string{"1", ""}, tbl.Rows[0])
	assert.Equal(t, []string{"1", "2"}, tbl.Rows[1])

	tbl.Set(0, "c", "x")
	assert.Equal(t, []string{"a", "b", "c"}, tbl.Headers)
	assert.Equal(t, "x", tbl.Get(tbl.Rows[0], "c"))
	assert.Equal(t, "", tbl.Get(tbl.Rows[1], "c"))

	tbl.AppendMap(map[string]string{"b": "y", "unknown": "z"})
	assert.Equal(t, []string{"", "y", ""}, tbl.Rows[2])

	clone := tbl.Clone()
	clone.Rows[0][0] = "changed"
	assert.Equal(t, "1", tbl.Rows[0][0])
}

func TestWriteAndReadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")

	sec := New("Ticker", "Quantity")
	sec.Append([]string{"AAPL", "10"})
	sec.Append([]string{"", ""})
	sec.Append([]string{"MSFT", "5.5"})
	tx := New("Date")
	tx.Append([]string{"2025-07-24"})

	require.NoError(t, WriteFile(path, Sheet{Name: "Securities", Table: sec}, Sheet{Name: "Transactions", Table: tx}))

	got, err := ReadFile(path, ReadOptions{Sheet: "Securities"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Ticker", "Quantity"}, got.Headers)
	require.Equal(t, 2, got.Len(), "blank rows are skipped")
	assert.Equal(t, "MSFT", got.Get(got.Rows[1], "ticker"))

	second, err := ReadFile(path, ReadOptions{SheetIndex: 1})
	require.NoError(t, err)
	assert.Equal(t, "2025-07-24", second.Get(second.Rows[0], "Date"))

	all, order, err := ReadSheets(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Securities", "Transactions"}, order)
	assert.Len(t, all, 2)

	preview, err := ReadPreview(path, 2)
	require.NoError(t, err)
	require.Len(t, preview, 2)
	assert.Equal(t, []string{"Ticker", "Quantity"}, preview[0])
	assert.Equal(t, []string{"AAPL", "10"}, preview[1])
}

func TestReadFile_HeaderRowOffset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "valley.xlsx")

	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"Valley Bank Statement"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]interface{}{"Post Date", "Amount"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A3", &[]interface{}{"07/01/2025", 12.5}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	tbl, err := ReadFile(path, ReadOptions{HeaderRow: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"Post Date", "Amount"}, tbl.Headers)
	require.Equal(t, 1, tbl.Len())
	d, ok := ParseDecimal(tbl.Get(tbl.Rows[0], "Amount"))
	require.True(t, ok)
	assert.True(t, d.Equal(decimal.RequireFromString("12.5")))
}

func TestFindHeaderRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cs.xlsx")

	f := excelize.NewFile()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]interface{}{"Portfolio statement"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]interface{}{"As of 24.07.2025"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A4", &[]interface{}{"Description", "ISIN", "Market Value"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A5", &[]interface{}{"Nestle", "CH0038863350", "1000"}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	row, ok, err := FindHeaderRow(path, []string{"isin", "market  value"}, 10)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, row)

	_, ok, err = FindHeaderRow(path, []string{"ISIN"}, 2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReadFile_MissingFile(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "nope.xlsx"), ReadOptions{})
	assert.Error(t, err)
}

func TestParseDecimalFormat(t *testing.T) {
	tests := []struct {
		input    string
		format   NumberFormat
		expected string
		ok       bool
	}{
		{input: "1,234.56", format: NumberFormatUS, expected: "1234.56", ok: true},
		{input: "$1,000", format: NumberFormatUS, expected: "1000", ok: true},
		{input: "(250.00)", format: NumberFormatUS, expected: "-250", ok: true},
		{input: "4.25%", format: NumberFormatUS, expected: "4.25", ok: true},
		{input: "100-", format: NumberFormatUS, expected: "-100", ok: true},
		{input: "1.234,56", format: NumberFormatEuropean, expected: "1234.56", ok: true},
		{input: "-12,5", format: NumberFormatEuropean, expected: "-12.5", ok: true},
		{input: "", format: NumberFormatUS, ok: false},
		{input: "-", format: NumberFormatUS, ok: false},
		{input: "N/A", format: NumberFormatUS, ok: false},
		{input: "abc", format: NumberFormatUS, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseDecimalFormat(tt.input, tt.format)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.True(t, got.Equal(decimal.RequireFromString(tt.expected)), "got %s", got)
			}
		})
	}
}

func TestParseDate(t *testing.T) {
	want := time.Date(2025, 7, 24, 0, 0, 0, 0, time.UTC)

	for _, in := range []string{"2025-07-24", "07/24/2025", "24.07.2025", "24-Jul-2025", "45862"} {
		got, ok := ParseDate(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	got, ok := ParseDate("24/07/2025", "02/01/2006")
	require.True(t, ok)
	assert.Equal(t, want, got)

	_, ok = ParseDate("12")
	assert.False(t, ok)
	_, ok = ParseDate("")
	assert.False(t, ok)
}

func TestFormatOptionalDecimal(t *testing.T) {
	assert.Equal(t, "", FormatOptionalDecimal(nil))
	d := decimal.RequireFromString("1.50")
	assert.Equal(t, "1.5", FormatOptionalDecimal(&d))
}

package detection

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aristath/custodian/internal/domain"
	"github.com/aristath/custodian/internal/tabular"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetect_FilenamePrefix(t *testing.T) {
	d := NewDetector(zerolog.Nop())

	tests := []struct {
		filename string
		expected domain.BankCode
	}{
		{"JPM_securities_26_05_2025.xlsx", domain.BankJPM},
		{"jpm_transactions_26_05_2025.xlsx", domain.BankJPM},
		{"CS_JAV_Main_securities_26_05_2025.xlsx", domain.BankCS},
		{"CSC_JAV_Main_securities_26_05_2025.xlsx", domain.BankCSC},
		{"Valley_HZ_Greige_Securities_27_05_2025.xlsx", domain.BankValley},
		{"LO_RH_Main_unitcost_27_05_2025.xlsx", domain.BankLombard},
		{"Banchile_securities_27_05_2025.xlsx", domain.BankBanchile},
		{"/uploads/2025-05-27/Safra_transactions_27_05_2025.xlsx", domain.BankSafra},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			bank, err := d.Detect(tt.filename, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, bank)
		})
	}
}

func TestDetect_Unknown(t *testing.T) {
	d := NewDetector(zerolog.Nop())

	_, err := d.Detect("Pictet_securities_26_05_2025.xlsx", nil)
	var detErr *domain.DetectionError
	require.ErrorAs(t, err, &detErr)
	assert.Equal(t, "Pictet_securities_26_05_2025.xlsx", detErr.File)

	_, err = d.Detect("alt_assets_26_05_2025.xlsx", nil)
	require.ErrorAs(t, err, &detErr)
}

func TestDetect_ContentFallback(t *testing.T) {
	d := NewDetector(zerolog.Nop())

	preview := [][]string{
		{"Statement as of 26/05/2025"},
		{"Account Number", "Asset Class", "Asset Strategy Detail", "Security ID", "Value"},
	}
	bank, err := d.Detect("positions_export.xlsx", preview)
	require.NoError(t, err)
	assert.Equal(t, domain.BankJPM, bank)

	_, err = d.Detect("positions_export.xlsx", [][]string{{"Foo", "Bar"}})
	var detErr *domain.DetectionError
	require.ErrorAs(t, err, &detErr)
}

func TestDetect_AmbiguousContent(t *testing.T) {
	d := NewDetector(zerolog.Nop())

	preview := [][]string{
		{"Nominal/Number", "Asset Subcategory", "Net Cost Value", "Instrument Name"},
	}
	_, err := d.Detect("export.xlsx", preview)
	var detErr *domain.DetectionError
	require.ErrorAs(t, err, &detErr)
	assert.Contains(t, detErr.Reason, "CS, JB")
}

func TestParseFileDate(t *testing.T) {
	date, ok := ParseFileDate("JPM_securities_26_05_2025.xlsx")
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 5, 26, 0, 0, 0, 0, time.UTC), date)
	assert.Equal(t, "26_05_2025", FormatFileDate(date))

	_, ok = ParseFileDate("JPM_securities.xlsx")
	assert.False(t, ok)

	_, ok = ParseFileDate("JPM_securities_45_13_2025.xlsx")
	assert.False(t, ok)
}

func TestParseKind(t *testing.T) {
	assert.Equal(t, domain.KindSecurities, ParseKind("Valley_HZ_Greige_Securities_27_05_2025.xlsx"))
	assert.Equal(t, domain.KindTransactions, ParseKind("JPM_transactions_27_05_2025.xlsx"))
	assert.Equal(t, domain.KindUnitCost, ParseKind("HSBC_unitcost_27_05_2025.xlsx"))
	assert.Equal(t, domain.FileKind(""), ParseKind("JPM_27_05_2025.xlsx"))
}

func writeWorkbook(t *testing.T, path string, headers ...string) {
	t.Helper()
	tbl := tabular.New(headers...)
	tbl.Append(make([]string, len(headers)))
	require.NoError(t, tabular.WriteFile(path, tabular.Sheet{Name: "Sheet1", Table: tbl}))
}

func TestClassify(t *testing.T) {
	dir := t.TempDir()
	d := NewDetector(zerolog.Nop())

	perAccount := filepath.Join(dir, "Valley_HZ_Greige_Securities_27_05_2025.xlsx")
	writeWorkbook(t, perAccount, "CUSIP")

	file, err := d.Classify(perAccount)
	require.NoError(t, err)
	assert.Equal(t, domain.BankValley, file.Bank)
	assert.Equal(t, domain.KindSecurities, file.Kind)
	assert.Equal(t, "HZ", file.Client)
	assert.Equal(t, "Greige", file.Account)
	assert.Equal(t, time.Date(2025, 5, 27, 0, 0, 0, 0, time.UTC), file.UploadDate)
	assert.True(t, file.IsPerAccount())

	sniffed := filepath.Join(dir, "export_27_05_2025.xlsx")
	writeWorkbook(t, sniffed, "Booking Date", "Text", "Debit", "Credit")

	file, err = d.Classify(sniffed)
	require.NoError(t, err)
	assert.Equal(t, domain.BankCS, file.Bank)
	assert.Equal(t, domain.KindTransactions, file.Kind)
	assert.False(t, file.IsPerAccount())
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	d := NewDetector(zerolog.Nop())

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "JPM"), 0755))
	writeWorkbook(t, filepath.Join(dir, "JPM", "JPM_securities_27_05_2025.xlsx"), "Value")
	writeWorkbook(t, filepath.Join(dir, "MS_transactions_27_05_2025.xlsx"), "Amount")
	writeWorkbook(t, filepath.Join(dir, "mystery.xlsx"), "Foo")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "~$JPM_securities_27_05_2025.xlsx"), []byte("lock"), 0644))

	result, err := d.Scan(dir)
	require.NoError(t, err)

	require.Len(t, result.Files, 2)
	require.Len(t, result.Rejected, 1)
	assert.Contains(t, result.Rejected[0].Path, "mystery.xlsx")
	assert.NotEmpty(t, result.Rejected[0].Reason())
	assert.Equal(t, []domain.BankCode{domain.BankJPM, domain.BankMS}, result.Banks())
	assert.Len(t, result.ByBank()[domain.BankJPM], 1)
}

// Package detection classifies uploaded statement files by bank, kind, date and account.
package detection

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/aristath/custodian/internal/domain"
	"github.com/aristath/custodian/internal/tabular"
	"github.com/rs/zerolog"
)

var (
	dateToken = regexp.MustCompile(`(\d{2})_(\d{2})_(\d{4})`)

	// <BANK>_<CLIENT>_<ACCOUNT>_<KIND>_DD_MM_YYYY.xlsx
	perAccountName = regexp.MustCompile(`(?i)^([A-Za-z]+)_([A-Za-z0-9]+)_([A-Za-z0-9]+)_(securities|transactions|unitcost)_\d{2}_\d{2}_\d{4}\.xlsx?$`)

	kindToken = regexp.MustCompile(`(?i)_(securities|transactions|unitcost)_`)

	alternativeAssets = regexp.MustCompile(`(?i)^alt_`)
)

// previewRows is how many leading rows are sniffed when the filename is ambiguous.
const previewRows = 5

type bankPattern struct {
	bank    domain.BankCode
	pattern *regexp.Regexp
}

// signature is a set of headers that only one bank's exports carry together.
type signature struct {
	bank    domain.BankCode
	kind    domain.FileKind
	headers []string
}

var signatures = []signature{
	{domain.BankJPM, domain.KindSecurities, []string{"Asset Strategy Detail", "Security ID"}},
	{domain.BankJPM, domain.KindTransactions, []string{"Amount USD", "Price USD"}},
	{domain.BankMS, domain.KindSecurities, []string{"Est. Annual Income", "Security Type"}},
	{domain.BankMS, domain.KindTransactions, []string{"Activity Date", "Activity"}},
	{domain.BankCS, domain.KindSecurities, []string{"Nominal/Number", "Asset Subcategory"}},
	{domain.BankCS, domain.KindTransactions, []string{"Booking Date", "Text"}},
	{domain.BankCSC, domain.KindSecurities, []string{"Symbol", "Cost Basis", "Asset Type"}},
	{domain.BankCSC, domain.KindTransactions, []string{"Action", "Symbol", "Amount"}},
	{domain.BankJB, domain.KindSecurities, []string{"Net Cost Value", "Instrument Name"}},
	{domain.BankJB, domain.KindTransactions, []string{"Operation Nature", "Net Amount"}},
	{domain.BankValley, domain.KindSecurities, []string{"Mkt Price Ccy", "Adj Cost Basis"}},
	{domain.BankValley, domain.KindTransactions, []string{"Post Date", "Cantidad"}},
	{domain.BankPershing, domain.KindSecurities, []string{"Sub-Asset Classification", "Asset Classification"}},
	{domain.BankPershing, domain.KindTransactions, []string{"Process Date", "Security ID"}},
	{domain.BankHSBC, domain.KindSecurities, []string{"Market Value (USD)", "Security Name"}},
	{domain.BankHSBC, domain.KindUnitCost, []string{"Average Cost", "ISIN"}},
	{domain.BankLombard, domain.KindSecurities, []string{"Valuation (USD)", "Position"}},
	{domain.BankLombard, domain.KindTransactions, []string{"Accounting date", "Transaction", "Net amount"}},
	{domain.BankSafra, domain.KindSecurities, []string{"Category", "Rate", "CUSIP"}},
	{domain.BankSafra, domain.KindTransactions, []string{"Debit", "Credit", "Account Number"}},
	{domain.BankIDB, domain.KindSecurities, []string{"Coupon", "Cost", "CUSIP"}},
	{domain.BankBanchile, domain.KindSecurities, []string{"Nominales Final", "Instrumento"}},
	{domain.BankBanchile, domain.KindTransactions, []string{"Movimiento", "Instrumento"}},
}

// Detector classifies raw bank files.
type Detector struct {
	patterns []bankPattern
	log      zerolog.Logger
}

// NewDetector creates a detector with one filename pattern per supported bank.
func NewDetector(log zerolog.Logger) *Detector {
	banks := domain.AllBanks()
	patterns := make([]bankPattern, 0, len(banks))
	for _, b := range banks {
		patterns = append(patterns, bankPattern{
			bank:    b,
			pattern: regexp.MustCompile(`(?i)^` + regexp.QuoteMeta(b.String()) + `_`),
		})
	}
	return &Detector{
		patterns: patterns,
		log:      log.With().Str("component", "bank_detector").Logger(),
	}
}

// Detect returns the bank for a file. The filename prefix decides first;
// preview rows (leading rows of the file) are only inspected when the
// filename carries no bank prefix.
func (d *Detector) Detect(filename string, preview [][]string) (domain.BankCode, error) {
	base := filepath.Base(filename)

	if alternativeAssets.MatchString(base) {
		return "", &domain.DetectionError{File: base, Reason: "alternative asset files are not bank statements"}
	}

	for _, p := range d.patterns {
		if p.pattern.MatchString(base) {
			return p.bank, nil
		}
	}

	if len(preview) == 0 {
		return "", &domain.DetectionError{File: base, Reason: "no bank prefix in filename"}
	}

	matches := matchSignatures(preview)
	switch len(matches) {
	case 0:
		return "", &domain.DetectionError{File: base, Reason: "no bank prefix and no known header signature"}
	case 1:
		for bank := range matches {
			d.log.Info().Str("file", base).Str("bank", bank.String()).Msg("Detected bank from file content")
			return bank, nil
		}
	}

	names := make([]string, 0, len(matches))
	for bank := range matches {
		names = append(names, bank.String())
	}
	sort.Strings(names)
	return "", &domain.DetectionError{File: base, Reason: "header matches several banks: " + strings.Join(names, ", ")}
}

func matchSignatures(preview [][]string) map[domain.BankCode]bool {
	matches := make(map[domain.BankCode]bool)
	for _, row := range preview {
		headers := make(map[string]bool, len(row))
		for _, cell := range row {
			headers[strings.ToLower(strings.TrimSpace(cell))] = true
		}
		for _, sig := range signatures {
			if hasAll(headers, sig.headers) {
				matches[sig.bank] = true
			}
		}
	}
	return matches
}

func hasAll(headers map[string]bool, want []string) bool {
	for _, w := range want {
		if !headers[strings.ToLower(w)] {
			return false
		}
	}
	return true
}

// Classify builds a RawBankFile for path: bank, kind, per-account scope and date.
func (d *Detector) Classify(path string) (domain.RawBankFile, error) {
	base := filepath.Base(path)
	info, err := os.Stat(path)
	if err != nil {
		return domain.RawBankFile{}, fmt.Errorf("failed to stat %s: %w", base, err)
	}

	file := domain.RawBankFile{
		Path:    path,
		Name:    base,
		ModTime: info.ModTime(),
		Kind:    ParseKind(base),
	}
	if date, ok := ParseFileDate(base); ok {
		file.UploadDate = date
	}

	var preview [][]string
	if !d.hasBankPrefix(base) {
		preview, err = tabular.ReadPreview(path, previewRows)
		if err != nil {
			return file, &domain.DetectionError{File: base, Reason: err.Error()}
		}
	}

	bank, err := d.Detect(base, preview)
	if err != nil {
		return file, err
	}
	file.Bank = bank

	if file.Kind == "" && preview != nil {
		file.Kind = sniffKind(bank, preview)
	}
	if file.Kind == "" {
		return file, &domain.DetectionError{File: base, Reason: "cannot tell securities from transactions"}
	}

	if m := perAccountName.FindStringSubmatch(base); m != nil {
		file.Client = m[2]
		file.Account = m[3]
	}

	return file, nil
}

func (d *Detector) hasBankPrefix(name string) bool {
	for _, p := range d.patterns {
		if p.pattern.MatchString(name) {
			return true
		}
	}
	return false
}

func sniffKind(bank domain.BankCode, preview [][]string) domain.FileKind {
	for _, row := range preview {
		headers := make(map[string]bool, len(row))
		for _, cell := range row {
			headers[strings.ToLower(strings.TrimSpace(cell))] = true
		}
		for _, sig := range signatures {
			if sig.bank == bank && hasAll(headers, sig.headers) {
				return sig.kind
			}
		}
	}
	return ""
}

// ParseFileDate extracts the DD_MM_YYYY token of a filename.
func ParseFileDate(name string) (time.Time, bool) {
	m := dateToken.FindString(name)
	if m == "" {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(domain.FileDateLayout, m, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// FormatFileDate renders a date as the DD_MM_YYYY filename token.
func FormatFileDate(t time.Time) string {
	return t.Format(domain.FileDateLayout)
}

// ParseKind returns the file kind named in a filename, or "" when absent.
func ParseKind(name string) domain.FileKind {
	m := kindToken.FindStringSubmatch(name)
	if m == nil {
		return ""
	}
	return domain.FileKind(strings.ToLower(m[1]))
}

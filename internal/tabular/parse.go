package tabular

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// NumberFormat selects the decimal and thousands separators of a bank file.
type NumberFormat int

const (
	// NumberFormatUS uses "," for thousands and "." for decimals.
	NumberFormatUS NumberFormat = iota
	// NumberFormatEuropean uses "." for thousands and "," for decimals.
	NumberFormatEuropean
)

var numberNoise = strings.NewReplacer(
	"$", "", "€", "", "£", "", "%", "",
	"USD", "", "EUR", "", "CLP", "",
	" ", "", " ", "", "'", "",
)

// ParseDecimal parses a US formatted amount.
// See ParseDecimalFormat for the accepted notation.
func ParseDecimal(s string) (decimal.Decimal, bool) {
	return ParseDecimalFormat(s, NumberFormatUS)
}

// ParseDecimalFormat parses an amount as written in bank statements:
// currency symbols, percent signs and thousands separators are dropped,
// "(123)" and "123-" are negative. Empty cells and dashes are not numbers.
func ParseDecimalFormat(s string, format NumberFormat) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" || s == "--" || strings.EqualFold(s, "n/a") || strings.EqualFold(s, "nan") {
		return decimal.Zero, false
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = numberNoise.Replace(s)
	if strings.HasSuffix(s, "-") {
		negative = !negative
		s = strings.TrimSuffix(s, "-")
	}

	switch format {
	case NumberFormatEuropean:
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	default:
		s = strings.ReplaceAll(s, ",", "")
	}
	if s == "" {
		return decimal.Zero, false
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	if negative {
		d = d.Neg()
	}
	return d, true
}

// DecimalOrZero parses s with ParseDecimalFormat and returns zero when it is not a number.
func DecimalOrZero(s string, format NumberFormat) decimal.Decimal {
	d, _ := ParseDecimalFormat(s, format)
	return d
}

// DefaultDateLayouts are tried in order when a bank does not declare its own.
var DefaultDateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"01/02/2006",
	"1/2/2006",
	"01/02/06",
	"02.01.2006",
	"02.01.06",
	"02-Jan-2006",
	"2 Jan 2006",
	"Jan 2, 2006",
	"01-02-06",
}

// excelEpoch is day zero of the 1900 date system as used by spreadsheet serials.
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// ParseDate parses a cell date using the given layouts, falling back to
// DefaultDateLayouts. Spreadsheet serial numbers are accepted.
func ParseDate(s string, layouts ...string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}

	if serial, err := strconv.ParseFloat(s, 64); err == nil {
		// 1954-10-04 .. 2119-01-07; anything else is not a date serial
		if serial >= 20000 && serial <= 80000 {
			return excelEpoch.AddDate(0, 0, int(serial)), true
		}
		return time.Time{}, false
	}

	if len(layouts) == 0 {
		layouts = DefaultDateLayouts
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// FormatDecimal renders d for an output cell.
func FormatDecimal(d decimal.Decimal) string {
	return d.String()
}

// FormatOptionalDecimal renders d, or "" when nil.
func FormatOptionalDecimal(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.String()
}

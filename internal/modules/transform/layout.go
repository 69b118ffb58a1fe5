// Package transform maps bank-native statement tables onto the standardized
// security and transaction schema.
package transform

import (
	"strings"

	"github.com/aristath/custodian/internal/domain"
	"github.com/aristath/custodian/internal/tabular"
)

// Field is a canonical attribute a bank column maps onto.
type Field string

const (
	FieldAccount     Field = "account" // external account number
	FieldIdentifier  Field = "identifier"
	FieldTicker      Field = "ticker"
	FieldName        Field = "name"
	FieldQuantity    Field = "quantity"
	FieldPrice       Field = "price"
	FieldMarketValue Field = "market_value"
	FieldCostBasis   Field = "cost_basis"
	FieldAssetClass  Field = "asset_class"
	FieldSubClass    Field = "sub_class"
	FieldCurrency    Field = "currency"
	FieldMaturity    Field = "maturity_date"
	FieldCoupon      Field = "coupon_rate"
	FieldIncome      Field = "estimated_annual_income"
	FieldDate        Field = "date"
	FieldType        Field = "type"
	FieldAmount      Field = "amount"
	FieldDebit       Field = "debit"
	FieldCredit      Field = "credit"
)

// SheetLayout maps the columns of one kind of bank file.
type SheetLayout struct {
	Sheet     string // empty reads the first sheet
	HeaderRow int
	AllSheets bool // every sheet holds rows; the sheet name is a fallback asset class
	Required  []Field
	Columns   map[Field][]string // candidate headers, tried in order per row
}

// Layout is the declarative mapping table of one bank.
type Layout struct {
	Bank            domain.BankCode
	Securities      SheetLayout
	Transactions    SheetLayout
	NumberFormat    tabular.NumberFormat
	DateLayouts     []string
	Currency        string                      // currency of rows without a currency column
	ConvertCurrency bool                        // amounts are in local currency and converted to USD
	AssetClasses    map[string]domain.AssetType // native class (lower case) to asset type
	UseLookup       bool                        // classify through the identifier lookup service
}

// missing returns the required fields none of whose candidate headers exist in t.
func (s SheetLayout) missing(t *tabular.Table) []string {
	var out []string
	for _, f := range s.Required {
		if f == FieldAmount && s.hasDebitCredit(t) {
			continue
		}
		if _, ok := t.FindColumn(s.Columns[f]...); !ok {
			out = append(out, strings.Join(s.Columns[f], "|"))
		}
	}
	return out
}

func (s SheetLayout) hasDebitCredit(t *tabular.Table) bool {
	_, debit := t.FindColumn(s.Columns[FieldDebit]...)
	_, credit := t.FindColumn(s.Columns[FieldCredit]...)
	return debit || credit
}

// value returns the first non-empty cell among the field's candidate columns.
func (s SheetLayout) value(t *tabular.Table, row []string, f Field) string {
	for _, col := range s.Columns[f] {
		if v := t.Get(row, col); v != "" {
			return v
		}
	}
	return ""
}

// nativeClass resolves a bank asset class label through the layout's table.
func (l Layout) nativeClass(labels ...string) (domain.AssetType, bool) {
	for _, label := range labels {
		label = strings.ToLower(strings.TrimSpace(label))
		if label == "" {
			continue
		}
		if t, ok := l.AssetClasses[label]; ok {
			return t, true
		}
	}
	return "", false
}

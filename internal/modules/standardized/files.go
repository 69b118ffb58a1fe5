// Package standardized reads and writes the canonical per-date output files
// and owns the dated directory layout shared by the pipeline stages.
package standardized

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aristath/custodian/internal/domain"
	"github.com/aristath/custodian/internal/tabular"
	"github.com/shopspring/decimal"
)

// Canonical security columns, in output order.
const (
	ColBank         = "bank"
	ColClient       = "client"
	ColAccount      = "account"
	ColTicker       = "ticker"
	ColIdentifier   = "identifier"
	ColName         = "name"
	ColQuantity     = "quantity"
	ColPrice        = "price"
	ColMarketValue  = "market_value"
	ColCostBasis    = "cost_basis"
	ColAssetType    = "asset_type"
	ColCurrency     = "currency"
	ColMaturityDate = "maturity_date"
	ColCouponRate   = "coupon_rate"
	ColAnnualIncome = "estimated_annual_income"
	ColDate         = "date"
	ColType         = "transaction_type"
	ColAmount       = "amount"
	ColNativeType   = "native_type"
)

var (
	securityColumns = []string{
		ColBank, ColClient, ColAccount, ColTicker, ColIdentifier, ColName, ColQuantity, ColPrice,
		ColMarketValue, ColCostBasis, ColAssetType, ColCurrency, ColMaturityDate, ColCouponRate, ColAnnualIncome,
	}
	transactionColumns = []string{
		ColBank, ColClient, ColAccount, ColDate, ColType, ColTicker, ColIdentifier,
		ColQuantity, ColPrice, ColAmount, ColNativeType,
	}
)

// Sheet names of the standardized workbooks.
const (
	SheetSecurities   = "Securities"
	SheetTransactions = "Transactions"
)

// SecuritiesFileName is the standardized securities file name for date.
func SecuritiesFileName(date time.Time) string {
	return "securities_" + date.Format(domain.FileDateLayout) + ".xlsx"
}

// TransactionsFileName is the standardized transactions file name for date.
func TransactionsFileName(date time.Time) string {
	return "transactions_" + date.Format(domain.FileDateLayout) + ".xlsx"
}

// WriteSecurities writes rows to path in the canonical column order.
func WriteSecurities(path string, rows []domain.StandardizedSecurity) error {
	t := tabular.New(securityColumns...)
	for _, s := range rows {
		t.Append([]string{
			string(s.Bank),
			s.ClientCode,
			s.AccountCode,
			s.Ticker,
			s.Identifier,
			s.Name,
			s.Quantity.String(),
			s.Price.String(),
			s.MarketValue.String(),
			tabular.FormatOptionalDecimal(s.CostBasis),
			string(s.AssetType),
			s.Currency,
			formatOptionalDate(s.MaturityDate),
			tabular.FormatOptionalDecimal(s.CouponRate),
			tabular.FormatOptionalDecimal(s.EstimatedAnnualIncome),
		})
	}
	return tabular.WriteFile(path, tabular.Sheet{Name: SheetSecurities, Table: t})
}

// WriteTransactions writes rows to path in the canonical column order.
func WriteTransactions(path string, rows []domain.StandardizedTransaction) error {
	t := tabular.New(transactionColumns...)
	for _, tx := range rows {
		t.Append([]string{
			string(tx.Bank),
			tx.ClientCode,
			tx.AccountCode,
			formatOptionalDate(&tx.Date),
			string(tx.Type),
			tx.Ticker,
			tx.Identifier,
			tabular.FormatOptionalDecimal(tx.Quantity),
			tabular.FormatOptionalDecimal(tx.Price),
			tx.TotalAmount.String(),
			tx.NativeType,
		})
	}
	return tabular.WriteFile(path, tabular.Sheet{Name: SheetTransactions, Table: t})
}

// ReadSecurities reads a standardized securities file.
func ReadSecurities(path string) ([]domain.StandardizedSecurity, error) {
	t, err := tabular.ReadFile(path, tabular.ReadOptions{Sheet: SheetSecurities})
	if err != nil {
		return nil, err
	}
	if missing := t.Missing(ColClient, ColMarketValue, ColAssetType); len(missing) > 0 {
		return nil, fmt.Errorf("%s is missing columns: %s", filepath.Base(path), strings.Join(missing, ", "))
	}

	out := make([]domain.StandardizedSecurity, 0, t.Len())
	for i, row := range t.Rows {
		s := domain.StandardizedSecurity{
			Bank:        domain.BankCode(t.Get(row, ColBank)),
			ClientCode:  t.Get(row, ColClient),
			AccountCode: t.Get(row, ColAccount),
			Ticker:      t.Get(row, ColTicker),
			Identifier:  t.Get(row, ColIdentifier),
			Name:        t.Get(row, ColName),
			AssetType:   domain.ParseAssetType(t.Get(row, ColAssetType)),
			Currency:    t.Get(row, ColCurrency),
		}
		var ok bool
		if s.MarketValue, ok = tabular.ParseDecimal(t.Get(row, ColMarketValue)); !ok {
			return nil, fmt.Errorf("%s row %d: invalid market value %q", filepath.Base(path), i+2, t.Get(row, ColMarketValue))
		}
		s.Quantity, _ = tabular.ParseDecimal(t.Get(row, ColQuantity))
		s.Price, _ = tabular.ParseDecimal(t.Get(row, ColPrice))
		s.CostBasis = optionalDecimal(t.Get(row, ColCostBasis))
		s.CouponRate = optionalDecimal(t.Get(row, ColCouponRate))
		s.EstimatedAnnualIncome = optionalDecimal(t.Get(row, ColAnnualIncome))
		if d, err := domain.ParseDate(t.Get(row, ColMaturityDate)); err == nil {
			s.MaturityDate = &d
		}
		out = append(out, s)
	}
	return out, nil
}

// ReadTransactions reads a standardized transactions file.
func ReadTransactions(path string) ([]domain.StandardizedTransaction, error) {
	t, err := tabular.ReadFile(path, tabular.ReadOptions{Sheet: SheetTransactions})
	if err != nil {
		return nil, err
	}
	if t.Len() == 0 {
		return nil, nil
	}
	if missing := t.Missing(ColClient, ColDate, ColType, ColAmount); len(missing) > 0 {
		return nil, fmt.Errorf("%s is missing columns: %s", filepath.Base(path), strings.Join(missing, ", "))
	}

	out := make([]domain.StandardizedTransaction, 0, t.Len())
	for i, row := range t.Rows {
		// An empty date marks an external flow the bank delivered undated
		var date time.Time
		if raw := t.Get(row, ColDate); raw != "" {
			if date, err = domain.ParseDate(raw); err != nil {
				return nil, fmt.Errorf("%s row %d: invalid date %q", filepath.Base(path), i+2, raw)
			}
		}
		amount, ok := tabular.ParseDecimal(t.Get(row, ColAmount))
		if !ok {
			return nil, fmt.Errorf("%s row %d: invalid amount %q", filepath.Base(path), i+2, t.Get(row, ColAmount))
		}
		out = append(out, domain.StandardizedTransaction{
			Bank:        domain.BankCode(t.Get(row, ColBank)),
			ClientCode:  t.Get(row, ColClient),
			AccountCode: t.Get(row, ColAccount),
			Date:        date,
			Type:        domain.ParseTransactionType(t.Get(row, ColType)),
			Ticker:      t.Get(row, ColTicker),
			Identifier:  t.Get(row, ColIdentifier),
			Quantity:    optionalDecimal(t.Get(row, ColQuantity)),
			Price:       optionalDecimal(t.Get(row, ColPrice)),
			TotalAmount: amount,
			NativeType:  t.Get(row, ColNativeType),
		})
	}
	return out, nil
}

// WriteOutput replaces date's securities and transactions files as a pair.
// Both are written to a staging directory first. The previous transactions
// file is removed before the swap and the new one moved in last, so HasOutput
// never reports a mismatched pair.
func (p Paths) WriteOutput(date time.Time, securities []domain.StandardizedSecurity, transactions []domain.StandardizedTransaction) error {
	dir := p.StageDir(date, DirStandardized)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create standardized directory: %w", err)
	}
	stage, err := os.MkdirTemp(dir, ".staging-")
	if err != nil {
		return fmt.Errorf("failed to create staging directory: %w", err)
	}
	defer os.RemoveAll(stage)

	secStaged := filepath.Join(stage, SecuritiesFileName(date))
	txStaged := filepath.Join(stage, TransactionsFileName(date))
	if err := WriteSecurities(secStaged, securities); err != nil {
		return err
	}
	if err := WriteTransactions(txStaged, transactions); err != nil {
		return err
	}

	txPath := p.TransactionsFile(date)
	if err := os.Remove(txPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove previous transactions file: %w", err)
	}
	if err := os.Rename(secStaged, p.SecuritiesFile(date)); err != nil {
		return fmt.Errorf("failed to move securities file into place: %w", err)
	}
	if err := os.Rename(txStaged, txPath); err != nil {
		return fmt.Errorf("failed to move transactions file into place: %w", err)
	}
	return nil
}

func optionalDecimal(s string) *decimal.Decimal {
	d, ok := tabular.ParseDecimal(s)
	if !ok {
		return nil
	}
	return &d
}

func formatOptionalDate(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format(domain.DateLayout)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Package domain provides core domain models and types.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Date layouts used across the pipeline.
const (
	DateLayout     = "2006-01-02" // storage and API
	FileDateLayout = "02_01_2006" // DD_MM_YYYY filename token
)

// AssetType classifies a holding
type AssetType string

const (
	AssetEquity      AssetType = "equity"
	AssetBond        AssetType = "bond"
	AssetCash        AssetType = "cash"
	AssetAlternative AssetType = "alternative"
	AssetOther       AssetType = "other"
)

// AllAssetTypes returns the asset types in display order.
func AllAssetTypes() []AssetType {
	return []AssetType{AssetEquity, AssetBond, AssetCash, AssetAlternative, AssetOther}
}

// ParseAssetType returns the asset type for s, or AssetOther when unknown.
func ParseAssetType(s string) AssetType {
	for _, t := range AllAssetTypes() {
		if string(t) == s {
			return t
		}
	}
	return AssetOther
}

// TransactionType classifies a transaction row
type TransactionType string

const (
	TxBuy        TransactionType = "buy"
	TxSell       TransactionType = "sell"
	TxDeposit    TransactionType = "deposit"
	TxWithdrawal TransactionType = "withdrawal"
	TxFee        TransactionType = "fee"
	TxIncome     TransactionType = "income"
	// TxOther holds native types no rule recognises. Never an external flow.
	TxOther TransactionType = "other"
)

// ParseTransactionType returns the transaction type for s, or TxOther when unknown.
func ParseTransactionType(s string) TransactionType {
	switch TransactionType(s) {
	case TxBuy, TxSell, TxDeposit, TxWithdrawal, TxFee, TxIncome:
		return TransactionType(s)
	}
	return TxOther
}

// IsExternalFlow reports whether the type moves capital in or out of the portfolio.
func (t TransactionType) IsExternalFlow() bool {
	return t == TxDeposit || t == TxWithdrawal
}

// FileKind is the content kind of a raw bank file
type FileKind string

const (
	KindSecurities   FileKind = "securities"
	KindTransactions FileKind = "transactions"
	KindUnitCost     FileKind = "unitcost"
)

// RawBankFile is an uploaded statement file. It is never mutated by the pipeline.
type RawBankFile struct {
	Path       string    `json:"path"`
	Name       string    `json:"name"`
	Bank       BankCode  `json:"bank,omitempty"` // empty until detected
	Kind       FileKind  `json:"kind,omitempty"`
	UploadDate time.Time `json:"upload_date"`
	Client     string    `json:"client,omitempty"`  // per-account files only
	Account    string    `json:"account,omitempty"` // per-account files only
	ModTime    time.Time `json:"mod_time"`
}

// IsPerAccount reports whether the file is scoped to a single client account.
func (f RawBankFile) IsPerAccount() bool {
	return f.Client != "" && f.Account != ""
}

// StandardizedSecurity is one holding at a point in time in the canonical schema.
type StandardizedSecurity struct {
	Bank                  BankCode         `json:"bank"`
	ClientCode            string           `json:"client_code"`
	AccountCode           string           `json:"account_code"`
	Ticker                string           `json:"ticker,omitempty"`
	Identifier            string           `json:"identifier,omitempty"` // CUSIP or ISIN
	Name                  string           `json:"name"`
	Quantity              decimal.Decimal  `json:"quantity"`
	Price                 decimal.Decimal  `json:"price"`
	MarketValue           decimal.Decimal  `json:"market_value"`
	CostBasis             *decimal.Decimal `json:"cost_basis,omitempty"`
	AssetType             AssetType        `json:"asset_type"`
	Currency              string           `json:"currency"`
	MaturityDate          *time.Time       `json:"maturity_date,omitempty"`
	CouponRate            *decimal.Decimal `json:"coupon_rate,omitempty"` // percent
	EstimatedAnnualIncome *decimal.Decimal `json:"estimated_annual_income,omitempty"`
}

// Key returns the identity used to deduplicate holdings.
func (s StandardizedSecurity) Key() string {
	id := s.Identifier
	if id == "" {
		id = s.Ticker
	}
	if id == "" {
		id = s.Name
	}
	return s.ClientCode + "|" + s.AccountCode + "|" + id
}

// AlignSign makes market value carry the sign of quantity.
// Returns true when the row had to be corrected.
func (s *StandardizedSecurity) AlignSign() bool {
	if s.Quantity.IsZero() || s.MarketValue.IsZero() {
		return false
	}
	if s.Quantity.Sign() == s.MarketValue.Sign() {
		return false
	}
	s.MarketValue = s.MarketValue.Neg()
	return true
}

// StandardizedTransaction is one cash-flow or trade event in the canonical schema.
type StandardizedTransaction struct {
	Bank        BankCode         `json:"bank"`
	ClientCode  string           `json:"client_code"`
	AccountCode string           `json:"account_code"`
	Ticker      string           `json:"ticker,omitempty"`
	Identifier  string           `json:"identifier,omitempty"`
	Date        time.Time        `json:"date"`
	Type        TransactionType  `json:"type"`
	NativeType  string           `json:"native_type,omitempty"`
	Quantity    *decimal.Decimal `json:"quantity,omitempty"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	TotalAmount decimal.Decimal  `json:"total_amount"` // inflow positive, outflow negative
}

// AccountMapping links a bank's external account number to an internal client account.
type AccountMapping struct {
	Bank                  BankCode `json:"bank"`
	ExternalAccountNumber string   `json:"external_account_number"`
	ClientCode            string   `json:"client_code"`
	InternalAccountCode   string   `json:"internal_account_code"`
	AccountName           string   `json:"account_name,omitempty"`
}

// DecimalPtr returns a pointer to d.
func DecimalPtr(d decimal.Decimal) *decimal.Decimal {
	return &d
}

// TruncateDay strips the clock from t and returns the date at UTC midnight.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}

package testing

import (
	"time"

	"github.com/aristath/custodian/internal/domain"
	"github.com/shopspring/decimal"
)

// FixtureDate is the statement date the fixtures describe.
var FixtureDate = time.Date(2025, 7, 24, 0, 0, 0, 0, time.UTC)

// NewSecurityFixtures returns the standardized holdings of two clients
// across three banks. HZ totals 34900 and LP totals 6500.
func NewSecurityFixtures() []domain.StandardizedSecurity {
	maturity := time.Date(2030, 5, 15, 0, 0, 0, 0, time.UTC)
	return []domain.StandardizedSecurity{
		{
			Bank:        domain.BankJPM,
			ClientCode:  "HZ",
			AccountCode: "HZ-JPM",
			Ticker:      "AAPL",
			Identifier:  "037833100",
			Name:        "Apple Inc",
			Quantity:    decimal.NewFromInt(100),
			Price:       decimal.NewFromInt(200),
			MarketValue: decimal.NewFromInt(20000),
			CostBasis:   decPtr(15000),
			AssetType:   domain.AssetEquity,
			Currency:    "USD",
		},
		{
			Bank:        domain.BankJPM,
			ClientCode:  "HZ",
			AccountCode: "HZ-JPM",
			Name:        "USD Cash",
			Quantity:    decimal.NewFromInt(5000),
			Price:       decimal.NewFromInt(1),
			MarketValue: decimal.NewFromInt(5000),
			AssetType:   domain.AssetCash,
			Currency:    "USD",
		},
		{
			Bank:         domain.BankCS,
			ClientCode:   "HZ",
			AccountCode:  "HZ-CS",
			Identifier:   "US912828XX10",
			Name:         "US Treasury 2.5% 2030",
			Quantity:     decimal.NewFromInt(10000),
			Price:        decimal.NewFromInt(99),
			MarketValue:  decimal.NewFromInt(9900),
			AssetType:    domain.AssetBond,
			Currency:     "USD",
			MaturityDate: &maturity,
			CouponRate:   domain.DecimalPtr(decimal.RequireFromString("2.5")),
		},
		{
			Bank:        domain.BankSafra,
			ClientCode:  "LP",
			AccountCode: "LP-SAFRA",
			Ticker:      "MSFT",
			Identifier:  "594918104",
			Name:        "Microsoft Corp",
			Quantity:    decimal.NewFromInt(10),
			Price:       decimal.NewFromInt(400),
			MarketValue: decimal.NewFromInt(4000),
			CostBasis:   decPtr(3000),
			AssetType:   domain.AssetEquity,
			Currency:    "USD",
		},
		{
			Bank:        domain.BankSafra,
			ClientCode:  "LP",
			AccountCode: "LP-SAFRA",
			Name:        "USD Cash",
			Quantity:    decimal.NewFromInt(2500),
			Price:       decimal.NewFromInt(1),
			MarketValue: decimal.NewFromInt(2500),
			AssetType:   domain.AssetCash,
			Currency:    "USD",
		},
	}
}

// NewTransactionFixtures returns activity matching NewSecurityFixtures: one
// external deposit and one trade for HZ, one withdrawal for LP.
func NewTransactionFixtures() []domain.StandardizedTransaction {
	return []domain.StandardizedTransaction{
		{
			Bank:        domain.BankJPM,
			ClientCode:  "HZ",
			AccountCode: "HZ-JPM",
			Date:        time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC),
			Type:        domain.TxDeposit,
			NativeType:  "ACH Deposit",
			TotalAmount: decimal.NewFromInt(5000),
		},
		{
			Bank:        domain.BankJPM,
			ClientCode:  "HZ",
			AccountCode: "HZ-JPM",
			Ticker:      "AAPL",
			Identifier:  "037833100",
			Date:        time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC),
			Type:        domain.TxBuy,
			NativeType:  "Buy",
			Quantity:    decPtr(10),
			Price:       decPtr(195),
			TotalAmount: decimal.NewFromInt(-1950),
		},
		{
			Bank:        domain.BankSafra,
			ClientCode:  "LP",
			AccountCode: "LP-SAFRA",
			Date:        time.Date(2025, 7, 18, 0, 0, 0, 0, time.UTC),
			Type:        domain.TxWithdrawal,
			NativeType:  "Wire Out",
			TotalAmount: decimal.NewFromInt(-1000),
		},
	}
}

func decPtr(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

package transform

import (
	"context"
	"fmt"
	"time"

	"github.com/aristath/custodian/internal/domain"
	"github.com/shopspring/decimal"
)

// converter turns local-currency amounts into BaseCurrency for layouts that
// report in local currency. Rates are fetched once per currency and date.
type converter struct {
	enabled   bool
	fallback  string // currency of rows without a currency column
	rates     RateProvider
	date      time.Time
	cache     map[string]decimal.Decimal
	converted int
}

func (c *converter) rate(ctx context.Context, currency string) (decimal.Decimal, bool, error) {
	if currency == "" {
		currency = c.fallback
	}
	if !c.enabled || currency == "" || currency == BaseCurrency {
		return decimal.Zero, false, nil
	}
	if r, ok := c.cache[currency]; ok {
		return r, true, nil
	}
	if c.rates == nil {
		return decimal.Zero, false, fmt.Errorf("no exchange rate provider for %s", currency)
	}
	r, err := c.rates.USDPerUnit(ctx, currency, c.date)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("failed to get %s rate: %w", currency, err)
	}
	c.cache[currency] = r
	return r, true, nil
}

func (c *converter) security(ctx context.Context, s *domain.StandardizedSecurity) error {
	r, ok, err := c.rate(ctx, s.Currency)
	if !ok {
		return err
	}
	s.MarketValue = s.MarketValue.Mul(r).Round(2)
	s.Price = s.Price.Mul(r).Round(6)
	if s.CostBasis != nil {
		s.CostBasis = domain.DecimalPtr(s.CostBasis.Mul(r).Round(2))
	}
	if s.EstimatedAnnualIncome != nil {
		s.EstimatedAnnualIncome = domain.DecimalPtr(s.EstimatedAnnualIncome.Mul(r).Round(2))
	}
	s.Currency = BaseCurrency
	c.converted++
	return nil
}

func (c *converter) transaction(ctx context.Context, currency string, tx *domain.StandardizedTransaction) error {
	r, ok, err := c.rate(ctx, currency)
	if !ok {
		return err
	}
	tx.TotalAmount = tx.TotalAmount.Mul(r).Round(2)
	if tx.Price != nil {
		tx.Price = domain.DecimalPtr(tx.Price.Mul(r).Round(6))
	}
	c.converted++
	return nil
}

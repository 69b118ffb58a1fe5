package transform

import (
	"testing"
	"time"

	"github.com/aristath/custodian/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestClassifyByRules(t *testing.T) {
	maturity := time.Date(2030, 5, 15, 0, 0, 0, 0, time.UTC)
	coupon := decimal.RequireFromString("4.25")
	zero := decimal.Zero

	tests := []struct {
		name     string
		security string
		ticker   string
		maturity *time.Time
		coupon   *decimal.Decimal
		want     domain.AssetType
	}{
		{name: "cash sweep", security: "JPM Deposit Sweep", want: domain.AssetCash},
		{name: "money market", security: "Goldman Money Market Fund", want: domain.AssetCash},
		{name: "maturity date", security: "Acme 2030", maturity: &maturity, want: domain.AssetBond},
		{name: "coupon", security: "Acme", coupon: &coupon, want: domain.AssetBond},
		{name: "zero coupon is not a signal", security: "Acme", coupon: &zero, want: domain.AssetOther},
		{name: "percent in name", security: "Acme 5.5% 2031", want: domain.AssetBond},
		{name: "treasury", security: "US Treasury Note", want: domain.AssetBond},
		{name: "hedge fund", security: "Citadel Hedge Fund", want: domain.AssetAlternative},
		{name: "limited partnership", security: "Blackstone Partners L.P.", want: domain.AssetAlternative},
		{name: "etf", security: "iShares Core S&P 500 ETF", want: domain.AssetEquity},
		{name: "company suffix", security: "Apple Inc", want: domain.AssetEquity},
		{name: "ticker only", security: "Unnamed", ticker: "BRK.B", want: domain.AssetEquity},
		{name: "nothing recognisable", security: "Holding 17", ticker: "123", want: domain.AssetOther},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyByRules(tt.security, tt.ticker, tt.maturity, tt.coupon)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLayout_NativeClass(t *testing.T) {
	l := mustLayout(t, domain.BankCS)

	got, ok := l.nativeClass("", "  Equities & Similar ")
	assert.True(t, ok)
	assert.Equal(t, domain.AssetEquity, got)

	got, ok = l.nativeClass("AI, Commodities & Real Estate")
	assert.True(t, ok)
	assert.Equal(t, domain.AssetAlternative, got)

	_, ok = l.nativeClass("Crypto", "")
	assert.False(t, ok)
}

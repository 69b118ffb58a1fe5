package transform

import (
	"regexp"
	"strings"
	"time"

	"github.com/aristath/custodian/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	cashKeywords = []string{
		"cash", "money market", "money fund", "sweep", "deposit", "liquidity",
		"caja", "disponible", "mmf", "bdp",
	}
	bondKeywords = []string{
		"bond", "treasury", "t-bill", "bill ", "note ", "notes", "govt", "municipal",
		"debenture", "fixed income", "bono", "frn", "floating rate", "mtn",
	}
	alternativeKeywords = []string{
		"hedge", "private equity", "real estate", "commodit", "gold", "structured",
		" l.p.", " lp", "partners", "infrastructure", "venture", "alternative",
	}
	equityKeywords = []string{
		"etf", "ishares", "spdr", "vanguard", "common stock", "ordinary", "shares",
		" adr", " inc", " corp", " plc", " ltd", " s.a.", " ag", " nv", "acciones",
	}

	tickerPattern = regexp.MustCompile(`^[A-Z]{1,5}([./][A-Z])?$`)
	percentInName = regexp.MustCompile(`\d+(\.\d+)?\s*%`)
)

// classifyByRules assigns an asset type from row attributes when neither the
// bank's native class nor the lookup service decided it.
func classifyByRules(name, ticker string, maturity *time.Time, coupon *decimal.Decimal) domain.AssetType {
	lower := " " + strings.ToLower(strings.TrimSpace(name)) + " "

	switch {
	case hasAny(lower, cashKeywords):
		return domain.AssetCash
	case maturity != nil, coupon != nil && coupon.IsPositive(), percentInName.MatchString(lower), hasAny(lower, bondKeywords):
		return domain.AssetBond
	case hasAny(lower, alternativeKeywords):
		return domain.AssetAlternative
	case hasAny(lower, equityKeywords), tickerPattern.MatchString(strings.ToUpper(strings.TrimSpace(ticker))):
		return domain.AssetEquity
	}
	return domain.AssetOther
}

func hasAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

package openfigi

import (
	"strings"

	"github.com/aristath/custodian/internal/domain"
)

// ClassifySecurityType maps OpenFIGI metadata to an asset type.
// The first result carries the primary listing and decides the type.
func ClassifySecurityType(results []MappingResult) domain.AssetType {
	if len(results) == 0 {
		return domain.AssetOther
	}
	r := results[0]

	secType := strings.ToLower(r.SecurityType + " " + r.SecurityType2)
	switch {
	case strings.Contains(secType, "money market"):
		return domain.AssetCash
	case strings.Contains(secType, "etp"),
		strings.Contains(secType, "etf"),
		strings.Contains(secType, "mutual fund"),
		strings.Contains(secType, "open-end fund"),
		strings.Contains(secType, "closed-end fund"):
		return domain.AssetEquity
	case strings.Contains(secType, "reit"):
		return domain.AssetAlternative
	}

	switch strings.ToLower(r.MarketSector) {
	case "govt", "corp", "muni", "mtge", "pfd":
		return domain.AssetBond
	case "equity":
		return domain.AssetEquity
	case "comdty":
		return domain.AssetAlternative
	case "curncy", "m-mkt":
		return domain.AssetCash
	}

	return domain.AssetOther
}

package enrichment

import "github.com/aristath/custodian/internal/domain"

// HSBCConfig joins HSBC holdings with the average cost report.
// Average cost is per unit, so cost basis is average cost times quantity.
func HSBCConfig() Config {
	return Config{
		Bank:           domain.BankHSBC,
		SecuritiesKey:  []string{"ISIN"},
		ReferenceKey:   []string{"ISIN"},
		AccountColumn:  []string{"Account Number"},
		QuantityColumn: []string{"Quantity"},
		Fields: []Field{
			{Source: "Average Cost", Target: "Cost Basis", PerUnit: true},
		},
	}
}

// PershingConfig joins Pershing holdings with the unit cost export, which
// already carries the position's total cost. Unmatched positions fall back
// to market value so unrealized gain reads as zero rather than as the full value.
func PershingConfig() Config {
	return Config{
		Bank:           domain.BankPershing,
		SecuritiesKey:  []string{"Security ID", "CUSIP"},
		ReferenceKey:   []string{"Security ID", "CUSIP"},
		QuantityColumn: []string{"Quantity"},
		Fields: []Field{
			{Source: "Total Cost", Target: "Total Cost"},
		},
		Fallback: &Fallback{Target: "Total Cost", From: "Market Value"},
	}
}

// LombardConfig joins Lombard Odier positions with the cost price report.
func LombardConfig() Config {
	return Config{
		Bank:           domain.BankLombard,
		SecuritiesKey:  []string{"ISIN"},
		ReferenceKey:   []string{"ISIN"},
		QuantityColumn: []string{"Position"},
		Fields: []Field{
			{Source: "Cost Price", Target: "Cost Basis", PerUnit: true},
		},
	}
}

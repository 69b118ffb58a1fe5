package transform

import (
	"fmt"

	"github.com/aristath/custodian/internal/domain"
	"github.com/aristath/custodian/internal/tabular"
)

var (
	usDates       = []string{"01/02/2006", "1/2/2006", "2006-01-02", "2006-01-02 15:04:05", "01/02/06"}
	europeanDates = []string{"02.01.2006", "02/01/2006", "2006-01-02", "2006-01-02 15:04:05", "02.01.06"}
	chileanDates  = []string{"02-01-2006", "02/01/2006", "2006-01-02", "2006-01-02 15:04:05"}
)

// LayoutFor returns the mapping table of bank. The switch is exhaustive over
// domain.AllBanks.
func LayoutFor(bank domain.BankCode) (Layout, error) {
	switch bank {
	case domain.BankJPM:
		return jpmLayout(), nil
	case domain.BankMS:
		return msLayout(), nil
	case domain.BankCS:
		return csLayout(), nil
	case domain.BankCSC:
		return cscLayout(), nil
	case domain.BankJB:
		return jbLayout(), nil
	case domain.BankValley:
		return valleyLayout(), nil
	case domain.BankPershing:
		return pershingLayout(), nil
	case domain.BankHSBC:
		return hsbcLayout(), nil
	case domain.BankLombard:
		return lombardLayout(), nil
	case domain.BankSafra:
		return safraLayout(), nil
	case domain.BankIDB:
		return idbLayout(), nil
	case domain.BankBanchile:
		return banchileLayout(), nil
	}
	return Layout{}, fmt.Errorf("no transform layout for bank %q", bank)
}

var (
	securitiesRequired       = []Field{FieldName, FieldMarketValue}
	mappedSecuritiesRequired = []Field{FieldAccount, FieldName, FieldMarketValue}
	transactionsRequired     = []Field{FieldDate, FieldType, FieldAmount}
	mappedTxRequired         = []Field{FieldAccount, FieldDate, FieldType, FieldAmount}
)

func jpmLayout() Layout {
	return Layout{
		Bank: domain.BankJPM,
		Securities: SheetLayout{
			Required: mappedSecuritiesRequired,
			Columns: map[Field][]string{
				FieldAccount:     {"Account Number"},
				FieldAssetClass:  {"Asset Class"},
				FieldSubClass:    {"Asset Strategy Detail", "Asset Strategy"},
				FieldIdentifier:  {"CUSIP", "Security ID"},
				FieldTicker:      {"Ticker"},
				FieldName:        {"Description"},
				FieldQuantity:    {"Quantity"},
				FieldPrice:       {"Price"},
				FieldMarketValue: {"Value"},
				FieldCostBasis:   {"Cost"},
				FieldIncome:      {"Est. Annual Income"},
				FieldMaturity:    {"Maturity Date"},
				FieldCoupon:      {"Coupon Rate", "Coupon Rate (%)"},
				FieldCurrency:    {"Local CCY"},
			},
		},
		Transactions: SheetLayout{
			Required: mappedTxRequired,
			Columns: map[Field][]string{
				FieldAccount:    {"Account Number"},
				FieldDate:       {"Trade Date", "Settlement Date"},
				FieldType:       {"Type"},
				FieldIdentifier: {"CUSIP", "Cusip", "Security ID"},
				FieldTicker:     {"Ticker"},
				FieldQuantity:   {"Quantity"},
				FieldPrice:      {"Price USD"},
				FieldAmount:     {"Amount USD"},
			},
		},
		DateLayouts: usDates,
		AssetClasses: map[string]domain.AssetType{
			"equity":                      domain.AssetEquity,
			"alternative assets":          domain.AssetAlternative,
			"cash":                        domain.AssetCash,
			"unclassified":                domain.AssetCash,
			"non-usd cash":                domain.AssetCash,
			"taxable core":                domain.AssetBond,
			"short term":                  domain.AssetBond,
			"extended credit/high yield":  domain.AssetBond,
			"investment grade":            domain.AssetBond,
			"emerging market":             domain.AssetBond,
			"inflation":                   domain.AssetBond,
			"us large cap":                domain.AssetEquity,
			"us mid/small cap":            domain.AssetEquity,
			"european large cap":          domain.AssetEquity,
			"global equity":               domain.AssetEquity,
			"hedge funds":                 domain.AssetAlternative,
			"private investments":         domain.AssetAlternative,
			"real estate":                 domain.AssetAlternative,
			"commodities":                 domain.AssetAlternative,
			"cash & short term cash":      domain.AssetCash,
			"fixed income & cash":         domain.AssetBond,
			"global fixed income":         domain.AssetBond,
			"us fixed income":             domain.AssetBond,
			"non-us fixed income":         domain.AssetBond,
			"hedge funds & private funds": domain.AssetAlternative,
		},
	}
}

func msLayout() Layout {
	return Layout{
		Bank: domain.BankMS,
		Securities: SheetLayout{
			Required: mappedSecuritiesRequired,
			Columns: map[Field][]string{
				FieldAccount:     {"Account Number"},
				FieldAssetClass:  {"Security Type"},
				FieldIdentifier:  {"CUSIP"},
				FieldTicker:      {"Symbol"},
				FieldName:        {"Description"},
				FieldQuantity:    {"Quantity"},
				FieldPrice:       {"Price"},
				FieldMarketValue: {"Market Value"},
				FieldCostBasis:   {"Total Cost"},
				FieldIncome:      {"Est. Annual Income"},
				FieldMaturity:    {"Maturity Date"},
				FieldCoupon:      {"Coupon Rate"},
			},
		},
		Transactions: SheetLayout{
			Required: mappedTxRequired,
			Columns: map[Field][]string{
				FieldAccount:    {"Account Number"},
				FieldDate:       {"Activity Date"},
				FieldType:       {"Activity"},
				FieldIdentifier: {"CUSIP"},
				FieldTicker:     {"Symbol"},
				FieldQuantity:   {"Quantity"},
				FieldPrice:      {"Price"},
				FieldAmount:     {"Amount"},
			},
		},
		DateLayouts: usDates,
		AssetClasses: map[string]domain.AssetType{
			"common stock":             domain.AssetEquity,
			"equities":                 domain.AssetEquity,
			"etf":                      domain.AssetEquity,
			"exchange traded funds":    domain.AssetEquity,
			"mutual funds":             domain.AssetEquity,
			"corporate fixed income":   domain.AssetBond,
			"government securities":    domain.AssetBond,
			"municipal bonds":          domain.AssetBond,
			"certificates of deposit":  domain.AssetBond,
			"cash, mmf and bdp":        domain.AssetCash,
			"alternatives":             domain.AssetAlternative,
			"structured investments":   domain.AssetAlternative,
			"preferred stock":          domain.AssetEquity,
			"closed end funds":         domain.AssetEquity,
			"unit investment trusts":   domain.AssetEquity,
			"fixed income & preferred": domain.AssetBond,
		},
	}
}

func csLayout() Layout {
	return Layout{
		Bank: domain.BankCS,
		Securities: SheetLayout{
			Required: securitiesRequired,
			Columns: map[Field][]string{
				FieldAssetClass:  {"Asset Category"},
				FieldSubClass:    {"Asset Subcategory"},
				FieldIdentifier:  {"ISIN"},
				FieldName:        {"Description"},
				FieldQuantity:    {"Nominal/Number"},
				FieldPrice:       {"Price"},
				FieldMarketValue: {"Market Value"},
				FieldCostBasis:   {"Cost Value"},
				FieldCurrency:    {"Currency"},
				FieldMaturity:    {"Maturity"},
				FieldCoupon:      {"Coupon"},
			},
		},
		Transactions: SheetLayout{
			Required: transactionsRequired,
			Columns: map[Field][]string{
				FieldDate:       {"Booking Date"},
				FieldType:       {"Text"},
				FieldIdentifier: {"ISIN"},
				FieldQuantity:   {"Quantity"},
				FieldPrice:      {"Price"},
				FieldDebit:      {"Debit"},
				FieldCredit:     {"Credit"},
				FieldCurrency:   {"Currency"},
			},
		},
		DateLayouts: europeanDates,
		AssetClasses: map[string]domain.AssetType{
			"accounts":                      domain.AssetCash,
			"money market papers / usd":     domain.AssetBond,
			"liquidity & similar":           domain.AssetCash,
			"fixed income & similar":        domain.AssetBond,
			"equities & similar":            domain.AssetEquity,
			"ai, commodities & real estate": domain.AssetAlternative,
			"mixed & other investments":     domain.AssetBond,
		},
	}
}

func cscLayout() Layout {
	return Layout{
		Bank: domain.BankCSC,
		Securities: SheetLayout{
			Required: securitiesRequired,
			Columns: map[Field][]string{
				FieldAssetClass:  {"Asset Type"},
				FieldIdentifier:  {"CUSIP"},
				FieldTicker:      {"Symbol"},
				FieldName:        {"Description"},
				FieldQuantity:    {"Quantity"},
				FieldPrice:       {"Price"},
				FieldMarketValue: {"Market Value"},
				FieldCostBasis:   {"Cost Basis"},
			},
		},
		Transactions: SheetLayout{
			Required: transactionsRequired,
			Columns: map[Field][]string{
				FieldDate:     {"Date"},
				FieldType:     {"Action"},
				FieldTicker:   {"Symbol"},
				FieldQuantity: {"Quantity"},
				FieldPrice:    {"Price"},
				FieldAmount:   {"Amount"},
			},
		},
		DateLayouts: usDates,
		AssetClasses: map[string]domain.AssetType{
			"equity":                  domain.AssetEquity,
			"etfs & closed end funds": domain.AssetEquity,
			"mutual funds":            domain.AssetEquity,
			"fixed income":            domain.AssetBond,
			"cash and money market":   domain.AssetCash,
			"cash & cash investments": domain.AssetCash,
		},
	}
}

func jbLayout() Layout {
	return Layout{
		Bank: domain.BankJB,
		Securities: SheetLayout{
			Required: securitiesRequired,
			Columns: map[Field][]string{
				FieldAssetClass:  {"Asset Class"},
				FieldIdentifier:  {"ISIN"},
				FieldName:        {"Instrument Name"},
				FieldQuantity:    {"Quantity"},
				FieldPrice:       {"Price"},
				FieldMarketValue: {"Market Value"},
				FieldCostBasis:   {"Net Cost Value"},
				FieldCurrency:    {"Currency"},
				FieldMaturity:    {"Maturity Date"},
				FieldCoupon:      {"Coupon"},
			},
		},
		Transactions: SheetLayout{
			Required: transactionsRequired,
			Columns: map[Field][]string{
				FieldDate:       {"Transaction Date"},
				FieldType:       {"Operation Nature"},
				FieldIdentifier: {"ISIN"},
				FieldQuantity:   {"Quantity"},
				FieldPrice:      {"Price"},
				FieldAmount:     {"Net Amount"},
			},
		},
		DateLayouts: europeanDates,
		AssetClasses: map[string]domain.AssetType{
			"cash and short-term investments":     domain.AssetCash,
			"bonds and similar positions":         domain.AssetBond,
			"equities and similar positions":      domain.AssetEquity,
			"alternative investments":             domain.AssetAlternative,
			"alternative instruments":             domain.AssetAlternative,
			"cash":                                domain.AssetCash,
			"other funds and investment products": domain.AssetAlternative,
		},
	}
}

// valleyLayout reads European formatted numbers. Valley exports carry no
// asset class; identifiers are classified through the lookup service.
func valleyLayout() Layout {
	return Layout{
		Bank: domain.BankValley,
		Securities: SheetLayout{
			Required: []Field{FieldIdentifier, FieldMarketValue},
			Columns: map[Field][]string{
				FieldIdentifier:  {"CUSIP"},
				FieldName:        {"Description"},
				FieldQuantity:    {"Quantity"},
				FieldPrice:       {"Mkt Price Ccy", "Price"},
				FieldMarketValue: {"Market Value"},
				FieldCostBasis:   {"Adj Cost Basis"},
				FieldMaturity:    {"Maturity Date"},
				FieldCoupon:      {"Coupon Rate"},
			},
		},
		Transactions: SheetLayout{
			Required: transactionsRequired,
			Columns: map[Field][]string{
				FieldDate:       {"Post Date"},
				FieldType:       {"Transaction Type"},
				FieldIdentifier: {"CUSIP"},
				FieldQuantity:   {"Cantidad", "Quantity"},
				FieldPrice:      {"Price"},
				FieldDebit:      {"Debit"},
				FieldCredit:     {"Credit"},
			},
		},
		NumberFormat: tabular.NumberFormatEuropean,
		DateLayouts:  europeanDates,
		UseLookup:    true,
	}
}

func pershingLayout() Layout {
	return Layout{
		Bank: domain.BankPershing,
		Securities: SheetLayout{
			Required: securitiesRequired,
			Columns: map[Field][]string{
				FieldAssetClass:  {"Asset Classification"},
				FieldSubClass:    {"Sub-Asset Classification"},
				FieldIdentifier:  {"CUSIP", "Security ID"},
				FieldName:        {"Description"},
				FieldQuantity:    {"Quantity"},
				FieldPrice:       {"Price"},
				FieldMarketValue: {"Market Value"},
				FieldCostBasis:   {"Total Cost"},
				FieldMaturity:    {"Maturity Date"},
				FieldCoupon:      {"Coupon Rate"},
				FieldIncome:      {"Estimated Annual Income"},
			},
		},
		Transactions: SheetLayout{
			Required: transactionsRequired,
			Columns: map[Field][]string{
				FieldDate:       {"Process Date"},
				FieldType:       {"Transaction Type"},
				FieldIdentifier: {"Security ID"},
				FieldQuantity:   {"Quantity"},
				FieldPrice:      {"Price"},
				FieldAmount:     {"Net Amount"},
			},
		},
		DateLayouts: usDates,
		AssetClasses: map[string]domain.AssetType{
			"fixed income":                        domain.AssetBond,
			"equity":                              domain.AssetEquity,
			"cash, money funds and bank deposits": domain.AssetCash,
			"investment funds":                    domain.AssetEquity,
			"alternative investments":             domain.AssetAlternative,
		},
	}
}

func hsbcLayout() Layout {
	return Layout{
		Bank: domain.BankHSBC,
		Securities: SheetLayout{
			Required: mappedSecuritiesRequired,
			Columns: map[Field][]string{
				FieldAccount:     {"Account Number"},
				FieldAssetClass:  {"Asset Class"},
				FieldIdentifier:  {"ISIN"},
				FieldName:        {"Security Name"},
				FieldQuantity:    {"Quantity"},
				FieldPrice:       {"Price"},
				FieldMarketValue: {"Market Value (USD)"},
				FieldCostBasis:   {"Cost Basis"},
				FieldCurrency:    {"Currency"},
				FieldMaturity:    {"Maturity Date"},
				FieldCoupon:      {"Coupon"},
			},
		},
		Transactions: SheetLayout{
			Required: mappedTxRequired,
			Columns: map[Field][]string{
				FieldAccount:    {"Account Number"},
				FieldDate:       {"Trade Date"},
				FieldType:       {"Transaction Type"},
				FieldIdentifier: {"ISIN"},
				FieldQuantity:   {"Quantity"},
				FieldPrice:      {"Price"},
				FieldAmount:     {"Amount (USD)"},
			},
		},
		DateLayouts: europeanDates,
		AssetClasses: map[string]domain.AssetType{
			"fixed income": domain.AssetBond,
			"equity":       domain.AssetEquity,
			"equities":     domain.AssetEquity,
			"other":        domain.AssetEquity,
			"alternatives": domain.AssetAlternative,
			"cash":         domain.AssetCash,
			"money market": domain.AssetCash,
		},
	}
}

func lombardLayout() Layout {
	return Layout{
		Bank: domain.BankLombard,
		Securities: SheetLayout{
			Required: securitiesRequired,
			Columns: map[Field][]string{
				FieldAssetClass:  {"Asset Class"},
				FieldIdentifier:  {"ISIN"},
				FieldName:        {"Description"},
				FieldQuantity:    {"Position"},
				FieldPrice:       {"Price"},
				FieldMarketValue: {"Valuation (USD)"},
				FieldCostBasis:   {"Cost Basis"},
				FieldCurrency:    {"Currency"},
				FieldMaturity:    {"Maturity"},
				FieldCoupon:      {"Coupon"},
			},
		},
		Transactions: SheetLayout{
			Required: transactionsRequired,
			Columns: map[Field][]string{
				FieldDate:       {"Accounting date"},
				FieldType:       {"Transaction"},
				FieldIdentifier: {"ISIN"},
				FieldQuantity:   {"Quantity"},
				FieldPrice:      {"Price"},
				FieldAmount:     {"Net amount"},
			},
		},
		DateLayouts: europeanDates,
		AssetClasses: map[string]domain.AssetType{
			"cash":                       domain.AssetCash,
			"money market":               domain.AssetCash,
			"fixed income":               domain.AssetBond,
			"equities":                   domain.AssetEquity,
			"structured products":        domain.AssetAlternative,
			"hedge funds":                domain.AssetAlternative,
			"gold and other commodities": domain.AssetAlternative,
			"other investments":          domain.AssetAlternative,
		},
	}
}

func safraLayout() Layout {
	return Layout{
		Bank: domain.BankSafra,
		Securities: SheetLayout{
			Required: mappedSecuritiesRequired,
			Columns: map[Field][]string{
				FieldAccount:     {"Account Number"},
				FieldAssetClass:  {"Category"},
				FieldIdentifier:  {"CUSIP"},
				FieldName:        {"Description"},
				FieldQuantity:    {"Quantity"},
				FieldPrice:       {"Price"},
				FieldMarketValue: {"Market Value"},
				FieldCostBasis:   {"Cost"},
				FieldCoupon:      {"Rate"},
				FieldMaturity:    {"Maturity"},
			},
		},
		Transactions: SheetLayout{
			Required: mappedTxRequired,
			Columns: map[Field][]string{
				FieldAccount:    {"Account Number"},
				FieldDate:       {"Date"},
				FieldType:       {"Description"},
				FieldIdentifier: {"CUSIP"},
				FieldQuantity:   {"Quantity"},
				FieldPrice:      {"Price"},
				FieldDebit:      {"Debit"},
				FieldCredit:     {"Credit"},
			},
		},
		DateLayouts: usDates,
		AssetClasses: map[string]domain.AssetType{
			"equities":                domain.AssetEquity,
			"equity":                  domain.AssetEquity,
			"mutual funds":            domain.AssetEquity,
			"fixed income":            domain.AssetBond,
			"cash":                    domain.AssetCash,
			"money market":            domain.AssetCash,
			"alternative investments": domain.AssetAlternative,
		},
	}
}

// idbLayout has no asset class column; identifiers go through the lookup service.
func idbLayout() Layout {
	return Layout{
		Bank: domain.BankIDB,
		Securities: SheetLayout{
			Required: securitiesRequired,
			Columns: map[Field][]string{
				FieldIdentifier:  {"CUSIP"},
				FieldName:        {"Description"},
				FieldQuantity:    {"Quantity"},
				FieldPrice:       {"Price"},
				FieldMarketValue: {"Market Value"},
				FieldCostBasis:   {"Cost"},
				FieldCoupon:      {"Coupon"},
				FieldMaturity:    {"Maturity"},
			},
		},
		Transactions: SheetLayout{
			Required: transactionsRequired,
			Columns: map[Field][]string{
				FieldDate:       {"Date"},
				FieldType:       {"Description"},
				FieldIdentifier: {"CUSIP"},
				FieldQuantity:   {"Quantity"},
				FieldPrice:      {"Price"},
				FieldAmount:     {"Amount"},
			},
		},
		DateLayouts: usDates,
		UseLookup:   true,
	}
}

// banchileLayout reports in local currency with Chilean number formatting.
// Securities workbooks hold one sheet per product family.
func banchileLayout() Layout {
	return Layout{
		Bank: domain.BankBanchile,
		Securities: SheetLayout{
			AllSheets: true,
			Required:  mappedSecuritiesRequired,
			Columns: map[Field][]string{
				FieldAccount:     {"Cuenta"},
				FieldAssetClass:  {"Producto"},
				FieldSubClass:    {"Instrumento"},
				FieldTicker:      {"Nemotecnico"},
				FieldName:        {"Instrumento", "Nemotecnico"},
				FieldQuantity:    {"Nominales Final"},
				FieldPrice:       {"Precio"},
				FieldMarketValue: {"Monto Final (MO)"},
				FieldCostBasis:   {"Costo"},
				FieldCurrency:    {"Moneda Origen (MO)"},
			},
		},
		Transactions: SheetLayout{
			Required: mappedTxRequired,
			Columns: map[Field][]string{
				FieldAccount:  {"Cuenta"},
				FieldDate:     {"Fecha"},
				FieldType:     {"Movimiento"},
				FieldTicker:   {"Instrumento"},
				FieldQuantity: {"Cantidad"},
				FieldPrice:    {"Precio"},
				FieldAmount:   {"Monto (MO)"},
				FieldCurrency: {"Moneda Origen (MO)"},
			},
		},
		NumberFormat:    tabular.NumberFormatEuropean,
		DateLayouts:     chileanDates,
		Currency:        "CLP",
		ConvertCurrency: true,
		AssetClasses: map[string]domain.AssetType{
			"acciones":        domain.AssetEquity,
			"caja extranjera": domain.AssetCash,
			"caja local":      domain.AssetCash,
			"cfibchdech":      domain.AssetBond,
			"cfibchblen":      domain.AssetBond,
			"cfibchdegb":      domain.AssetBond,
			"deuda_usd":       domain.AssetBond,
			"cfibchmpgb":      domain.AssetEquity,
			"bchcal1a":        domain.AssetEquity,
			"cfimciti":        domain.AssetEquity,
			"cfibgresta":      domain.AssetAlternative,
			"crecimient":      domain.AssetAlternative,
			"cfibchinpc":      domain.AssetAlternative,
			"fidertares":      domain.AssetAlternative,
			"cfiinf1a-e":      domain.AssetAlternative,
			"estrategic":      domain.AssetAlternative,
			"mm_cap_emp":      domain.AssetCash,
			"disponible":      domain.AssetCash,
			"m_c_fin_p1":      domain.AssetCash,
			"corpusfund":      domain.AssetCash,
			"renta fija":      domain.AssetBond,
			"renta variable":  domain.AssetEquity,
			"fondos mutuos":   domain.AssetEquity,
		},
	}
}

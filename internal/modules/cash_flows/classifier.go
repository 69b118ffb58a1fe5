// Package cash_flows classifies native bank transaction types and stores the
// standardized transactions that feed Modified Dietz external flows.
package cash_flows

import (
	"regexp"
	"strings"

	"github.com/aristath/custodian/internal/domain"
	"github.com/shopspring/decimal"
)

// Rules lists a bank's native transaction types by role. Matching is
// case-insensitive on the whole (extracted) type.
type Rules struct {
	Inflows  []string // external deposits
	Outflows []string // external withdrawals
	Trading  []string // buys and sells
	Excluded []string // known types that must never count as flows
}

// bankRules holds the native vocabulary of each custodian.
var bankRules = map[domain.BankCode]Rules{
	domain.BankCS: {
		Inflows:  []string{"Cross Border Credit Transfer", "Transfer", "Fiduciary call deposit", "Fiduciary call deposit - increase", "Wire Transfer In"},
		Outflows: []string{"Expenses for money transfer", "Cross Border Credit Transfer", "Fiduciary call deposit - reduction", "Fiduciary call dep. - liquidation", "Wire Transfer Out"},
		Trading:  []string{"Securities purchase", "Securities sale", "Redemption", "Redemption of fund units", "Issue of fund units"},
		Excluded: []string{"Stock dividend/spin-off", "Foreign exchange spot transaction", "Equalisation payment"},
	},
	domain.BankCSC: {
		Inflows:  []string{"Misc Cash Entry", "Schwab ATM Rebate"},
		Outflows: []string{"Journal", "Wire Sent", "Visa Purchase", "ATM Withdrawal"},
		Trading:  []string{"Buy", "Sell", "Full Redemption Adj"},
	},
	domain.BankHSBC: {
		Inflows:  []string{"Wire Transfer Credit", "Deposit"},
		Outflows: []string{"Wire Transfer Debit", "Withdrawal", "Wire Out"},
		Trading:  []string{"Security Redeemed", "Purchase", "Sale"},
	},
	domain.BankJB: {
		Outflows: []string{"Withdrawal", "Swift payment (fax, letter)"},
		Trading:  []string{"Buy", "Sell"},
	},
	domain.BankJPM: {
		Inflows:  []string{"Misc Debit / Credit", "ACH Deposit", "Misc. Receipt"},
		Outflows: []string{"Misc. Disbursement", "OUTGOING"},
		Trading:  []string{"Purchase", "Sale", "Redemption", "Sales of Securities"},
		Excluded: []string{"Cost Adjustment", "UNKNOWN", "Accrued Int Pd", "Accrued Int Rcv"},
	},
	domain.BankMS: {
		Inflows:  []string{"Auto Bank Product Deposit", "Bank Product Deposit"},
		Outflows: []string{"Debit Card", "Funds Transferred", "Bank Product Withdrawal"},
		Trading:  []string{"Redemption", "Bought", "Sold"},
		Excluded: []string{"Dividend Reinvestment", "Exchange Received In", "Exchange Deliver Out", "Return of Principal"},
	},
	domain.BankValley: {
		Inflows:  []string{"WIRE IN"},
		Outflows: []string{"WIRE OUT", "WIRE OUT INTL", "ACH DEBIT", "ELECTRONIFIED CHECK"},
		Excluded: []string{"SECURITIES DEBIT"},
	},
	domain.BankIDB: {
		Inflows:  []string{"Wire Transfer Credit"},
		Outflows: []string{"BILL PMT"},
		Trading:  []string{"Purchase", "Sale"},
	},
	domain.BankLombard: {
		Inflows:  []string{"Deposit", "Cross Border Credit Transfer"},
		Outflows: []string{"Withdrawal"},
		Trading:  []string{"Purchase", "Sale"},
		Excluded: []string{"Other"},
	},
	domain.BankSafra: {
		Excluded: []string{"unknown"},
	},
	domain.BankPershing: {
		Trading:  []string{"Buy", "Purchase", "Sell", "Security Redeemed"},
		Excluded: []string{"Activity Within Your Acct"},
	},
	domain.BankBanchile: {
		Inflows:  []string{"Aporte"},
		Outflows: []string{"Rescate"},
		Excluded: []string{"--"},
	},
}

// Fallback vocabulary shared by all banks.
var (
	genericInflows  = []string{"deposit", "bank deposit", "contribution", "wire transfer in", "wire in"}
	genericOutflows = []string{"withdrawal", "distribution", "wire transfer out", "wire out"}
	genericExcluded = []string{"cost adjustment", "accrued int pd", "subscription"}

	feeKeywords    = []string{"fee", "tax", "commission", "charge", "expense", "custody", "comision", "impuesto"}
	incomeKeywords = []string{"dividend", "interest", "coupon", "income", "div ", "dividendo", "interes", "cupon"}
	buyKeywords    = []string{"purchase", "buy", "bought", "compra", "subscription"}
	sellKeywords   = []string{"sale", "sell", "sold", "redemption", "redeemed", "maturity", "venta", "liquidation"}
)

// Native type prefixes for banks that append trade details to the type.
var (
	idbPrefix      = regexp.MustCompile(`(?i)^(Annual Service Fee - Hold Mail|Annual Maintenance Fee|Annual Management Fee|Interest Payment|Periodic Fee|Wire Transfer Credit|BILL PMT|Purchase|Sale)\b`)
	pershingPrefix = regexp.MustCompile(`(?i)^(Buy|Purchase|Sell)\s+[\d,.]+\s+(Parvalue|Shares)\b`)
)

// ExtractNativeType strips trade details some banks embed in the type column.
// CS appends details after a newline; IDB and Pershing append quantities and names.
func ExtractNativeType(bank domain.BankCode, raw string) string {
	raw = strings.TrimSpace(raw)
	switch bank {
	case domain.BankCS:
		if i := strings.IndexAny(raw, "\r\n"); i >= 0 {
			return strings.TrimSpace(raw[:i])
		}
	case domain.BankIDB:
		if m := idbPrefix.FindStringSubmatch(raw); m != nil {
			return m[1]
		}
	case domain.BankPershing:
		if m := pershingPrefix.FindStringSubmatch(raw); m != nil {
			return m[1]
		}
	}
	return raw
}

// Classify maps a bank's native transaction type to the canonical enum.
// amount is the row's signed amount and breaks ties for types that a bank
// uses in both directions. Types no rule recognises map to TxOther.
func Classify(bank domain.BankCode, native string, amount decimal.Decimal) domain.TransactionType {
	clean := ExtractNativeType(bank, native)
	if clean == "" {
		return domain.TxOther
	}

	rules := bankRules[bank]
	in := contains(rules.Inflows, clean)
	out := contains(rules.Outflows, clean)
	switch {
	case in && out:
		if amount.Sign() < 0 {
			return domain.TxWithdrawal
		}
		return domain.TxDeposit
	case in:
		return domain.TxDeposit
	case out:
		return domain.TxWithdrawal
	}

	if contains(rules.Excluded, clean) {
		return domain.TxOther
	}
	if contains(rules.Trading, clean) {
		return tradeDirection(clean, amount)
	}

	switch {
	case contains(genericInflows, clean):
		return domain.TxDeposit
	case contains(genericOutflows, clean):
		return domain.TxWithdrawal
	case contains(genericExcluded, clean):
		return domain.TxOther
	}

	lower := strings.ToLower(clean)
	switch {
	case hasKeyword(lower, feeKeywords):
		return domain.TxFee
	case hasKeyword(lower, incomeKeywords):
		return domain.TxIncome
	case hasKeyword(lower, buyKeywords):
		return domain.TxBuy
	case hasKeyword(lower, sellKeywords):
		return domain.TxSell
	}

	return domain.TxOther
}

// tradeDirection resolves a trading type to buy or sell, using the amount's
// sign when the wording does not say.
func tradeDirection(clean string, amount decimal.Decimal) domain.TransactionType {
	lower := strings.ToLower(clean)
	switch {
	case hasKeyword(lower, sellKeywords):
		return domain.TxSell
	case hasKeyword(lower, buyKeywords):
		return domain.TxBuy
	case lower == "issue of fund units":
		return domain.TxBuy
	case amount.Sign() > 0:
		return domain.TxSell
	}
	return domain.TxBuy
}

// NormalizeAmount applies the canonical sign convention for t:
// deposits, sells and income are inflows, the rest outflows.
// TxOther keeps the bank's sign.
func NormalizeAmount(t domain.TransactionType, amount decimal.Decimal) decimal.Decimal {
	switch t {
	case domain.TxDeposit, domain.TxSell, domain.TxIncome:
		return amount.Abs()
	case domain.TxWithdrawal, domain.TxBuy, domain.TxFee:
		return amount.Abs().Neg()
	}
	return amount
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}

func hasKeyword(lower string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

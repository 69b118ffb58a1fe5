package combination

import "github.com/aristath/custodian/internal/domain"

// ConfigFor returns the combine settings of a bank, or false when the bank
// delivers a single file per kind and needs no combination.
func ConfigFor(bank domain.BankCode) (Config, bool) {
	switch bank {
	case domain.BankCS:
		// Securities exports carry a title block of varying height
		return Config{
			Bank:                  bank,
			IdentifierColumns:     []string{"ISIN", "Description"},
			SecuritiesHeaderProbe: []string{"Nominal/Number", "ISIN"},
		}, true
	case domain.BankCSC:
		return Config{
			Bank:              bank,
			IdentifierColumns: []string{"Symbol", "Description"},
		}, true
	case domain.BankJB:
		return Config{
			Bank:              bank,
			IdentifierColumns: []string{"ISIN", "Instrument Name"},
		}, true
	case domain.BankValley:
		return Config{
			Bank:                  bank,
			IdentifierColumns:     []string{"CUSIP", "Description"},
			TransactionsHeaderRow: 1,
		}, true
	case domain.BankIDB:
		return Config{
			Bank:              bank,
			IdentifierColumns: []string{"CUSIP", "Description"},
		}, true
	case domain.BankPershing:
		return Config{
			Bank:              bank,
			IdentifierColumns: []string{"Security ID", "CUSIP"},
		}, true
	case domain.BankLombard:
		return Config{
			Bank:              bank,
			IdentifierColumns: []string{"ISIN", "Description"},
		}, true
	}
	return Config{}, false
}

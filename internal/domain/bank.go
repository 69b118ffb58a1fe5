package domain

import (
	"fmt"
	"strings"
)

// BankCode identifies one of the supported custodian banks.
// The set is closed: every value used at runtime must come from AllBanks.
type BankCode string

const (
	BankJPM      BankCode = "JPM"      // J.P. Morgan
	BankMS       BankCode = "MS"       // Morgan Stanley
	BankCS       BankCode = "CS"       // Credit Suisse
	BankCSC      BankCode = "CSC"      // Charles Schwab
	BankJB       BankCode = "JB"       // Julius Baer
	BankValley   BankCode = "Valley"   // Valley Bank
	BankPershing BankCode = "Pershing" // Pershing (BNY)
	BankHSBC     BankCode = "HSBC"     // HSBC
	BankLombard  BankCode = "LO"       // Lombard Odier
	BankSafra    BankCode = "Safra"    // Safra
	BankIDB      BankCode = "IDB"      // Israel Discount Bank
	BankBanchile BankCode = "Banchile" // Banchile Inversiones
)

// AllBanks returns every supported bank code in a stable order.
func AllBanks() []BankCode {
	return []BankCode{
		BankJPM,
		BankMS,
		BankCS,
		BankCSC,
		BankJB,
		BankValley,
		BankPershing,
		BankHSBC,
		BankLombard,
		BankSafra,
		BankIDB,
		BankBanchile,
	}
}

// IsValid reports whether the code belongs to the supported set.
func (b BankCode) IsValid() bool {
	for _, code := range AllBanks() {
		if code == b {
			return true
		}
	}
	return false
}

// String returns the bank code as used in filenames and output columns.
func (b BankCode) String() string {
	return string(b)
}

// DisplayName returns a human readable bank name.
func (b BankCode) DisplayName() string {
	switch b {
	case BankJPM:
		return "J.P. Morgan"
	case BankMS:
		return "Morgan Stanley"
	case BankCS:
		return "Credit Suisse"
	case BankCSC:
		return "Charles Schwab"
	case BankJB:
		return "Julius Baer"
	case BankValley:
		return "Valley Bank"
	case BankPershing:
		return "Pershing"
	case BankHSBC:
		return "HSBC"
	case BankLombard:
		return "Lombard Odier"
	case BankSafra:
		return "Safra"
	case BankIDB:
		return "Israel Discount Bank"
	case BankBanchile:
		return "Banchile"
	default:
		return string(b)
	}
}

// ParseBankCode resolves a bank code case-insensitively.
func ParseBankCode(s string) (BankCode, error) {
	s = strings.TrimSpace(s)
	for _, code := range AllBanks() {
		if strings.EqualFold(string(code), s) {
			return code, nil
		}
	}
	return "", fmt.Errorf("unknown bank code: %q", s)
}

package clientdata

import "time"

// TTL constants for different data types.
// These are added to time.Now() when storing to calculate expires_at.
const (
	// CUSIP/ISIN to security type mappings rarely change
	TTLOpenFIGI = 30 * 24 * time.Hour

	// Rates for past dates are fixed once published
	TTLHistoricalRate = 365 * 24 * time.Hour

	// Today's rate can still be revised
	TTLExchangeRate = 6 * time.Hour
)

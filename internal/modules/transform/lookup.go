package transform

import (
	"context"
	"time"

	"github.com/aristath/custodian/internal/clients/openfigi"
	"github.com/aristath/custodian/internal/domain"
	"github.com/shopspring/decimal"
)

// AssetLookup classifies identifiers through an external reference service.
// Identifiers the service does not know are absent from the result. On error
// the result may still hold the identifiers that were resolved.
type AssetLookup interface {
	AssetTypes(ctx context.Context, ids []string) (map[string]domain.AssetType, error)
}

// RateProvider supplies the same-day conversion context: USD per unit of a currency.
type RateProvider interface {
	USDPerUnit(ctx context.Context, currency string, date time.Time) (decimal.Decimal, error)
}

// FIGILookup adapts the OpenFIGI client to AssetLookup.
type FIGILookup struct {
	client *openfigi.Client
}

// NewFIGILookup creates a lookup backed by client.
func NewFIGILookup(client *openfigi.Client) *FIGILookup {
	return &FIGILookup{client: client}
}

// AssetTypes maps each identifier OpenFIGI knows to an asset type.
func (l *FIGILookup) AssetTypes(ctx context.Context, ids []string) (map[string]domain.AssetType, error) {
	results, err := l.client.LookupCUSIPs(ctx, ids)
	out := make(map[string]domain.AssetType, len(results))
	for id, r := range results {
		if len(r) > 0 {
			out[id] = openfigi.ClassifySecurityType(r)
		}
	}
	return out, err
}

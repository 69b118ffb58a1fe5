package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ClientFilterAll selects every client when aggregating.
const ClientFilterAll = "ALL"

// AllocationEntry is the value held in one bucket and its share of the total.
type AllocationEntry struct {
	Value      decimal.Decimal `json:"value" msgpack:"value"`
	Percentage float64         `json:"percentage" msgpack:"percentage"`
}

// Allocation groups market value by a label (asset type, bank, custody).
type Allocation map[string]AllocationEntry

// MaturityBucket aggregates bond face value maturing in one calendar year.
type MaturityBucket struct {
	Year        int             `json:"year" msgpack:"year"`
	Count       int             `json:"count" msgpack:"count"`
	FaceValue   decimal.Decimal `json:"face_value" msgpack:"face_value"`
	MarketValue decimal.Decimal `json:"market_value" msgpack:"market_value"`
}

// Mover is a holding whose value changed since the previous snapshot.
type Mover struct {
	Identifier    string          `json:"identifier"`
	Name          string          `json:"name"`
	AssetType     AssetType       `json:"asset_type"`
	DollarChange  decimal.Decimal `json:"dollar_change"`
	PercentChange float64         `json:"percent_change"`
	CurrentValue  decimal.Decimal `json:"current_value"`
	PreviousValue decimal.Decimal `json:"previous_value"`
}

// TopMovers holds the largest gainers and losers by dollar change.
type TopMovers struct {
	Gainers []Mover `json:"gainers"`
	Losers  []Mover `json:"losers"`
}

// PortfolioMetrics is the computed metrics map stored with each snapshot.
type PortfolioMetrics struct {
	TotalValue                decimal.Decimal  `json:"total_value"`
	TotalCostBasis            decimal.Decimal  `json:"total_cost_basis"`
	UnrealizedGainLoss        decimal.Decimal  `json:"unrealized_gain_loss"`
	UnrealizedGainLossPercent float64          `json:"unrealized_gain_loss_percent"`
	InceptionGainLossDollar   decimal.Decimal  `json:"inception_gain_loss_dollar"`
	InceptionGainLossPercent  float64          `json:"inception_gain_loss_percent"`
	RealGainLossDollar        decimal.Decimal  `json:"real_gain_loss_dollar"`
	RealGainLossPercent       float64          `json:"real_gain_loss_percent"`
	NetExternalFlow           decimal.Decimal  `json:"net_external_flow"`
	EstimatedAnnualIncome     decimal.Decimal  `json:"estimated_annual_income"`
	PositionCount             int              `json:"position_count"`
	AssetAllocation           Allocation       `json:"asset_allocation"`
	BankAllocation            Allocation       `json:"bank_allocation"`
	CustodyAllocation         Allocation       `json:"custody_allocation"`
	BondMaturityBuckets       []MaturityBucket `json:"bond_maturity_buckets"`
	TopMovers                 TopMovers        `json:"top_movers"`
}

// SnapshotPosition is a holding persisted alongside a snapshot.
type SnapshotPosition struct {
	Bank        BankCode         `json:"bank"`
	AccountCode string           `json:"account_code"`
	Identifier  string           `json:"identifier"`
	Name        string           `json:"name"`
	AssetType   AssetType        `json:"asset_type"`
	Quantity    decimal.Decimal  `json:"quantity"`
	MarketValue decimal.Decimal  `json:"market_value"`
	CostBasis   *decimal.Decimal `json:"cost_basis,omitempty"`
}

// PortfolioSnapshot is one client's metrics as of one date.
// It is keyed by (ClientCode, SnapshotDate); a re-run replaces it.
type PortfolioSnapshot struct {
	ID           int64              `json:"id"`
	ClientCode   string             `json:"client_code"`
	SnapshotDate time.Time          `json:"snapshot_date"`
	Metrics      PortfolioMetrics   `json:"portfolio_metrics"`
	Positions    []SnapshotPosition `json:"positions,omitempty"`
	CreatedAt    time.Time          `json:"created_at"`
}

// DateAggregatedMetrics is the cached cross-client summary for one date and filter.
type DateAggregatedMetrics struct {
	SnapshotDate             time.Time        `json:"snapshot_date"`
	ClientFilter             string           `json:"client_filter"`
	TotalValue               decimal.Decimal  `json:"total_value"`
	InceptionGainLossDollar  decimal.Decimal  `json:"inception_gain_loss_dollar"`
	InceptionGainLossPercent float64          `json:"inception_gain_loss_percent"`
	RealGainLossDollar       decimal.Decimal  `json:"real_gain_loss_dollar"`
	RealGainLossPercent      float64          `json:"real_gain_loss_percent"`
	EstimatedAnnualIncome    decimal.Decimal  `json:"estimated_annual_income"`
	ClientCount              int              `json:"client_count"`
	AssetAllocation          Allocation       `json:"asset_allocation"`
	BankAllocation           Allocation       `json:"bank_allocation"`
	BondMaturityBuckets      []MaturityBucket `json:"bond_maturity_buckets"`
	MissingClients           []string         `json:"missing_clients,omitempty"`
	UpdatedAt                time.Time        `json:"updated_at"`
}

// HistoryPoint is one dated entry in a client's portfolio evolution.
type HistoryPoint struct {
	SnapshotDate             time.Time       `json:"snapshot_date"`
	TotalValue               decimal.Decimal `json:"total_value"`
	RealGainLossPercent      float64         `json:"real_gain_loss_percent"`
	InceptionGainLossPercent float64         `json:"inception_gain_loss_percent"`
}

// Package dashboard maintains the per-date cross-client aggregate cache read
// by the dashboard.
package dashboard

import (
	"sort"
	"time"

	"github.com/aristath/custodian/internal/domain"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"
)

var hundred = decimal.NewFromInt(100)

// Aggregate combines the snapshots of one date into the ALL aggregate.
// Dollar amounts are summed. Percentage returns are averaged weighted by
// each client's total value. known lists every client that ever had a
// snapshot up to date; those without one on date are reported as missing.
func Aggregate(date time.Time, snapshots []*domain.PortfolioSnapshot, known []string) *domain.DateAggregatedMetrics {
	agg := &domain.DateAggregatedMetrics{
		SnapshotDate:            domain.TruncateDay(date),
		ClientFilter:            domain.ClientFilterAll,
		TotalValue:              decimal.Zero,
		InceptionGainLossDollar: decimal.Zero,
		RealGainLossDollar:      decimal.Zero,
		EstimatedAnnualIncome:   decimal.Zero,
		ClientCount:             len(snapshots),
		MissingClients:          MissingClients(snapshots, known),
	}

	var (
		weights   = make([]float64, 0, len(snapshots))
		inception = make([]float64, 0, len(snapshots))
		period    = make([]float64, 0, len(snapshots))
		assets    = make(map[string]decimal.Decimal)
		banks     = make(map[string]decimal.Decimal)
		buckets   = make(map[int]*domain.MaturityBucket)
	)

	for _, snap := range snapshots {
		m := snap.Metrics
		agg.TotalValue = agg.TotalValue.Add(m.TotalValue)
		agg.InceptionGainLossDollar = agg.InceptionGainLossDollar.Add(m.InceptionGainLossDollar)
		agg.RealGainLossDollar = agg.RealGainLossDollar.Add(m.RealGainLossDollar)
		agg.EstimatedAnnualIncome = agg.EstimatedAnnualIncome.Add(m.EstimatedAnnualIncome)

		weights = append(weights, m.TotalValue.InexactFloat64())
		inception = append(inception, m.InceptionGainLossPercent)
		period = append(period, m.RealGainLossPercent)

		addValues(assets, m.AssetAllocation)
		addValues(banks, m.BankAllocation)
		for _, b := range m.BondMaturityBuckets {
			acc, ok := buckets[b.Year]
			if !ok {
				acc = &domain.MaturityBucket{Year: b.Year}
				buckets[b.Year] = acc
			}
			acc.Count += b.Count
			acc.FaceValue = acc.FaceValue.Add(b.FaceValue)
			acc.MarketValue = acc.MarketValue.Add(b.MarketValue)
		}
	}

	agg.InceptionGainLossPercent = WeightedMean(inception, weights)
	agg.RealGainLossPercent = WeightedMean(period, weights)
	agg.AssetAllocation = allocation(assets, agg.TotalValue)
	agg.BankAllocation = allocation(banks, agg.TotalValue)

	agg.BondMaturityBuckets = make([]domain.MaturityBucket, 0, len(buckets))
	for _, b := range buckets {
		agg.BondMaturityBuckets = append(agg.BondMaturityBuckets, *b)
	}
	sort.Slice(agg.BondMaturityBuckets, func(i, j int) bool {
		return agg.BondMaturityBuckets[i].Year < agg.BondMaturityBuckets[j].Year
	})

	return agg
}

// ForClient is the aggregate of a single client: its own snapshot metrics.
func ForClient(snap *domain.PortfolioSnapshot) *domain.DateAggregatedMetrics {
	m := snap.Metrics
	return &domain.DateAggregatedMetrics{
		SnapshotDate:             domain.TruncateDay(snap.SnapshotDate),
		ClientFilter:             snap.ClientCode,
		TotalValue:               m.TotalValue,
		InceptionGainLossDollar:  m.InceptionGainLossDollar,
		InceptionGainLossPercent: m.InceptionGainLossPercent,
		RealGainLossDollar:       m.RealGainLossDollar,
		RealGainLossPercent:      m.RealGainLossPercent,
		EstimatedAnnualIncome:    m.EstimatedAnnualIncome,
		ClientCount:              1,
		AssetAllocation:          m.AssetAllocation,
		BankAllocation:           m.BankAllocation,
		BondMaturityBuckets:      m.BondMaturityBuckets,
	}
}

// WeightedMean is the weighted average of values. A zero total weight yields 0.
func WeightedMean(values, weights []float64) float64 {
	total := 0.0
	for _, w := range weights {
		total += w
	}
	if len(values) == 0 || total == 0 {
		return 0
	}
	return stat.Mean(values, weights)
}

// MissingClients lists the known clients without a snapshot, sorted.
func MissingClients(snapshots []*domain.PortfolioSnapshot, known []string) []string {
	present := make(map[string]bool, len(snapshots))
	for _, s := range snapshots {
		present[s.ClientCode] = true
	}
	var missing []string
	for _, c := range known {
		if !present[c] {
			missing = append(missing, c)
		}
	}
	sort.Strings(missing)
	return missing
}

func addValues(acc map[string]decimal.Decimal, alloc domain.Allocation) {
	for key, entry := range alloc {
		acc[key] = acc[key].Add(entry.Value)
	}
}

func allocation(values map[string]decimal.Decimal, total decimal.Decimal) domain.Allocation {
	out := make(domain.Allocation, len(values))
	for key, v := range values {
		entry := domain.AllocationEntry{Value: v}
		if !total.IsZero() {
			entry.Percentage = v.Div(total).Mul(hundred).InexactFloat64()
		}
		out[key] = entry
	}
	return out
}

package portfolio

import (
	"sort"
	"strings"
	"time"

	"github.com/aristath/custodian/internal/domain"
	"github.com/shopspring/decimal"
)

// topMoversLimit bounds the gainers and losers lists.
const topMoversLimit = 5

// Input is everything one client's calculation reads.
type Input struct {
	ClientCode string
	Date       time.Time
	Securities []domain.StandardizedSecurity

	// Previous is the latest snapshot before Date, First the earliest one.
	// Both are nil for a client's first snapshot.
	Previous *domain.PortfolioSnapshot
	First    *domain.PortfolioSnapshot

	PeriodFlows    []Flow // external flows in (Previous.Date, Date]
	InceptionFlows []Flow // external flows in (First.Date, Date]
}

// Calculate computes the metrics of one client snapshot.
//
// The this-period return runs from Previous to Date and the inception return
// from First to Date. A first snapshot has a zero this-period return and an
// inception gain equal to its unrealized gain.
func Calculate(in Input) (*domain.PortfolioMetrics, error) {
	m := &domain.PortfolioMetrics{
		TotalValue:            decimal.Zero,
		TotalCostBasis:        decimal.Zero,
		UnrealizedGainLoss:    decimal.Zero,
		EstimatedAnnualIncome: decimal.Zero,
		NetExternalFlow:       decimal.Zero,
		PositionCount:         len(in.Securities),
		TopMovers:             TopMovers(in.Securities, previousPositions(in.Previous)),
	}

	costed := decimal.Zero // market value of positions that carry a cost basis
	for _, s := range in.Securities {
		m.TotalValue = m.TotalValue.Add(s.MarketValue)
		m.EstimatedAnnualIncome = m.EstimatedAnnualIncome.Add(AnnualIncome(s))
		if s.CostBasis != nil {
			m.TotalCostBasis = m.TotalCostBasis.Add(*s.CostBasis)
			costed = costed.Add(s.MarketValue)
		}
	}
	m.UnrealizedGainLoss = costed.Sub(m.TotalCostBasis)
	m.UnrealizedGainLossPercent = percentOf(m.UnrealizedGainLoss, m.TotalCostBasis)

	m.AssetAllocation = Allocate(in.Securities, m.TotalValue, func(s domain.StandardizedSecurity) string {
		return string(s.AssetType)
	})
	m.BankAllocation = Allocate(in.Securities, m.TotalValue, func(s domain.StandardizedSecurity) string {
		return string(s.Bank)
	})
	m.CustodyAllocation = Allocate(in.Securities, m.TotalValue, func(s domain.StandardizedSecurity) string {
		return strings.TrimSpace(string(s.Bank) + " " + s.AccountCode)
	})
	m.BondMaturityBuckets = MaturityBuckets(in.Securities)

	if in.Previous == nil {
		m.RealGainLossDollar = decimal.Zero
		m.RealGainLossPercent = 0
		m.InceptionGainLossDollar = m.UnrealizedGainLoss
		m.InceptionGainLossPercent = m.UnrealizedGainLossPercent
		return m, nil
	}

	period, err := ModifiedDietz(in.ClientCode, in.Previous.Metrics.TotalValue, m.TotalValue,
		in.Previous.SnapshotDate, in.Date, in.PeriodFlows)
	if err != nil {
		return nil, err
	}
	m.RealGainLossDollar = period.GainLoss
	m.RealGainLossPercent = period.Percent
	m.NetExternalFlow = period.NetFlow

	first := in.First
	if first == nil {
		first = in.Previous
	}
	inception, err := ModifiedDietz(in.ClientCode, first.Metrics.TotalValue, m.TotalValue,
		first.SnapshotDate, in.Date, in.InceptionFlows)
	if err != nil {
		return nil, err
	}
	m.InceptionGainLossDollar = inception.GainLoss
	m.InceptionGainLossPercent = inception.Percent

	return m, nil
}

// AnnualIncome is the projected yearly income of a holding: the bank's own
// estimate when present, otherwise coupon rate (percent) times face quantity.
func AnnualIncome(s domain.StandardizedSecurity) decimal.Decimal {
	if s.EstimatedAnnualIncome != nil {
		return *s.EstimatedAnnualIncome
	}
	if s.CouponRate != nil && !s.Quantity.IsZero() {
		return s.CouponRate.Div(hundred).Mul(s.Quantity)
	}
	return decimal.Zero
}

// Allocate groups market value by label with each bucket's share of total.
func Allocate(securities []domain.StandardizedSecurity, total decimal.Decimal, label func(domain.StandardizedSecurity) string) domain.Allocation {
	values := make(map[string]decimal.Decimal)
	for _, s := range securities {
		key := label(s)
		values[key] = values[key].Add(s.MarketValue)
	}

	out := make(domain.Allocation, len(values))
	for key, v := range values {
		out[key] = domain.AllocationEntry{Value: v, Percentage: percentOf(v, total)}
	}
	return out
}

// MaturityBuckets groups dated bonds by maturity year, earliest first.
func MaturityBuckets(securities []domain.StandardizedSecurity) []domain.MaturityBucket {
	byYear := make(map[int]*domain.MaturityBucket)
	for _, s := range securities {
		if s.AssetType != domain.AssetBond || s.MaturityDate == nil {
			continue
		}
		year := s.MaturityDate.Year()
		b, ok := byYear[year]
		if !ok {
			b = &domain.MaturityBucket{Year: year}
			byYear[year] = b
		}
		b.Count++
		b.FaceValue = b.FaceValue.Add(s.Quantity)
		b.MarketValue = b.MarketValue.Add(s.MarketValue)
	}

	out := make([]domain.MaturityBucket, 0, len(byYear))
	for _, b := range byYear {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out
}

// TopMovers compares holdings with the previous snapshot's positions. Only
// holdings present in both with a positive previous value qualify.
func TopMovers(current []domain.StandardizedSecurity, previous []domain.SnapshotPosition) domain.TopMovers {
	movers := domain.TopMovers{Gainers: []domain.Mover{}, Losers: []domain.Mover{}}
	if len(previous) == 0 {
		return movers
	}

	before := make(map[string]decimal.Decimal)
	for _, p := range previous {
		key := moverKey(p.Identifier, p.Name)
		before[key] = before[key].Add(p.MarketValue)
	}

	type holding struct {
		name      string
		assetType domain.AssetType
		value     decimal.Decimal
	}
	now := make(map[string]*holding)
	var order []string
	for _, s := range current {
		key := moverKey(s.Identifier, s.Name)
		h, ok := now[key]
		if !ok {
			h = &holding{name: s.Name, assetType: s.AssetType}
			now[key] = h
			order = append(order, key)
		}
		h.value = h.value.Add(s.MarketValue)
	}

	var all []domain.Mover
	for _, key := range order {
		prev, ok := before[key]
		if !ok || !prev.IsPositive() {
			continue
		}
		h := now[key]
		change := h.value.Sub(prev)
		if change.IsZero() {
			continue
		}
		all = append(all, domain.Mover{
			Identifier:    key,
			Name:          h.name,
			AssetType:     h.assetType,
			DollarChange:  change,
			PercentChange: percentOf(change, prev),
			CurrentValue:  h.value,
			PreviousValue: prev,
		})
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].DollarChange.Abs().GreaterThan(all[j].DollarChange.Abs())
	})
	for _, mv := range all {
		if mv.DollarChange.IsPositive() && len(movers.Gainers) < topMoversLimit {
			movers.Gainers = append(movers.Gainers, mv)
		}
		if mv.DollarChange.IsNegative() && len(movers.Losers) < topMoversLimit {
			movers.Losers = append(movers.Losers, mv)
		}
	}
	return movers
}

// Positions converts holdings to the rows stored with a snapshot.
func Positions(securities []domain.StandardizedSecurity) []domain.SnapshotPosition {
	out := make([]domain.SnapshotPosition, 0, len(securities))
	for _, s := range securities {
		out = append(out, domain.SnapshotPosition{
			Bank:        s.Bank,
			AccountCode: s.AccountCode,
			Identifier:  moverKey(s.Identifier, s.Name),
			Name:        s.Name,
			AssetType:   s.AssetType,
			Quantity:    s.Quantity,
			MarketValue: s.MarketValue,
			CostBasis:   s.CostBasis,
		})
	}
	return out
}

func previousPositions(prev *domain.PortfolioSnapshot) []domain.SnapshotPosition {
	if prev == nil {
		return nil
	}
	return prev.Positions
}

func moverKey(identifier, name string) string {
	if identifier != "" {
		return identifier
	}
	return name
}

func percentOf(part, total decimal.Decimal) float64 {
	if total.IsZero() {
		return 0
	}
	return part.Div(total).Mul(hundred).InexactFloat64()
}

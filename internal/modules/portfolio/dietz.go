// Package portfolio computes per-client snapshot metrics: Modified Dietz
// returns over the inception and this-period boundaries, allocations, income
// and bond maturities.
package portfolio

import (
	"fmt"
	"time"

	"github.com/aristath/custodian/internal/domain"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Flow is one external cash flow. Deposits are positive, withdrawals negative.
type Flow struct {
	Date   time.Time
	Amount decimal.Decimal
}

// DietzResult is a Modified Dietz return over one period.
type DietzResult struct {
	GainLoss     decimal.Decimal // End - Begin - NetFlow
	Percent      float64         // GainLoss / (Begin + weighted flows), in percent
	NetFlow      decimal.Decimal
	WeightedFlow decimal.Decimal
}

// ModifiedDietz computes
//
//	R = (End - Begin - NetFlow) / (Begin + Σ flow_i × weight_i)
//	weight_i = (stop - date_i) / (stop - start)
//
// Flows must fall in (start, stop]. When the denominator is zero the
// percentage is 0 and the dollar gain is still reported.
func ModifiedDietz(client string, begin, end decimal.Decimal, start, stop time.Time, flows []Flow) (DietzResult, error) {
	start = domain.TruncateDay(start)
	stop = domain.TruncateDay(stop)
	if stop.Before(start) {
		return DietzResult{}, &domain.InvalidFlowDataError{
			Client: client,
			Reason: fmt.Sprintf("period ends %s before it starts %s", stop.Format(domain.DateLayout), start.Format(domain.DateLayout)),
		}
	}

	periodDays := decimal.NewFromFloat(stop.Sub(start).Hours() / 24)
	netFlow := decimal.Zero
	weighted := decimal.Zero

	for _, f := range flows {
		if f.Date.IsZero() {
			return DietzResult{}, &domain.InvalidFlowDataError{Client: client, Reason: "external flow without a date"}
		}
		day := domain.TruncateDay(f.Date)
		if !day.After(start) || day.After(stop) {
			return DietzResult{}, &domain.InvalidFlowDataError{
				Client: client,
				Reason: fmt.Sprintf("flow dated %s outside period (%s, %s]",
					day.Format(domain.DateLayout), start.Format(domain.DateLayout), stop.Format(domain.DateLayout)),
			}
		}

		netFlow = netFlow.Add(f.Amount)
		if periodDays.IsPositive() {
			remaining := decimal.NewFromFloat(stop.Sub(day).Hours() / 24)
			weighted = weighted.Add(f.Amount.Mul(remaining).Div(periodDays))
		}
	}

	result := DietzResult{
		GainLoss:     end.Sub(begin).Sub(netFlow),
		NetFlow:      netFlow,
		WeightedFlow: weighted,
	}
	denominator := begin.Add(weighted)
	if !denominator.IsZero() {
		result.Percent = result.GainLoss.Div(denominator).Mul(hundred).InexactFloat64()
	}
	return result, nil
}

// FlowsFrom keeps the external flows of txs.
func FlowsFrom(txs []domain.StandardizedTransaction) []Flow {
	var flows []Flow
	for _, tx := range txs {
		if !tx.Type.IsExternalFlow() {
			continue
		}
		flows = append(flows, Flow{Date: tx.Date, Amount: tx.TotalAmount})
	}
	return flows
}
